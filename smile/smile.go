// Package smile 维护波动率微笑的 SVI 原始参数与交易员指标之间的映射。
// 所有转换均为闭式、无副作用；其他组件在接受候选曲面前必须经过本包的
// 边界检查（单一事实来源）。
package smile

import (
	"fmt"
	"math"
)

// Params SVI 总方差参数：w(k) = a + b*(rho*(k-m) + sqrt((k-m)^2 + sigma^2))。
type Params struct {
	A     float64 `yaml:"a"`
	B     float64 `yaml:"b"`
	Rho   float64 `yaml:"rho"`
	M     float64 `yaml:"m"`
	Sigma float64 `yaml:"sigma"`
}

// Metrics 交易员指标：中心水平、中心斜率、中心曲率、左右翼斜率。
// S0 = b*rho，SPos = b*(1+rho)，SNeg = b*(1-rho)，三者线性相关，
// S0 可由 S0FromWings 重建。
type Metrics struct {
	L0   float64
	S0   float64
	C0   float64
	SNeg float64
	SPos float64
}

// Bounds 曲面合法域。所有字段必须为正（RhoMax ∈ (0,1]）。
type Bounds struct {
	BMin     float64 `yaml:"bMin"`
	SigmaMin float64 `yaml:"sigmaMin"`
	RhoMax   float64 `yaml:"rhoMax"`
	SlopeMax float64 `yaml:"slopeMax"`
	C0Min    float64 `yaml:"c0Min"`
}

// DefaultBounds 返回默认合法域。
func DefaultBounds() Bounds {
	return Bounds{
		BMin:     1e-4,
		SigmaMin: 1e-3,
		RhoMax:   0.999,
		SlopeMax: 4.0,
		C0Min:    1e-6,
	}
}

const rhoEps = 1e-12

// ToMetrics 由 SVI 参数导出交易员指标（在 k=m 处展开）。
func ToMetrics(p Params) Metrics {
	return Metrics{
		L0:   p.A + p.B*p.Sigma,
		S0:   p.B * p.Rho,
		C0:   p.B / p.Sigma,
		SNeg: p.B * (1 - p.Rho),
		SPos: p.B * (1 + p.Rho),
	}
}

// S0FromWings 由翼部斜率重建中心斜率。
func S0FromWings(m Metrics) float64 {
	return (m.SPos - m.SNeg) / 2
}

// FromMetrics 由指标重建 SVI 参数，center 为保持不变的微笑中心 m。
// 所有参数被截断到 bounds 内；截断本身不报错，调用方若需要严格
// 校验请先调用 Check。
func FromMetrics(mt Metrics, center float64, bounds Bounds) Params {
	sPos := math.Max(mt.SPos, 0)
	sNeg := math.Max(mt.SNeg, 0)
	sPos = math.Min(sPos, bounds.SlopeMax)
	sNeg = math.Min(sNeg, bounds.SlopeMax)

	b := (sPos + sNeg) / 2
	if b < bounds.BMin {
		b = bounds.BMin
	}
	rho := (sPos - sNeg) / math.Max(2*b, rhoEps)
	if rho > bounds.RhoMax {
		rho = bounds.RhoMax
	} else if rho < -bounds.RhoMax {
		rho = -bounds.RhoMax
	}

	c0 := math.Max(mt.C0, bounds.C0Min)
	sigma := b / c0
	if sigma < bounds.SigmaMin {
		sigma = bounds.SigmaMin
	}
	a := mt.L0 - b*sigma

	return Params{A: a, B: b, Rho: rho, M: center, Sigma: sigma}
}

// Check 校验指标是否落在合法域内，不做任何修正。
func Check(mt Metrics, bounds Bounds) error {
	if mt.SPos < 0 || mt.SNeg < 0 {
		return fmt.Errorf("smile: negative wing slope (sNeg=%g sPos=%g)", mt.SNeg, mt.SPos)
	}
	if mt.SPos > bounds.SlopeMax || mt.SNeg > bounds.SlopeMax {
		return fmt.Errorf("smile: wing slope exceeds max %g (sNeg=%g sPos=%g)", bounds.SlopeMax, mt.SNeg, mt.SPos)
	}
	b := (mt.SPos + mt.SNeg) / 2
	if b < bounds.BMin {
		return fmt.Errorf("smile: b=%g below bMin=%g", b, bounds.BMin)
	}
	rho := (mt.SPos - mt.SNeg) / math.Max(2*b, rhoEps)
	if math.Abs(rho) > bounds.RhoMax {
		return fmt.Errorf("smile: |rho|=%g exceeds rhoMax=%g", math.Abs(rho), bounds.RhoMax)
	}
	if mt.C0 < bounds.C0Min {
		return fmt.Errorf("smile: c0=%g below c0Min=%g", mt.C0, bounds.C0Min)
	}
	if b/mt.C0 < bounds.SigmaMin {
		return fmt.Errorf("smile: sigma=%g below sigmaMin=%g", b/mt.C0, bounds.SigmaMin)
	}
	return nil
}

// CheckParams 校验 SVI 参数本身的合法域。
func CheckParams(p Params, bounds Bounds) error {
	if p.B < bounds.BMin {
		return fmt.Errorf("smile: b=%g below bMin=%g", p.B, bounds.BMin)
	}
	if math.Abs(p.Rho) > bounds.RhoMax {
		return fmt.Errorf("smile: |rho|=%g exceeds rhoMax=%g", math.Abs(p.Rho), bounds.RhoMax)
	}
	if p.Sigma < bounds.SigmaMin {
		return fmt.Errorf("smile: sigma=%g below sigmaMin=%g", p.Sigma, bounds.SigmaMin)
	}
	if p.B*(1+math.Abs(p.Rho)) > bounds.SlopeMax {
		return fmt.Errorf("smile: wing slope %g exceeds max %g", p.B*(1+math.Abs(p.Rho)), bounds.SlopeMax)
	}
	return nil
}

// TotalVariance 计算 w(k)。
func TotalVariance(p Params, k float64) float64 {
	x := k - p.M
	return p.A + p.B*(p.Rho*x+math.Sqrt(x*x+p.Sigma*p.Sigma))
}

// ImpliedVol 由总方差换算隐含波动率，t 需为正。
func ImpliedVol(w, t float64) float64 {
	if w <= 0 || t <= 0 {
		return 0
	}
	return math.Sqrt(w / t)
}
