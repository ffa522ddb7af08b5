// Package pricing 提供默认的 Black-76 定价实现与到期时间换算。
// 核心引擎只依赖注入的定价函数，本包是可替换的默认实现。
package pricing

import (
	"math"

	"options-quoter-go/smile"
)

// normCDF 标准正态分布函数。
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// normPDF 标准正态密度。
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// Black76 期货期权定价。vol 或 t 非正时退化为内在价值。
func Black76(forward, strike, t, vol float64, isCall bool, df float64) float64 {
	if df <= 0 {
		df = 1
	}
	if forward <= 0 || strike <= 0 {
		return 0
	}
	if vol <= 0 || t <= 0 {
		if isCall {
			return df * math.Max(forward-strike, 0)
		}
		return df * math.Max(strike-forward, 0)
	}
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(forward/strike) + 0.5*vol*vol*t) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT
	if isCall {
		return df * (forward*normCDF(d1) - strike*normCDF(d2))
	}
	return df * (strike*normCDF(-d2) - forward*normCDF(-d1))
}

// Vega Black-76 对波动率的一阶敏感度。
func Vega(forward, strike, t, vol float64, df float64) float64 {
	if df <= 0 {
		df = 1
	}
	if forward <= 0 || strike <= 0 || vol <= 0 || t <= 0 {
		return 0
	}
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(forward/strike) + 0.5*vol*vol*t) / (vol * sqrtT)
	return df * forward * normPDF(d1) * sqrtT
}

// Delta Black-76 delta，分桶时用于判定行权价所属 delta 区间。
func Delta(forward, strike, t, vol float64, isCall bool, df float64) float64 {
	if df <= 0 {
		df = 1
	}
	if forward <= 0 || strike <= 0 || vol <= 0 || t <= 0 {
		return 0
	}
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(forward/strike) + 0.5*vol*vol*t) / (vol * sqrtT)
	if isCall {
		return df * normCDF(d1)
	}
	return -df * normCDF(-d1)
}

// Black76Pricer 核心 greeks.Pricer 契约的默认实现。
type Black76Pricer struct {
	DF float64 // 贴现因子，<=0 时按 1 处理
}

// Price 以调用方给定的隐含波动率定价。
func (bp Black76Pricer) Price(strike, t, forward, vol float64, isCall bool) float64 {
	return Black76(forward, strike, t, vol, isCall, bp.DF)
}

// SurfaceVol 在 SVI 曲面下求单个行权价的隐含波动率。
func SurfaceVol(p smile.Params, strike, t, forward float64) float64 {
	if strike <= 0 || forward <= 0 {
		return 0
	}
	k := math.Log(strike / forward)
	return smile.ImpliedVol(smile.TotalVariance(p, k), t)
}
