// Package edge 实现库存驱动的报价边际阶梯。
// 符号约定：做市商净空头（负库存）要求正 edge，即继续卖出需要更高
// 的价格补偿；该约定是方向性的，不是奇对称。
package edge

import (
	"fmt"
	"math"
)

// LadderConfig 单个 bucket 的边际阶梯参数。
type LadderConfig struct {
	E0    float64 `yaml:"e0"`    // 起步边际
	Kappa float64 `yaml:"kappa"` // 阶梯斜率
	Gamma float64 `yaml:"gamma"` // 凸性指数，必须 >= 1
	Vref  float64 `yaml:"vref"`  // 参考 vega 敞口，必须 > 0
}

// Validate 非凸阶梯属于配置错误，在加载期失败，绝不运行期修正。
func (c LadderConfig) Validate() error {
	if c.Gamma < 1 {
		return fmt.Errorf("edge: gamma=%g must be >= 1 (convexity)", c.Gamma)
	}
	if c.Vref <= 0 {
		return fmt.Errorf("edge: vref=%g must be > 0", c.Vref)
	}
	if c.E0 < 0 || c.Kappa < 0 {
		return fmt.Errorf("edge: e0=%g kappa=%g must be >= 0", c.E0, c.Kappa)
	}
	return nil
}

// Edge 计算给定签名敞口下的必要边际。
// edge(inv) = -sign(inv) * (E0 + kappa * (|inv|/Vref)^gamma)，edge(0) = 0。
func Edge(inventory float64, cfg LadderConfig) float64 {
	if inventory == 0 {
		return 0
	}
	mag := cfg.E0 + cfg.Kappa*math.Pow(math.Abs(inventory)/cfg.Vref, cfg.Gamma)
	if inventory > 0 {
		return -mag
	}
	return mag
}

// EdgeForSize 大额增量成交的边际更贵：乘数 1 + 0.2*(size/sizeRef)^1.2。
func EdgeForSize(inventory, size, sizeRef float64, cfg LadderConfig) float64 {
	e := Edge(inventory, cfg)
	if sizeRef <= 0 || size <= 0 {
		return e
	}
	return e * (1 + 0.2*math.Pow(size/sizeRef, 1.2))
}
