// Package bump 在共识曲面之上叠加库存驱动的局部 RBF 方差调整。
// 价格曲面 PC = 共识曲面 CC + Σ bumps。
package bump

import (
	"math"

	"options-quoter-go/smile"
)

// Bump 单个局部调整：以 log-moneyness K 为中心、宽度 Lam 的高斯形方差增量。
type Bump struct {
	K      float64 // log-moneyness 中心
	Alpha  float64 // 幅度（总方差单位）
	Lam    float64 // RBF 宽度
	Bucket string  // 归属 bucket
}

// Eval 该 bump 在 k 处的方差贡献。
func (b Bump) Eval(k float64) float64 {
	x := (k - b.K) / b.Lam
	return b.Alpha * math.Exp(-0.5*x*x)
}

// Surface 报价用的价格曲面。
type Surface struct {
	Consensus smile.Params
	Bumps     []Bump
}

// TotalVariance 共识总方差加上全部 bump 贡献。
func (s Surface) TotalVariance(k float64) float64 {
	w := smile.TotalVariance(s.Consensus, k)
	for _, b := range s.Bumps {
		w += b.Eval(k)
	}
	return w
}

// AdjustmentAt k 处的纯 bump 贡献（不含共识曲面）。
func (s Surface) AdjustmentAt(k float64) float64 {
	w := 0.0
	for _, b := range s.Bumps {
		w += b.Eval(k)
	}
	return w
}
