package smile

import (
	"errors"
	"math"

	"options-quoter-go/linalg"
)

// ErrCalibration 行情样本不足或没有任何候选通过边界校验。
var ErrCalibration = errors.New("smile: calibration failed")

// MarketQuote 用于标定的单条行情。
type MarketQuote struct {
	Strike     float64
	ImpliedVol float64
	Weight     float64
}

// CalibrateConfig 标定配置。
type CalibrateConfig struct {
	Bounds    Bounds
	MinQuotes int     // 最少可用样本数
	MinWeight float64 // 最小总权重
	GridM     int     // m 网格点数
	GridSigma int     // sigma 网格点数
}

// DefaultCalibrateConfig 返回默认标定配置。
func DefaultCalibrateConfig() CalibrateConfig {
	return CalibrateConfig{
		Bounds:    DefaultBounds(),
		MinQuotes: 5,
		MinWeight: 1e-6,
		GridM:     9,
		GridSigma: 8,
	}
}

// Calibrate 对市场报价做加权最小二乘 SVI 标定。
// 外层在 (m, sigma) 粗网格上搜索；固定 (m, sigma) 后模型对
// (a, b*rho, b) 线性，内层闭式求解加权正规方程。
// 任何失败（样本不足、候选全部出界）都显式返回 ErrCalibration，
// 绝不安装部分拟合的曲面。
func Calibrate(quotes []MarketQuote, forward, timeToExpiry float64, cfg CalibrateConfig) (Params, error) {
	if forward <= 0 || timeToExpiry <= 0 {
		return Params{}, ErrCalibration
	}
	var (
		samples     []sample
		totalWeight float64
		kMin, kMax  = math.Inf(1), math.Inf(-1)
	)
	for _, q := range quotes {
		if q.Strike <= 0 || q.ImpliedVol <= 0 || q.Weight <= 0 {
			continue
		}
		k := math.Log(q.Strike / forward)
		samples = append(samples, sample{
			k:  k,
			w:  q.ImpliedVol * q.ImpliedVol * timeToExpiry,
			wt: q.Weight,
		})
		totalWeight += q.Weight
		kMin = math.Min(kMin, k)
		kMax = math.Max(kMax, k)
	}
	if len(samples) < cfg.MinQuotes || totalWeight < cfg.MinWeight {
		return Params{}, ErrCalibration
	}

	span := kMax - kMin
	if span <= 0 {
		return Params{}, ErrCalibration
	}

	best := Params{}
	bestSSE := math.Inf(1)
	found := false

	for im := 0; im < cfg.GridM; im++ {
		m := kMin + span*float64(im)/float64(cfg.GridM-1)
		for is := 0; is < cfg.GridSigma; is++ {
			// sigma 网格按平方间隔铺开，小 sigma 处更密
			sigma := cfg.Bounds.SigmaMin + (span/2-cfg.Bounds.SigmaMin)*
				math.Pow(float64(is+1)/float64(cfg.GridSigma), 2)
			if sigma < cfg.Bounds.SigmaMin {
				sigma = cfg.Bounds.SigmaMin
			}

			cand, ok := solveInner(samples, m, sigma)
			if !ok {
				continue
			}
			if CheckParams(cand, cfg.Bounds) != nil {
				continue
			}
			sse := 0.0
			for _, s := range samples {
				d := TotalVariance(cand, s.k) - s.w
				sse += s.wt * d * d
			}
			if sse < bestSSE {
				bestSSE = sse
				best = cand
				found = true
			}
		}
	}
	if !found {
		return Params{}, ErrCalibration
	}
	return best, nil
}

type sample struct{ k, w, wt float64 }

// solveInner 固定 (m, sigma)，解 (a, b*rho, b) 的 3x3 加权正规方程。
func solveInner(samples []sample, m, sigma float64) (Params, bool) {
	// 基函数：1, (k-m), sqrt((k-m)^2+sigma^2)
	var ata [3][3]float64
	var atb [3]float64
	for _, s := range samples {
		x := s.k - m
		phi := [3]float64{1, x, math.Sqrt(x*x + sigma*sigma)}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				ata[i][j] += s.wt * phi[i] * phi[j]
			}
			atb[i] += s.wt * phi[i] * s.w
		}
	}
	a := [][]float64{
		{ata[0][0], ata[0][1], ata[0][2]},
		{ata[1][0], ata[1][1], ata[1][2]},
		{ata[2][0], ata[2][1], ata[2][2]},
	}
	b := []float64{atb[0], atb[1], atb[2]}
	x, err := linalg.SolvePivoting(a, b)
	if err != nil {
		return Params{}, false
	}
	bCoef := x[2]
	if bCoef <= 0 {
		return Params{}, false
	}
	return Params{A: x[0], B: bCoef, Rho: x[1] / bCoef, M: m, Sigma: sigma}, true
}
