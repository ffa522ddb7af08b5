// Package covariance 维护因子冲击协方差的指数加权估计。
// Σ 由外积 EWMA 构造，对称但只近似半正定；每次更新叠加岭项并对
// 对角线设下限，调用方不得假设精确正定。
package covariance

import (
	"fmt"
	"math"

	"options-quoter-go/linalg"
)

// diagFloor 对角线下限，PD 强化启发式。
const diagFloor = 1e-8

// HorizonConfig 单个采样周期的 EWMA 配置。
type HorizonConfig struct {
	HorizonMs int64   `yaml:"horizonMs"`
	Alpha     float64 `yaml:"alpha"`
}

// Config 协方差估计器配置。Horizons 为空时退化为单周期模式。
type Config struct {
	HorizonMs    int64           `yaml:"horizonMs"`
	Alpha        float64         `yaml:"alpha"`
	RidgeEpsilon float64         `yaml:"ridgeEpsilon"`
	MinSamples   int             `yaml:"minSamples"`
	DiagPrior    float64         `yaml:"diagPrior"` // Reset 后的对角先验
	Horizons     []HorizonConfig `yaml:"horizons,omitempty"`
	BlendWeights []float64       `yaml:"blendWeights,omitempty"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		HorizonMs:    1000,
		Alpha:        0.05,
		RidgeEpsilon: 1e-4,
		MinSamples:   30,
		DiagPrior:    1e-6,
	}
}

// Validate 混合权重必须与周期一一对应并在 1e-6 内归一。
func (c Config) Validate() error {
	if c.HorizonMs <= 0 {
		return fmt.Errorf("covariance: horizonMs=%d must be > 0", c.HorizonMs)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("covariance: alpha=%g must be in (0,1]", c.Alpha)
	}
	if c.RidgeEpsilon < 0 {
		return fmt.Errorf("covariance: ridgeEpsilon=%g must be >= 0", c.RidgeEpsilon)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("covariance: minSamples=%d must be >= 1", c.MinSamples)
	}
	if len(c.Horizons) > 0 {
		if len(c.BlendWeights) != len(c.Horizons) {
			return fmt.Errorf("covariance: %d blend weights for %d horizons", len(c.BlendWeights), len(c.Horizons))
		}
		sum := 0.0
		for _, w := range c.BlendWeights {
			if w < 0 {
				return fmt.Errorf("covariance: negative blend weight %g", w)
			}
			sum += w
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("covariance: blend weights sum to %g, want 1", sum)
		}
		for _, h := range c.Horizons {
			if h.HorizonMs <= 0 || h.Alpha <= 0 || h.Alpha > 1 {
				return fmt.Errorf("covariance: invalid horizon {%d, %g}", h.HorizonMs, h.Alpha)
			}
		}
	}
	return nil
}

// horizonState 每个周期独立的 (Σ_h, lastVector_h) 与采样节奏。
type horizonState struct {
	horizonMs    int64
	alpha        float64
	sigma        linalg.Matrix
	last         linalg.Vector
	hasLast      bool
	lastSampleMs int64
	samples      int
}

// Estimator 单 symbol 协方差估计器。进程生命周期持有，按 tick 更新、
// 随后多次只读；无内部锁，归属权在 symbol 的处理序列（见 engine）。
type Estimator struct {
	cfg      Config
	horizons []*horizonState
	weights  []float64
	sigma    linalg.Matrix
}

// New 构造估计器；配置错误直接失败。
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Estimator{cfg: cfg}
	if len(cfg.Horizons) == 0 {
		e.horizons = []*horizonState{{horizonMs: cfg.HorizonMs, alpha: cfg.Alpha}}
		e.weights = []float64{1}
	} else {
		for _, h := range cfg.Horizons {
			e.horizons = append(e.horizons, &horizonState{horizonMs: h.HorizonMs, alpha: h.Alpha})
		}
		e.weights = append([]float64(nil), cfg.BlendWeights...)
	}
	e.Reset()
	return e, nil
}

// Reset 丢弃全部样本，Σ 重置为对角先验。
func (e *Estimator) Reset() {
	prior := linalg.AddDiagonal(linalg.Matrix{}, math.Max(e.cfg.DiagPrior, diagFloor))
	for _, h := range e.horizons {
		h.sigma = prior
		h.hasLast = false
		h.lastSampleMs = 0
		h.samples = 0
	}
	e.sigma = prior
}

// Update 采样当前因子向量。每个周期按自身节奏取 Δf 并做外积 EWMA，
// 然后把就绪周期凸混合进主 Σ。
func (e *Estimator) Update(f linalg.Vector, nowMs int64) {
	for _, h := range e.horizons {
		if h.hasLast && nowMs-h.lastSampleMs < h.horizonMs {
			continue
		}
		if !h.hasLast {
			h.last = f
			h.hasLast = true
			h.lastSampleMs = nowMs
			continue
		}
		delta := linalg.Sub(f, h.last)
		h.sigma = linalg.Blend(linalg.Outer(delta, delta), h.alpha, h.sigma, 1-h.alpha)
		h.sigma = ridgeAndFloor(h.sigma, e.cfg.RidgeEpsilon)
		h.last = f
		h.lastSampleMs = nowMs
		h.samples++
	}
	e.blend()
}

// blend 把就绪周期按权重混合；未就绪周期跳过，权重在就绪集合内重归一。
func (e *Estimator) blend() {
	var out linalg.Matrix
	totalW := 0.0
	for i, h := range e.horizons {
		if h.samples < e.cfg.MinSamples {
			continue
		}
		out = linalg.Blend(out, 1, h.sigma, e.weights[i])
		totalW += e.weights[i]
	}
	if totalW <= 0 {
		// 尚无就绪周期，保持现状（Ready 为 false，消费方不会读）
		return
	}
	out = linalg.Scale(out, 1/totalW)
	e.sigma = ridgeAndFloor(out, e.cfg.RidgeEpsilon)
}

// ridgeAndFloor 叠加 ε·(trace/d)·I 并把对角线抬到下限之上。
func ridgeAndFloor(m linalg.Matrix, eps float64) linalg.Matrix {
	if eps > 0 {
		m = linalg.AddDiagonal(m, eps*linalg.Trace(m)/float64(linalg.Dim))
	}
	for i := 0; i < linalg.Dim; i++ {
		if m[i][i] < diagFloor {
			m[i][i] = diagFloor
		}
	}
	return m
}

// Sigma 返回当前混合后的 Σ。Ready 为 false 时内容不可信。
func (e *Estimator) Sigma() linalg.Matrix {
	return e.sigma
}

// Ready 至少一个周期达到最小样本数后才可消费 Σ。
func (e *Estimator) Ready() bool {
	for _, h := range e.horizons {
		if h.samples >= e.cfg.MinSamples {
			return true
		}
	}
	return false
}

// SampleCount 主（首个）周期的样本数。
func (e *Estimator) SampleCount() int {
	return e.horizons[0].samples
}
