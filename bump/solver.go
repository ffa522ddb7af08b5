package bump

import (
	"errors"
	"math"

	"options-quoter-go/linalg"
)

// Target 一个锚点要求实现的方差增量。
type Target struct {
	K      float64 // log-moneyness 锚点
	DeltaW float64 // 目标总方差增量
}

// SolverConfig RBF 拟合配置。
type SolverConfig struct {
	Width       float64 `yaml:"width"`       // 拟合用 RBF 宽度
	RidgeLambda float64 `yaml:"ridgeLambda"` // 正规方程岭系数
}

// DefaultSolverConfig 返回默认拟合配置。
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Width:       0.08,
		RidgeLambda: 1e-4,
	}
}

// sparsityEps 幅度低于该阈值的解不输出为 bump，保持 bump 集合稀疏。
const sparsityEps = 1e-6

// ErrNoTargets 没有任何锚点可解。
var ErrNoTargets = errors.New("bump: no targets")

// Solve 求 RBF 幅度：(ΦᵀΦ + λI)α = Φᵀy，列主元高斯消元求解。
// 同样的输入永远得到同样的输出，无任何隐藏随机性。
func Solve(targets []Target, centers []float64, cfg SolverConfig) ([]float64, error) {
	n := len(targets)
	m := len(centers)
	if n == 0 || m == 0 {
		return nil, ErrNoTargets
	}
	if cfg.Width <= 0 {
		return nil, errors.New("bump: width must be > 0")
	}

	// 设计矩阵 Φ[i][j] = exp(-0.5*((k_i - c_j)/width)^2)
	phi := make([][]float64, n)
	for i, t := range targets {
		phi[i] = make([]float64, m)
		for j, c := range centers {
			x := (t.K - c) / cfg.Width
			phi[i][j] = math.Exp(-0.5 * x * x)
		}
	}

	// 正规方程 ΦᵀΦ + λI 与 Φᵀy
	a := make([][]float64, m)
	b := make([]float64, m)
	for j := 0; j < m; j++ {
		a[j] = make([]float64, m)
		for l := 0; l < m; l++ {
			s := 0.0
			for i := 0; i < n; i++ {
				s += phi[i][j] * phi[i][l]
			}
			a[j][l] = s
		}
		a[j][j] += cfg.RidgeLambda
		s := 0.0
		for i := 0; i < n; i++ {
			s += phi[i][j] * targets[i].DeltaW
		}
		b[j] = s
	}

	// 岭项让矩阵远离奇异；即便如此主元下限仍由 SolvePivoting 把守。
	return linalg.SolvePivoting(a, b)
}

// Build 求解并装配成 bump 集合。输出宽度取拟合宽度的一半，
// 使调整局部化、不在曲面上大范围扩散；幅度过小的解被丢弃。
func Build(targets []Target, centers []float64, cfg SolverConfig, bucket string) ([]Bump, error) {
	alphas, err := Solve(targets, centers, cfg)
	if err != nil {
		return nil, err
	}
	out := make([]Bump, 0, len(alphas))
	for j, a := range alphas {
		if math.Abs(a) < sparsityEps {
			continue
		}
		out = append(out, Bump{
			K:      centers[j],
			Alpha:  a,
			Lam:    cfg.Width / 2,
			Bucket: bucket,
		})
	}
	return out, nil
}
