package covariance

import "options-quoter-go/linalg"

// Diagnostics 协方差健康度快照，仅供监控；特征值来自幂迭代，是近似值。
type Diagnostics struct {
	MaxEigenvalue float64 // 幂迭代估计
	MinDiagonal   float64
	Trace         float64
	PositiveDef   bool // Cholesky 是否成功
	Samples       int
}

// Diagnose 生成监控快照。Cholesky 失败只作为事实上报，不做修补。
func (e *Estimator) Diagnose() Diagnostics {
	sigma := e.sigma
	minDiag := sigma[0][0]
	for i := 1; i < linalg.Dim; i++ {
		if sigma[i][i] < minDiag {
			minDiag = sigma[i][i]
		}
	}
	_, pd := linalg.Cholesky(sigma)
	return Diagnostics{
		MaxEigenvalue: linalg.PowerIteration(sigma, 64, 1e-10),
		MinDiagonal:   minDiag,
		Trace:         linalg.Trace(sigma),
		PositiveDef:   pd,
		Samples:       e.SampleCount(),
	}
}
