package linalg

import "errors"

// ErrSingular 主元过小，方程组近似奇异。
var ErrSingular = errors.New("linalg: matrix is singular or near-singular")

// pivotFloor 主元下限；岭回归正规方程在正常配置下远离该值。
const pivotFloor = 1e-12

// SolvePivoting 高斯消元（列主元）求解任意维 a·x = b。
// a、b 会被原地修改，调用方自行拷贝。
func SolvePivoting(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	if n == 0 || len(b) != n {
		return nil, errors.New("linalg: dimension mismatch")
	}
	for col := 0; col < n; col++ {
		// 选列主元
		pivot := col
		maxAbs := abs(a[col][col])
		for r := col + 1; r < n; r++ {
			if v := abs(a[r][col]); v > maxAbs {
				maxAbs = v
				pivot = r
			}
		}
		if maxAbs < pivotFloor {
			return nil, ErrSingular
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}
		// 消元
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	// 回代
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		s := b[i]
		for j := i + 1; j < n; j++ {
			s -= a[i][j] * x[j]
		}
		x[i] = s / a[i][i]
	}
	return x, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
