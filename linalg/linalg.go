// Package linalg 提供风险因子维度（固定6维）的向量/矩阵运算。
// 固定数组保证编译期维度检查，报价热路径上无堆分配。
package linalg

import "math"

// Dim 风险因子维度：L0, S0, C0, S_neg, S_pos, F。
const Dim = 6

type Vector [Dim]float64

type Matrix [Dim][Dim]float64

// Dot 向量点积。
func Dot(a, b Vector) float64 {
	s := 0.0
	for i := 0; i < Dim; i++ {
		s += a[i] * b[i]
	}
	return s
}

// MulVec 计算 m·v。
func MulVec(m Matrix, v Vector) Vector {
	var out Vector
	for i := 0; i < Dim; i++ {
		s := 0.0
		for j := 0; j < Dim; j++ {
			s += m[i][j] * v[j]
		}
		out[i] = s
	}
	return out
}

// Outer 外积 a·bᵀ。
func Outer(a, b Vector) Matrix {
	var out Matrix
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			out[i][j] = a[i] * b[j]
		}
	}
	return out
}

// Quadratic 二次型 xᵀ·m·x。
func Quadratic(m Matrix, x Vector) float64 {
	return Dot(x, MulVec(m, x))
}

// Sub 向量差 a-b。
func Sub(a, b Vector) Vector {
	var out Vector
	for i := 0; i < Dim; i++ {
		out[i] = a[i] - b[i]
	}
	return out
}

// Scale 矩阵数乘。
func Scale(m Matrix, k float64) Matrix {
	var out Matrix
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			out[i][j] = m[i][j] * k
		}
	}
	return out
}

// Blend 计算 alpha*a + beta*b，用于 EWMA 与多周期混合。
func Blend(a Matrix, alpha float64, b Matrix, beta float64) Matrix {
	var out Matrix
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			out[i][j] = alpha*a[i][j] + beta*b[i][j]
		}
	}
	return out
}

// Trace 矩阵迹。
func Trace(m Matrix) float64 {
	s := 0.0
	for i := 0; i < Dim; i++ {
		s += m[i][i]
	}
	return s
}

// AddDiagonal 对角线整体加 eps。
func AddDiagonal(m Matrix, eps float64) Matrix {
	for i := 0; i < Dim; i++ {
		m[i][i] += eps
	}
	return m
}

// Cholesky 对称正定分解 m = L·Lᵀ。非正定时返回 ok=false，
// 调用方不得把协方差当成精确 PD（见 covariance 包）。
func Cholesky(m Matrix) (l Matrix, ok bool) {
	for i := 0; i < Dim; i++ {
		for j := 0; j <= i; j++ {
			s := m[i][j]
			for k := 0; k < j; k++ {
				s -= l[i][k] * l[j][k]
			}
			if i == j {
				if s <= 0 {
					return l, false
				}
				l[i][i] = math.Sqrt(s)
			} else {
				l[i][j] = s / l[j][j]
			}
		}
	}
	return l, true
}

// SolveSPD 用 Cholesky 求解对称正定方程 m·x = b。
func SolveSPD(m Matrix, b Vector) (Vector, bool) {
	l, ok := Cholesky(m)
	if !ok {
		return Vector{}, false
	}
	// 前代 L·y = b
	var y Vector
	for i := 0; i < Dim; i++ {
		s := b[i]
		for k := 0; k < i; k++ {
			s -= l[i][k] * y[k]
		}
		y[i] = s / l[i][i]
	}
	// 回代 Lᵀ·x = y
	var x Vector
	for i := Dim - 1; i >= 0; i-- {
		s := y[i]
		for k := i + 1; k < Dim; k++ {
			s -= l[k][i] * x[k]
		}
		x[i] = s / l[i][i]
	}
	return x, true
}

// PowerIteration 幂迭代估计最大特征值，仅用于监控诊断，精度为近似值。
func PowerIteration(m Matrix, iters int, tol float64) float64 {
	v := Vector{1, 1, 1, 1, 1, 1}
	lambda := 0.0
	for n := 0; n < iters; n++ {
		w := MulVec(m, v)
		norm := math.Sqrt(Dot(w, w))
		if norm < 1e-300 {
			return 0
		}
		for i := 0; i < Dim; i++ {
			w[i] /= norm
		}
		next := Dot(w, MulVec(m, w))
		if math.Abs(next-lambda) < tol {
			return next
		}
		lambda = next
		v = w
	}
	return lambda
}
