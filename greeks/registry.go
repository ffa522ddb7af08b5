// Package greeks 计算期权价格对微笑指标与远期的因子敏感度。
package greeks

import (
	"errors"
	"fmt"

	"options-quoter-go/linalg"
)

// RegistryVersion 因子注册表版本。标签集合变更时必须递增，
// 消费方据此拒绝不同代的因子向量。
const RegistryVersion uint32 = 1

// 因子顺序固定：前五个为微笑指标，最后一个为远期。
const (
	IdxL0 = iota
	IdxS0
	IdxC0
	IdxSNeg
	IdxSPos
	IdxF
)

// Labels 因子有序标签。
var Labels = [linalg.Dim]string{"L0", "S0", "C0", "S_neg", "S_pos", "F"}

// ErrVersionMismatch 因子向量与注册表版本不一致，属于集成错误。
var ErrVersionMismatch = errors.New("greeks: factor vector version mismatch")

// FactorVector 带版本标签的因子向量。维度由 linalg.Dim 编译期保证。
type FactorVector struct {
	Values  linalg.Vector
	Version uint32
}

// NewFactorVector 用当前注册表版本包装一个向量。
func NewFactorVector(v linalg.Vector) FactorVector {
	return FactorVector{Values: v, Version: RegistryVersion}
}

// Check 消费前必须调用；版本不符直接拒绝。
func (f FactorVector) Check() error {
	if f.Version != RegistryVersion {
		return fmt.Errorf("%w: got v%d want v%d", ErrVersionMismatch, f.Version, RegistryVersion)
	}
	return nil
}
