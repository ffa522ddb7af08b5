package config

import (
	"fmt"
	"sort"

	"options-quoter-go/engine"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate 加载期完整校验。配置错误直接失败，绝不静默修正。
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if len(cfg.Symbols) == 0 {
		return ErrInvalid("symbols config is required")
	}
	for sym, sc := range cfg.Symbols {
		if err := validateSymbol(sc); err != nil {
			return fmt.Errorf("symbols.%s: %w", sym, err)
		}
	}
	return nil
}

func validateSymbol(sc engine.Config) error {
	if sc.ExpiryMs <= 0 {
		return ErrInvalid("expiryMs must be > 0")
	}
	if err := validateBuckets(sc); err != nil {
		return err
	}
	if err := sc.Covariance.Validate(); err != nil {
		return err
	}
	return validateRisk(sc)
}

// validateBuckets delta 区间不得重叠，阶梯参数必须凸。
func validateBuckets(sc engine.Config) error {
	buckets := sc.Inventory.Buckets
	if len(buckets) == 0 {
		return ErrInvalid("at least one bucket is required")
	}
	sorted := make([]int, len(buckets))
	for i := range sorted {
		sorted[i] = i
	}
	sort.Slice(sorted, func(a, b int) bool {
		return buckets[sorted[a]].MinDelta < buckets[sorted[b]].MinDelta
	})
	seen := make(map[string]bool, len(buckets))
	for n, i := range sorted {
		b := buckets[i]
		if b.Name == "" {
			return ErrInvalid("bucket name is required")
		}
		if seen[b.Name] {
			return ErrInvalid(fmt.Sprintf("duplicate bucket %q", b.Name))
		}
		seen[b.Name] = true
		if b.MinDelta < 0 || b.MaxDelta <= b.MinDelta {
			return ErrInvalid(fmt.Sprintf("bucket %q: bad delta range [%g, %g)", b.Name, b.MinDelta, b.MaxDelta))
		}
		if n > 0 {
			prev := buckets[sorted[n-1]]
			if b.MinDelta < prev.MaxDelta {
				return ErrInvalid(fmt.Sprintf("bucket %q overlaps %q", b.Name, prev.Name))
			}
		}
		if err := b.Ladder.Validate(); err != nil {
			return fmt.Errorf("bucket %q: %w", b.Name, err)
		}
	}
	if sc.Inventory.HysteresisFraction <= 0 {
		return ErrInvalid("inventory.hysteresisFraction must be > 0")
	}
	if sc.Inventory.Solver.Width <= 0 || sc.Inventory.Solver.RidgeLambda < 0 {
		return ErrInvalid("inventory.solver width/ridgeLambda invalid")
	}
	return nil
}

func validateRisk(sc engine.Config) error {
	r := sc.Risk
	if r.Gamma <= 0 {
		return ErrInvalid("risk.gamma must be > 0")
	}
	if r.QMax <= 0 {
		return ErrInvalid("risk.qMax must be > 0")
	}
	if r.Z < 0 || r.Eta < 0 || r.Kappa < 0 || r.FeeBuffer < 0 || r.MinEdge < 0 {
		return ErrInvalid("risk coefficients must be >= 0")
	}
	if r.L <= 0 {
		return ErrInvalid("risk.l must be > 0")
	}
	return nil
}
