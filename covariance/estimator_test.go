package covariance

import (
	"math"
	"math/rand"
	"testing"

	"options-quoter-go/linalg"
)

func newTestEstimator(t *testing.T, cfg Config) *Estimator {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	return e
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{HorizonMs: 0, Alpha: 0.05, MinSamples: 1},
		{HorizonMs: 1000, Alpha: 0, MinSamples: 1},
		{HorizonMs: 1000, Alpha: 1.5, MinSamples: 1},
		{HorizonMs: 1000, Alpha: 0.05, MinSamples: 0},
		{HorizonMs: 1000, Alpha: 0.05, RidgeEpsilon: -1, MinSamples: 1},
		{
			HorizonMs: 1000, Alpha: 0.05, MinSamples: 1,
			Horizons:     []HorizonConfig{{1000, 0.05}, {5000, 0.02}},
			BlendWeights: []float64{0.5},
		},
		{
			HorizonMs: 1000, Alpha: 0.05, MinSamples: 1,
			Horizons:     []HorizonConfig{{1000, 0.05}, {5000, 0.02}},
			BlendWeights: []float64{0.6, 0.6},
		},
		{
			HorizonMs: 1000, Alpha: 0.05, MinSamples: 1,
			Horizons:     []HorizonConfig{{1000, 0.05}, {0, 0.02}},
			BlendWeights: []float64{0.5, 0.5},
		},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: want error", i)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestReadinessGating(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 5
	e := newTestEstimator(t, cfg)

	now := int64(0)
	f := linalg.Vector{0.04, -0.02, 0.5, 0.12, 0.08, 100}
	for i := 0; i < 5; i++ {
		if e.Ready() {
			t.Fatalf("ready after %d updates, want gating until minSamples", i)
		}
		e.Update(f, now)
		now += cfg.HorizonMs
		f[5] += 0.1
	}
	// 第一次 Update 只记录基准，此后每次产生一个样本
	e.Update(f, now)
	if !e.Ready() {
		t.Fatalf("want ready after minSamples deltas")
	}
}

func TestConstantVectorDecaysToFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 2
	cfg.DiagPrior = 1e-3
	cfg.RidgeEpsilon = 0 // 隔离衰减行为
	e := newTestEstimator(t, cfg)

	f := linalg.Vector{0.04, -0.02, 0.5, 0.12, 0.08, 100}
	now := int64(0)
	for i := 0; i < 2000; i++ {
		e.Update(f, now)
		now += cfg.HorizonMs
	}
	sigma := e.Sigma()
	for i := 0; i < linalg.Dim; i++ {
		for j := 0; j < linalg.Dim; j++ {
			if i == j {
				if sigma[i][i] < 1e-8 {
					t.Fatalf("diag[%d]=%g below floor", i, sigma[i][i])
				}
				if sigma[i][i] > 2e-8 {
					t.Fatalf("diag[%d]=%g did not decay toward floor", i, sigma[i][i])
				}
			} else if math.Abs(sigma[i][j]) > 1e-9 {
				t.Fatalf("off-diag[%d][%d]=%g must decay to ~0", i, j, sigma[i][j])
			}
		}
	}
}

func TestDiagonalNeverBelowFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 1
	e := newTestEstimator(t, cfg)

	rng := rand.New(rand.NewSource(7))
	now := int64(0)
	for i := 0; i < 500; i++ {
		var f linalg.Vector
		for d := 0; d < linalg.Dim; d++ {
			f[d] = rng.NormFloat64() * 1e-6
		}
		e.Update(f, now)
		now += cfg.HorizonMs
		sigma := e.Sigma()
		for d := 0; d < linalg.Dim; d++ {
			if sigma[d][d] < 1e-8 {
				t.Fatalf("step %d: diag[%d]=%g below floor", i, d, sigma[d][d])
			}
		}
	}
}

func TestNoBlowUpUnderLargeShocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 1
	e := newTestEstimator(t, cfg)

	rng := rand.New(rand.NewSource(11))
	now := int64(0)
	for i := 0; i < 1000; i++ {
		var f linalg.Vector
		for d := 0; d < linalg.Dim; d++ {
			f[d] = rng.NormFloat64() * 50
		}
		e.Update(f, now)
		now += cfg.HorizonMs
	}
	sigma := e.Sigma()
	for i := 0; i < linalg.Dim; i++ {
		for j := 0; j < linalg.Dim; j++ {
			if math.IsNaN(sigma[i][j]) || math.IsInf(sigma[i][j], 0) {
				t.Fatalf("sigma[%d][%d] not finite", i, j)
			}
		}
		if sigma[i][i] <= 0 {
			t.Fatalf("diag[%d]=%g must stay positive", i, sigma[i][i])
		}
	}
}

func TestMultiHorizonCadence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 3
	cfg.Horizons = []HorizonConfig{
		{HorizonMs: 1000, Alpha: 0.1},
		{HorizonMs: 10_000, Alpha: 0.1},
	}
	cfg.BlendWeights = []float64{0.7, 0.3}
	e := newTestEstimator(t, cfg)

	rng := rand.New(rand.NewSource(3))
	now := int64(0)
	// 4 秒后：快周期已有 4 个样本（就绪），慢周期还没有
	for i := 0; i < 5; i++ {
		var f linalg.Vector
		for d := 0; d < linalg.Dim; d++ {
			f[d] = rng.NormFloat64()
		}
		e.Update(f, now)
		now += 1000
	}
	if !e.Ready() {
		t.Fatalf("fast horizon alone must make the estimator ready")
	}
	// 未就绪的慢周期被跳过、权重重归一之后混合结果必须有限
	sigma := e.Sigma()
	for i := 0; i < linalg.Dim; i++ {
		if math.IsNaN(sigma[i][i]) || sigma[i][i] < 1e-8 {
			t.Fatalf("blended diag[%d]=%g invalid", i, sigma[i][i])
		}
	}
}

func TestResetDropsState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 1
	cfg.DiagPrior = 1e-4
	e := newTestEstimator(t, cfg)

	f := linalg.Vector{1, 2, 3, 4, 5, 6}
	e.Update(f, 0)
	e.Update(linalg.Vector{2, 1, 4, 3, 6, 5}, cfg.HorizonMs)
	if !e.Ready() {
		t.Fatalf("want ready before reset")
	}
	e.Reset()
	if e.Ready() {
		t.Fatalf("reset must drop readiness")
	}
	if e.SampleCount() != 0 {
		t.Fatalf("reset must zero sample count, got %d", e.SampleCount())
	}
	sigma := e.Sigma()
	for i := 0; i < linalg.Dim; i++ {
		if sigma[i][i] != cfg.DiagPrior {
			t.Fatalf("diag[%d]=%g want prior %g", i, sigma[i][i], cfg.DiagPrior)
		}
		for j := 0; j < linalg.Dim; j++ {
			if i != j && sigma[i][j] != 0 {
				t.Fatalf("off-diag[%d][%d]=%g want 0 after reset", i, j, sigma[i][j])
			}
		}
	}
}

func TestDiagnostics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 1
	e := newTestEstimator(t, cfg)

	rng := rand.New(rand.NewSource(5))
	now := int64(0)
	for i := 0; i < 100; i++ {
		var f linalg.Vector
		for d := 0; d < linalg.Dim; d++ {
			f[d] = rng.NormFloat64()
		}
		e.Update(f, now)
		now += cfg.HorizonMs
	}
	diag := e.Diagnose()
	if !diag.PositiveDef {
		t.Fatalf("ridged EWMA of full-rank shocks should be PD")
	}
	if diag.MaxEigenvalue <= 0 || diag.Trace <= 0 {
		t.Fatalf("degenerate diagnostics: %+v", diag)
	}
	if diag.MaxEigenvalue > diag.Trace+1e-9 {
		t.Fatalf("max eigenvalue %g exceeds trace %g", diag.MaxEigenvalue, diag.Trace)
	}
	if diag.Samples != e.SampleCount() {
		t.Fatalf("samples mismatch")
	}
}
