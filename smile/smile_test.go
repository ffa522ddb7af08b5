package smile

import (
	"math"
	"math/rand"
	"testing"
)

func randParams(rng *rand.Rand) Params {
	return Params{
		A:     0.01 + 0.09*rng.Float64(),
		B:     0.05 + 0.45*rng.Float64(),
		Rho:   -0.8 + 1.6*rng.Float64(),
		M:     -0.2 + 0.4*rng.Float64(),
		Sigma: 0.05 + 0.45*rng.Float64(),
	}
}

// 合法参数（未触发截断）下 FromMetrics(ToMetrics(p)) 必须回到 p。
func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	bounds := DefaultBounds()
	for i := 0; i < 1000; i++ {
		p := randParams(rng)
		got := FromMetrics(ToMetrics(p), p.M, bounds)
		if math.Abs(got.A-p.A) > 1e-9 ||
			math.Abs(got.B-p.B) > 1e-9 ||
			math.Abs(got.Rho-p.Rho) > 1e-9 ||
			math.Abs(got.Sigma-p.Sigma) > 1e-9 ||
			got.M != p.M {
			t.Fatalf("round trip mismatch: %+v -> %+v", p, got)
		}
	}
}

func TestS0FromWings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		mt := ToMetrics(randParams(rng))
		if math.Abs(S0FromWings(mt)-mt.S0) > 1e-12 {
			t.Fatalf("S0 from wings %g want %g", S0FromWings(mt), mt.S0)
		}
	}
}

func TestFromMetricsClamps(t *testing.T) {
	bounds := DefaultBounds()
	// 负翼部斜率被截断为非负，rho 被限制在 rhoMax 内
	p := FromMetrics(Metrics{L0: 0.05, S0: 0, C0: 1, SNeg: -0.5, SPos: 0.3}, 0, bounds)
	if p.B < bounds.BMin {
		t.Fatalf("b=%g below floor", p.B)
	}
	if math.Abs(p.Rho) > bounds.RhoMax {
		t.Fatalf("rho=%g out of range", p.Rho)
	}
	if p.Sigma < bounds.SigmaMin {
		t.Fatalf("sigma=%g below floor", p.Sigma)
	}
}

func TestCheckRejectsOutOfBounds(t *testing.T) {
	bounds := DefaultBounds()
	cases := []struct {
		name string
		mt   Metrics
	}{
		{"negative wing", Metrics{L0: 0.05, C0: 1, SNeg: -0.1, SPos: 0.2}},
		{"slope too large", Metrics{L0: 0.05, C0: 1, SNeg: 5, SPos: 5}},
		{"curvature too small", Metrics{L0: 0.05, C0: 0, SNeg: 0.2, SPos: 0.2}},
	}
	for _, tc := range cases {
		if err := Check(tc.mt, bounds); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
	ok := ToMetrics(Params{A: 0.02, B: 0.2, Rho: -0.3, M: 0, Sigma: 0.2})
	if err := Check(ok, bounds); err != nil {
		t.Fatalf("valid metrics rejected: %v", err)
	}
}

func TestTotalVariance(t *testing.T) {
	p := Params{A: 0.02, B: 0.1, Rho: -0.3, M: 0.05, Sigma: 0.4}
	// 中心处 w = a + b*sigma
	got := TotalVariance(p, p.M)
	want := p.A + p.B*p.Sigma
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("w(m)=%g want %g", got, want)
	}
	// 右翼斜率趋近 b(1+rho)
	k1, k2 := 50.0, 51.0
	slope := TotalVariance(p, k2) - TotalVariance(p, k1)
	if math.Abs(slope-p.B*(1+p.Rho)) > 1e-3 {
		t.Fatalf("right wing slope %g want %g", slope, p.B*(1+p.Rho))
	}
}
