package smile

import (
	"errors"
	"math"
	"testing"
)

// quotesFrom 用已知参数生成无噪声报价。
func quotesFrom(p Params, forward, tte float64, ks []float64) []MarketQuote {
	out := make([]MarketQuote, 0, len(ks))
	for _, k := range ks {
		w := TotalVariance(p, k)
		out = append(out, MarketQuote{
			Strike:     forward * math.Exp(k),
			ImpliedVol: math.Sqrt(w / tte),
			Weight:     1,
		})
	}
	return out
}

func TestCalibrateRecovers(t *testing.T) {
	// m=0、sigma=0.4 都落在搜索网格上，内层闭式解应近似精确复原
	truth := Params{A: 0.02, B: 0.1, Rho: -0.3, M: 0, Sigma: 0.4}
	forward, tte := 100.0, 0.25
	ks := []float64{-0.4, -0.3, -0.2, -0.1, 0, 0.1, 0.2, 0.3, 0.4}

	got, err := Calibrate(quotesFrom(truth, forward, tte, ks), forward, tte, DefaultCalibrateConfig())
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	for _, k := range ks {
		dw := math.Abs(TotalVariance(got, k) - TotalVariance(truth, k))
		if dw > 1e-6 {
			t.Fatalf("variance mismatch at k=%g: %g", k, dw)
		}
	}
}

func TestCalibrateInsufficientQuotes(t *testing.T) {
	truth := Params{A: 0.02, B: 0.1, Rho: -0.3, M: 0, Sigma: 0.4}
	q := quotesFrom(truth, 100, 0.25, []float64{-0.1, 0, 0.1})
	if _, err := Calibrate(q, 100, 0.25, DefaultCalibrateConfig()); !errors.Is(err, ErrCalibration) {
		t.Fatalf("want ErrCalibration, got %v", err)
	}
}

func TestCalibrateIgnoresIlliquid(t *testing.T) {
	// 权重为零的报价不可用，全部非法时必须显式失败
	q := []MarketQuote{
		{Strike: 90, ImpliedVol: 0.5, Weight: 0},
		{Strike: 100, ImpliedVol: 0.5, Weight: 0},
		{Strike: 110, ImpliedVol: 0.5, Weight: 0},
		{Strike: 120, ImpliedVol: 0.5, Weight: 0},
		{Strike: 130, ImpliedVol: 0.5, Weight: 0},
	}
	if _, err := Calibrate(q, 100, 0.25, DefaultCalibrateConfig()); !errors.Is(err, ErrCalibration) {
		t.Fatalf("want ErrCalibration, got %v", err)
	}
}

func TestCalibrateBadMarket(t *testing.T) {
	if _, err := Calibrate(nil, 0, 0.25, DefaultCalibrateConfig()); !errors.Is(err, ErrCalibration) {
		t.Fatalf("want ErrCalibration, got %v", err)
	}
}
