package greeks

import (
	"math"

	"go.uber.org/zap"

	"options-quoter-go/linalg"
	"options-quoter-go/smile"
)

// Pricer 外部注入的定价函数，核心不绑定具体模型（默认实现见 pricing 包）。
// 波动率由调用方从曲面（共识或价格曲面）求出后传入。
type Pricer interface {
	Price(strike, t, forward, vol float64, isCall bool) float64
}

// Config 因子引擎配置。
type Config struct {
	Bounds    smile.Bounds
	DevChecks bool // 开发模式：每次 bump 后断言指标仍在合法域内
}

// Engine 受约束的中心差分因子引擎。
// 非有限中间值置零并按来源标签限频告警（每个标签只记一次），
// 这是实时报价环路的优雅降级策略。
type Engine struct {
	pricer Pricer
	cfg    Config
	log    *zap.Logger
	warned map[string]struct{}
}

// New 构造因子引擎。
func New(pricer Pricer, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		pricer: pricer,
		cfg:    cfg,
		log:    log,
		warned: make(map[string]struct{}),
	}
}

// step 相对优先、绝对兜底的差分步长。
func step(v float64) float64 {
	return math.Max(math.Abs(v)*1e-3, 1e-4)
}

// Factors 计算单合约对五个指标与远期的敏感度。
// 每个指标的 bump 保持其余不变量：S0 固定 b 只动 rho，翼部斜率
// bump 后由翼部重导 S0；远期单独作为定价输入直接 bump。
func (e *Engine) Factors(p smile.Params, strike, t, forward float64, isCall bool) FactorVector {
	mt := smile.ToMetrics(p)
	var out linalg.Vector

	for idx := IdxL0; idx <= IdxSPos; idx++ {
		v := metricValue(mt, idx)
		h := step(v)
		up := e.priceAt(bumpMetric(mt, idx, +h), p.M, strike, t, forward, isCall, Labels[idx])
		dn := e.priceAt(bumpMetric(mt, idx, -h), p.M, strike, t, forward, isCall, Labels[idx])
		out[idx] = e.sanitize((up-dn)/(2*h), Labels[idx])
	}

	hF := step(forward)
	upF := e.priceParams(p, strike, t, forward+hF, isCall)
	dnF := e.priceParams(p, strike, t, forward-hF, isCall)
	out[IdxF] = e.sanitize((upF-dnF)/(2*hF), Labels[IdxF])

	return NewFactorVector(out)
}

// priceAt 由 bump 后的指标重建合法曲面并定价。
func (e *Engine) priceAt(mt smile.Metrics, center, strike, t, forward float64, isCall bool, tag string) float64 {
	if e.cfg.DevChecks {
		// 正确性绊线：静默接受非法曲面会产出错误的风险数字
		if err := smile.Check(mt, e.cfg.Bounds); err != nil {
			e.warnOnce(tag, "bumped metrics out of bounds", err)
		}
	}
	p := smile.FromMetrics(mt, center, e.cfg.Bounds)
	return e.priceParams(p, strike, t, forward, isCall)
}

// priceParams 在给定 SVI 曲面下取隐含波动率并调用注入的定价函数。
func (e *Engine) priceParams(p smile.Params, strike, t, forward float64, isCall bool) float64 {
	k := math.Log(strike / forward)
	vol := smile.ImpliedVol(smile.TotalVariance(p, k), t)
	return e.pricer.Price(strike, t, forward, vol, isCall)
}

// sanitize 非有限值置零，按标签限频告警。
func (e *Engine) sanitize(v float64, tag string) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		e.warnOnce(tag, "non-finite greek, zeroed", nil)
		return 0
	}
	return v
}

func (e *Engine) warnOnce(tag, msg string, err error) {
	if _, ok := e.warned[tag]; ok {
		return
	}
	e.warned[tag] = struct{}{}
	if err != nil {
		e.log.Warn(msg, zap.String("factor", tag), zap.Error(err))
	} else {
		e.log.Warn(msg, zap.String("factor", tag))
	}
}

func metricValue(mt smile.Metrics, idx int) float64 {
	switch idx {
	case IdxL0:
		return mt.L0
	case IdxS0:
		return mt.S0
	case IdxC0:
		return mt.C0
	case IdxSNeg:
		return mt.SNeg
	case IdxSPos:
		return mt.SPos
	}
	return 0
}

// bumpMetric 按保持不变量的语义对单个指标加 h。
func bumpMetric(mt smile.Metrics, idx int, h float64) smile.Metrics {
	out := mt
	switch idx {
	case IdxL0:
		out.L0 += h
	case IdxC0:
		out.C0 += h
	case IdxS0:
		// b 固定，只动 rho；翼部随 S0 重导保持一致
		b := (mt.SPos + mt.SNeg) / 2
		out.S0 = mt.S0 + h
		out.SPos = b + out.S0
		out.SNeg = b - out.S0
	case IdxSNeg:
		out.SNeg = mt.SNeg + h
		out.S0 = smile.S0FromWings(out)
	case IdxSPos:
		out.SPos = mt.SPos + h
		out.S0 = smile.S0FromWings(out)
	}
	return out
}
