// Package engine 串起单 symbol 的报价控制环路：
// 成交 → 库存账本 → (滞回) bump 重算 → 因子协方差更新 → 风险状态 →
// 全部合约报价。tick 内步骤严格有序；引擎状态由其处理序列独占，
// 无内部锁（多 symbol 并发由 Book 分发，见 book.go）。
package engine

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"options-quoter-go/covariance"
	"options-quoter-go/edge"
	"options-quoter-go/greeks"
	"options-quoter-go/inventory"
	"options-quoter-go/linalg"
	"options-quoter-go/monitor"
	"options-quoter-go/pricing"
	"options-quoter-go/risk"
	"options-quoter-go/smile"
)

// ErrUnknownInstrument 请求报价的合约未注册。
var ErrUnknownInstrument = errors.New("engine: unknown instrument")

// Instrument 被报价的合约与当前签名持仓。
type Instrument struct {
	ID       string
	Strike   float64
	IsCall   bool
	Position float64 // 签名合约数，做市商卖出为负
}

// Tick 单次市场更新。时间戳由调用方显式传入，核心不读墙钟。
type Tick struct {
	TimestampMs int64
	Forward     float64
	SigmaMD     float64 // 微观结构波动
}

// Config 单 symbol 引擎配置。
type Config struct {
	Symbol     string                     `yaml:"symbol"`
	ExpiryMs   int64                      `yaml:"expiryMs"`
	DayCount   pricing.DayCount           `yaml:"dayCount"`
	TteFloor   float64                    `yaml:"tteFloor"`
	Inventory  inventory.ControllerConfig `yaml:"inventory"`
	Covariance covariance.Config          `yaml:"covariance"`
	Risk       risk.Config                `yaml:"risk"`
	DevChecks  bool                       `yaml:"devChecks"`
}

// Engine 单 (symbol, expiry) 控制环路。
type Engine struct {
	cfg    Config
	log    *zap.Logger
	mon    *monitor.Monitor
	pricer greeks.Pricer

	ledger  *inventory.Controller
	cov     *covariance.Estimator
	model   *risk.Model
	factors *greeks.Engine

	instruments map[string]*Instrument
	order       []string

	forward float64
	tte     float64
	sigmaMD float64
	tick    uint64
}

// New 构造引擎。配置错误（协方差权重、bucket 定义等）在此处失败。
func New(cfg Config, pricer greeks.Pricer, log *zap.Logger, mon *monitor.Monitor) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Symbol == "" {
		return nil, errors.New("engine: symbol is required")
	}
	if cfg.ExpiryMs <= 0 {
		return nil, errors.New("engine: expiryMs is required")
	}
	if cfg.TteFloor <= 0 {
		cfg.TteFloor = 1e-6
	}
	cov, err := covariance.New(cfg.Covariance)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	log = log.With(zap.String("symbol", cfg.Symbol))
	return &Engine{
		cfg:    cfg,
		log:    log,
		mon:    mon,
		pricer: pricer,
		ledger: inventory.NewController(cfg.Inventory, log),
		cov:    cov,
		model:  risk.NewModel(cfg.Risk, log),
		factors: greeks.New(pricer, greeks.Config{
			Bounds:    cfg.Inventory.Bounds,
			DevChecks: cfg.DevChecks,
		}, log),
		instruments: make(map[string]*Instrument),
	}, nil
}

// AddInstrument 注册合约。
func (e *Engine) AddInstrument(inst Instrument) error {
	if inst.ID == "" || inst.Strike <= 0 {
		return fmt.Errorf("engine: invalid instrument %+v", inst)
	}
	if _, ok := e.instruments[inst.ID]; ok {
		return fmt.Errorf("engine: duplicate instrument %q", inst.ID)
	}
	cp := inst
	e.instruments[inst.ID] = &cp
	e.order = append(e.order, inst.ID)
	return nil
}

// SetConsensus 安装新共识曲面并 rebase 现有 bump。出界曲面被拒绝，
// 之前的曲面保持生效。
func (e *Engine) SetConsensus(p smile.Params, forward float64, nowMs int64) error {
	if err := smile.CheckParams(p, e.cfg.Inventory.Bounds); err != nil {
		return err
	}
	e.forward = forward
	e.tte = pricing.TimeToExpiry(nowMs, e.cfg.ExpiryMs, e.cfg.DayCount, e.cfg.TteFloor)
	e.ledger.SetConsensus(p, forward, e.tte)
	return nil
}

// Calibrate 对市场报价标定共识曲面。失败显式上抛，不安装部分曲面。
func (e *Engine) Calibrate(quotes []smile.MarketQuote, forward float64, nowMs int64, cfg smile.CalibrateConfig) error {
	p, err := smile.Calibrate(quotes, forward,
		pricing.TimeToExpiry(nowMs, e.cfg.ExpiryMs, e.cfg.DayCount, e.cfg.TteFloor), cfg)
	if e.mon != nil {
		e.mon.RecordCalibration(e.cfg.Symbol, err == nil)
	}
	if err != nil {
		return err
	}
	return e.SetConsensus(p, forward, nowMs)
}

// OnTrade 记账一笔成交并更新合约持仓。
func (e *Engine) OnTrade(instrumentID string, t inventory.Trade) error {
	inst, ok := e.instruments[instrumentID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInstrument, instrumentID)
	}
	if err := e.ledger.OnTrade(t); err != nil {
		return err
	}
	inst.Position += t.SignedSize
	if e.mon != nil {
		e.mon.RecordTrade(e.cfg.Symbol)
	}
	return nil
}

// OnTick 严格按序推进一个 tick：市场更新 →（滞回）bump 重算 →
// 协方差采样 → 风险状态。之后 Quote 才可读取本 tick 的 Σ/Λ。
func (e *Engine) OnTick(t Tick) error {
	if t.Forward <= 0 {
		return fmt.Errorf("engine: non-positive forward %g", t.Forward)
	}
	e.tick++
	e.forward = t.Forward
	e.sigmaMD = t.SigmaMD
	e.tte = pricing.TimeToExpiry(t.TimestampMs, e.cfg.ExpiryMs, e.cfg.DayCount, e.cfg.TteFloor)
	e.ledger.SetMarket(t.Forward, e.tte)

	if n := e.ledger.Recompute(); n > 0 && e.mon != nil {
		e.mon.RecordBumpRecomputes(e.cfg.Symbol, n)
	}

	e.cov.Update(e.factorLevels(), t.TimestampMs)

	if e.cov.Ready() {
		if err := e.model.UpdateState(e.cov.Sigma(), greeks.NewFactorVector(e.inventoryVector()), e.tick); err != nil {
			return err
		}
	}

	if e.mon != nil {
		e.mon.RecordTick(e.cfg.Symbol)
		e.mon.RecordCovUpdate(e.cfg.Symbol)
		sum := e.ledger.Summary()
		e.mon.SetInventoryVega(e.cfg.Symbol, sum.TotalVega)
		for _, b := range sum.ByBucket {
			e.mon.SetBucketExposure(e.cfg.Symbol, b.Name, b.Exposure)
		}
		d := e.cov.Diagnose()
		e.mon.SetCovDiagnostics(e.cfg.Symbol, d.MaxEigenvalue, d.MinDiagonal)
	}
	return nil
}

// factorLevels 当前因子水平向量 [L0,S0,C0,S_neg,S_pos,F]，
// 协方差估计的输入（因子冲击 = 相邻水平之差）。
func (e *Engine) factorLevels() linalg.Vector {
	mt := smile.ToMetrics(e.ledger.Consensus())
	return linalg.Vector{mt.L0, mt.S0, mt.C0, mt.SNeg, mt.SPos, e.forward}
}

// inventoryVector 组合库存因子向量 I = Σ 持仓_i · g_i。
func (e *Engine) inventoryVector() linalg.Vector {
	var inv linalg.Vector
	cc := e.ledger.Consensus()
	for _, id := range e.order {
		inst := e.instruments[id]
		if inst.Position == 0 {
			continue
		}
		g := e.factors.Factors(cc, inst.Strike, e.tte, e.forward, inst.IsCall)
		for i := 0; i < linalg.Dim; i++ {
			inv[i] += inst.Position * g.Values[i]
		}
	}
	return inv
}

// Quote 为单个合约生成报价。前置条件：本 tick 已完成 OnTick 且
// 协方差就绪；违反前置是硬错误，“无机会报价”则返回零 size 报价。
func (e *Engine) Quote(instrumentID string, mid float64) (risk.Quote, error) {
	inst, ok := e.instruments[instrumentID]
	if !ok {
		return risk.Quote{}, fmt.Errorf("%w: %q", ErrUnknownInstrument, instrumentID)
	}
	if !e.cov.Ready() {
		return risk.Quote{}, risk.ErrNotReady
	}

	surface := e.ledger.Surface()
	k := logMoneyness(inst.Strike, e.forward)
	vol := smile.ImpliedVol(surface.TotalVariance(k), e.tte)
	theoRaw := e.pricer.Price(inst.Strike, e.tte, e.forward, vol, inst.IsCall)

	g := e.factors.Factors(e.ledger.Consensus(), inst.Strike, e.tte, e.forward, inst.IsCall)
	q, err := e.model.ComputeQuote(risk.Request{
		Greeks:  g,
		TheoRaw: theoRaw,
		SigmaMD: e.sigmaMD,
		Mid:     mid,
	}, e.tick)
	if err != nil {
		return risk.Quote{}, err
	}
	if e.mon != nil {
		e.mon.RecordQuote(e.cfg.Symbol)
		e.mon.SetQuoteState(e.cfg.Symbol, q.Skew, q.Spread.Total)
		if q.Reason != risk.PassNone {
			e.mon.RecordPass(e.cfg.Symbol, string(q.Reason))
		}
	}
	return q, nil
}

// ApplyRuntimeConfig 热更新风险与边际阶梯参数。只接受这两类参数：
// 曲面、bucket 定义与协方差状态从不热替换。必须在该 symbol 的
// 处理序列里调用。
func (e *Engine) ApplyRuntimeConfig(rc risk.Config, ladders map[string]edge.LadderConfig) error {
	// 先整体校验再应用，拒绝时不留下半套参数
	for name, lc := range ladders {
		if err := lc.Validate(); err != nil {
			return fmt.Errorf("engine: ladder %q: %w", name, err)
		}
		if !e.ledger.HasBucket(name) {
			return fmt.Errorf("engine: ladder for unknown bucket %q", name)
		}
	}
	for name, lc := range ladders {
		if err := e.ledger.SetLadder(name, lc); err != nil {
			return err
		}
	}
	e.model.SetConfig(rc)
	e.cfg.Risk = rc
	e.log.Info("runtime config applied",
		zap.Int("ladders", len(ladders)), zap.Float64("riskGamma", rc.Gamma))
	return nil
}

// InventorySummary 库存总览。
func (e *Engine) InventorySummary() inventory.Summary {
	return e.ledger.Summary()
}

// Factors 风险因子观测快照。
func (e *Engine) Factors() risk.Factors {
	return e.model.Factors()
}

// Reset 新时段：清空账本与 bump，协方差回到对角先验，风险状态作废。
func (e *Engine) Reset() {
	e.ledger.Reset()
	e.cov.Reset()
	e.model = risk.NewModel(e.cfg.Risk, e.log)
	for _, inst := range e.instruments {
		inst.Position = 0
	}
	e.tick = 0
	e.log.Info("engine state reset")
}

// Symbol 引擎归属的 symbol。
func (e *Engine) Symbol() string { return e.cfg.Symbol }

// Consensus 当前共识曲面参数（只读）。
func (e *Engine) Consensus() smile.Params { return e.ledger.Consensus() }

// BucketFor 按绝对 delta 查找所属 bucket。
func (e *Engine) BucketFor(delta float64) string { return e.ledger.BucketFor(delta) }

// ExpiryMs 该引擎覆盖的到期（毫秒时间戳）。
func (e *Engine) ExpiryMs() int64 { return e.cfg.ExpiryMs }

func logMoneyness(strike, forward float64) float64 {
	return math.Log(strike / forward)
}
