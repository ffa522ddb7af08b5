// Package risk 把协方差、库存与合约因子组合成报价：
// 偏移（skew）、分解价差与双边截断的报价量。
package risk

import (
	"math"

	"go.uber.org/zap"

	"options-quoter-go/greeks"
	"options-quoter-go/linalg"
)

// Config 二次风险模型参数。
type Config struct {
	Gamma        float64 `yaml:"gamma"`        // 风险厌恶
	Z            float64 `yaml:"z"`            // 模型价差倍数
	Eta          float64 `yaml:"eta"`          // 微观噪声价差系数
	Kappa        float64 `yaml:"kappa"`        // 库存价差系数
	L            float64 `yaml:"l"`            // 库存范数归一化尺度
	RidgeEpsilon float64 `yaml:"ridgeEpsilon"` // Λ 的对角岭
	FeeBuffer    float64 `yaml:"feeBuffer"`    // 固定费用缓冲
	QMax         float64 `yaml:"qMax"`         // 单边报价量上限
	MinEdge      float64 `yaml:"minEdge"`      // 低于该净边际不报量
}

// DefaultConfig 返回默认风险参数。
func DefaultConfig() Config {
	return Config{
		Gamma:        2.0,
		Z:            1.5,
		Eta:          0.5,
		Kappa:        1.0,
		L:            10.0,
		RidgeEpsilon: 1e-6,
		FeeBuffer:    0.05,
		QMax:         50,
		MinEdge:      0,
	}
}

// PassReason 不报量（零 size）的原因，区别于硬性 API 误用错误。
type PassReason string

const (
	PassNone         PassReason = ""
	PassEdgeBelowMin PassReason = "edge_below_min"
)

// SpreadComponents 价差分解。
type SpreadComponents struct {
	Fee       float64
	Noise     float64
	Model     float64
	Inventory float64
	Total     float64
}

// Quote 双边报价。SizeBid/SizeAsk 恒在 [0, QMax]。
type Quote struct {
	Bid     float64
	Ask     float64
	SizeBid float64
	SizeAsk float64
	Skew    float64
	Spread  SpreadComponents
	Reason  PassReason
}

// Request 单次报价请求。
type Request struct {
	Greeks  greeks.FactorVector
	TheoRaw float64 // 未调整的理论价
	SigmaMD float64 // 微观结构波动
	Mid     float64 // 市场中间价
}

// Factors 可观测性快照：λ、库存向量与 λ·I。
type Factors struct {
	Lambda        linalg.Vector
	Inventory     linalg.Vector
	LambdaDotInv  float64
	InventoryNorm float64
	StateTick     uint64
}

// Model 每 symbol 一个实例。UpdateState 必须先于同一 tick 内的
// ComputeQuote，顺序由 engine 保证；本身不做并发保护。
type Model struct {
	cfg    Config
	log    *zap.Logger
	warned map[string]struct{}

	lambdaMat linalg.Matrix // Λ = γ(Σ+ridge)
	lambdaVec linalg.Vector // λ = Λ·I
	inv       linalg.Vector
	invNorm   float64 // ||I||_Λ
	stateTick uint64
	hasState  bool
}

// NewModel 构造风险模型。
func NewModel(cfg Config, log *zap.Logger) *Model {
	if log == nil {
		log = zap.NewNop()
	}
	return &Model{cfg: cfg, log: log, warned: make(map[string]struct{})}
}

// SetConfig 热更新风险参数。Λ 相关变更自下一次 UpdateState 生效。
func (m *Model) SetConfig(cfg Config) {
	m.cfg = cfg
}

// UpdateState 用当前 tick 的 Σ 与库存因子向量推导 Λ、λ 与 ||I||_Λ。
func (m *Model) UpdateState(sigma linalg.Matrix, inv greeks.FactorVector, tick uint64) error {
	if err := inv.Check(); err != nil {
		return err
	}
	m.lambdaMat = linalg.Scale(linalg.AddDiagonal(sigma, m.cfg.RidgeEpsilon), m.cfg.Gamma)
	m.inv = inv.Values
	m.lambdaVec = linalg.MulVec(m.lambdaMat, m.inv)
	q := linalg.Quadratic(m.lambdaMat, m.inv)
	m.invNorm = math.Sqrt(math.Max(q, 0))
	m.stateTick = tick
	m.hasState = true
	return nil
}

// sizeDenomEps 报价量分母下限。
const sizeDenomEps = 1e-12

// ComputeQuote 生成双边报价。前置条件：UpdateState 已在同一 tick
// 调用过，否则返回 ErrStateStale（硬错误，不是行情问题）。
// “无报价机会”不报错：返回零 size 与 PassReason。
func (m *Model) ComputeQuote(req Request, tick uint64) (Quote, error) {
	if !m.hasState || tick != m.stateTick {
		return Quote{}, ErrStateStale
	}
	if err := req.Greeks.Check(); err != nil {
		return Quote{}, err
	}
	g := req.Greeks.Values

	skew := m.sanitize(linalg.Dot(m.lambdaVec, g), "skew")
	theoInv := req.TheoRaw - skew

	gLg := linalg.Quadratic(m.lambdaMat, g)
	sp := SpreadComponents{
		Fee:   m.cfg.FeeBuffer,
		Noise: m.sanitize(m.cfg.Eta*req.SigmaMD, "spread_noise"),
		Model: m.sanitize(m.cfg.Z*math.Sqrt(math.Max(gLg, 0)/m.cfg.Gamma), "spread_model"),
	}
	util := 1.0
	if m.cfg.L > 0 {
		util = math.Min(1, m.invNorm/m.cfg.L)
	}
	sp.Inventory = m.sanitize(m.cfg.Kappa*util*sp.Model, "spread_inventory")
	sp.Total = sp.Fee + sp.Noise + sp.Model + sp.Inventory

	q := Quote{
		Bid:    theoInv - sp.Total,
		Ask:    theoInv + sp.Total,
		Skew:   skew,
		Spread: sp,
	}

	denom := math.Max(gLg, sizeDenomEps)
	q.SizeBid = m.sizeFor(theoInv, math.Min(q.Bid, req.Mid), sp, denom)
	q.SizeAsk = m.sizeFor(theoInv, math.Max(q.Ask, req.Mid), sp, denom)
	if q.SizeBid == 0 && q.SizeAsk == 0 {
		q.Reason = PassEdgeBelowMin
	}
	return q, nil
}

// sizeFor 单边报价量：净边际 / max(gᵀΛg, ε)，截断到 [0, QMax]。
func (m *Model) sizeFor(theoInv, clampedQuote float64, sp SpreadComponents, denom float64) float64 {
	edgeToMid := math.Abs(theoInv - clampedQuote)
	net := edgeToMid - (sp.Fee + sp.Noise)
	if net < m.cfg.MinEdge {
		return 0
	}
	size := net / denom
	if math.IsNaN(size) || math.IsInf(size, 0) {
		m.warnOnce("size")
		return 0
	}
	if size < 0 {
		return 0
	}
	return math.Min(size, m.cfg.QMax)
}

// Factors 观测快照；未初始化时零值。
func (m *Model) Factors() Factors {
	return Factors{
		Lambda:        m.lambdaVec,
		Inventory:     m.inv,
		LambdaDotInv:  linalg.Dot(m.lambdaVec, m.inv),
		InventoryNorm: m.invNorm,
		StateTick:     m.stateTick,
	}
}

// sanitize 非有限值置零，按来源标签只告警一次，报价环路继续运转。
func (m *Model) sanitize(v float64, tag string) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		m.warnOnce(tag)
		return 0
	}
	return v
}

func (m *Model) warnOnce(tag string) {
	if _, ok := m.warned[tag]; ok {
		return
	}
	m.warned[tag] = struct{}{}
	m.log.Warn("non-finite value zeroed", zap.String("source", tag))
}
