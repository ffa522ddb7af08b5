// Package inventory 维护分桶的签名 vega 敞口，并通过滞回逻辑驱动
// 局部 bump 的重算。状态归属 symbol 的处理序列，无内部锁。
package inventory

import (
	"fmt"

	"options-quoter-go/bump"
	"options-quoter-go/edge"
)

// State bucket 的 bump 状态机。
type State int

const (
	// NeverUpdated 从未计算过 bump。
	NeverUpdated State = iota
	// PendingRecompute 有新成交，等待滞回条件满足。
	PendingRecompute
	// BumpsCurrent bump 与当前敞口一致。
	BumpsCurrent
)

func (s State) String() string {
	switch s {
	case NeverUpdated:
		return "never_updated"
	case PendingRecompute:
		return "pending_recompute"
	case BumpsCurrent:
		return "bumps_current"
	}
	return "unknown"
}

// BucketConfig 一个命名 delta 区间及其边际阶梯。
type BucketConfig struct {
	Name     string            `yaml:"name"`
	MinDelta float64           `yaml:"minDelta"` // 绝对 delta 区间 [min, max)
	MaxDelta float64           `yaml:"maxDelta"`
	Ladder   edge.LadderConfig `yaml:"ladder"`
}

// Trade 核心消费的成交记录。SignedSize 以做市商方向计：
// 做市商卖出为负。签名 vega 敞口 = SignedSize * Vega。
type Trade struct {
	Strike      float64
	SignedSize  float64
	Vega        float64
	Bucket      string
	TimestampMs int64
}

// strikeExposure 单行权价的累计敞口与最近 vega。
type strikeExposure struct {
	exposure float64
	vega     float64
}

// bucketState bucket 全部可变状态。
type bucketState struct {
	cfg             BucketConfig
	state           State
	exposure        float64 // 累计签名 vega 敞口
	tradeCount      int64
	lastUpdateMs    int64
	cachedEdge      float64
	exposureAtBump  float64 // 上次 bump 计算时的敞口
	tradesSinceBump int
	strikes         map[float64]*strikeExposure
	bumps           []bump.Bump
}

// BucketSummary 对外只读快照。
type BucketSummary struct {
	Name       string
	Exposure   float64
	TradeCount int64
	Edge       float64
	State      string
	BumpCount  int
}

// Summary 库存总览。
type Summary struct {
	TotalVega float64
	ByBucket  []BucketSummary
}

// OnTrade 记账一笔成交；bucket 未知属于集成错误。
func (c *Controller) OnTrade(t Trade) error {
	b, ok := c.buckets[t.Bucket]
	if !ok {
		return fmt.Errorf("inventory: unknown bucket %q", t.Bucket)
	}
	exp := t.SignedSize * t.Vega
	b.exposure += exp
	b.tradeCount++
	b.tradesSinceBump++
	b.lastUpdateMs = t.TimestampMs
	se, ok := b.strikes[t.Strike]
	if !ok {
		se = &strikeExposure{}
		b.strikes[t.Strike] = se
	}
	se.exposure += exp
	if t.Vega > 0 {
		se.vega = t.Vega
	}
	if b.state != NeverUpdated {
		b.state = PendingRecompute
	}
	return nil
}

// recomputeDue 滞回条件：从未计算过，或自上次 bump 以来的敞口变化
// 超过 Vref 的滞回比例，或成交笔数达到阈值。
func (c *Controller) recomputeDue(b *bucketState) bool {
	switch b.state {
	case NeverUpdated:
		return b.tradeCount > 0
	case BumpsCurrent:
		return false
	}
	if abs(b.exposure-b.exposureAtBump) > b.cfg.Ladder.Vref*c.cfg.HysteresisFraction {
		return true
	}
	return b.tradesSinceBump >= c.cfg.MinTradesForRecompute
}

// Summary 当前库存快照。
func (c *Controller) Summary() Summary {
	out := Summary{}
	for _, name := range c.order {
		b := c.buckets[name]
		out.TotalVega += b.exposure
		out.ByBucket = append(out.ByBucket, BucketSummary{
			Name:       b.cfg.Name,
			Exposure:   b.exposure,
			TradeCount: b.tradeCount,
			Edge:       b.cachedEdge,
			State:      b.state.String(),
			BumpCount:  len(b.bumps),
		})
	}
	return out
}

// Reset 丢弃全部账本与 bump（新交易时段）。
func (c *Controller) Reset() {
	for _, b := range c.buckets {
		b.state = NeverUpdated
		b.exposure = 0
		b.tradeCount = 0
		b.lastUpdateMs = 0
		b.cachedEdge = 0
		b.exposureAtBump = 0
		b.tradesSinceBump = 0
		b.strikes = make(map[float64]*strikeExposure)
		b.bumps = nil
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
