package inventory

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"options-quoter-go/bump"
	"options-quoter-go/edge"
	"options-quoter-go/smile"
)

// ControllerConfig 账本与 bump 控制器配置。
type ControllerConfig struct {
	Buckets               []BucketConfig    `yaml:"buckets"`
	HysteresisFraction    float64           `yaml:"hysteresisFraction"`    // 相对 Vref 的滞回比例
	MinTradesForRecompute int               `yaml:"minTradesForRecompute"` // 成交笔数阈值
	Solver                bump.SolverConfig `yaml:"solver"`
	Bounds                smile.Bounds      `yaml:"bounds"`
	NegligibleEdge        float64           `yaml:"negligibleEdge"` // 低于该边际直接清空 bump
	MaxBackoffHalvings    int               `yaml:"maxBackoffHalvings"`
}

// DefaultControllerConfig 返回默认配置（不含 bucket 定义）。
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		HysteresisFraction:    0.1,
		MinTradesForRecompute: 10,
		Solver:                bump.DefaultSolverConfig(),
		Bounds:                smile.DefaultBounds(),
		NegligibleEdge:        0.01,
		MaxBackoffHalvings:    4,
	}
}

// Controller 库存账本 + bump 控制器。持有当前共识曲面与市场参数，
// 在滞回条件满足时对 bucket 做整体重算（bump 只整组替换，从不增量修补）。
type Controller struct {
	cfg       ControllerConfig
	log       *zap.Logger
	consensus smile.Params
	forward   float64
	tte       float64
	buckets   map[string]*bucketState
	order     []string // bucket 固定遍历顺序
}

// NewController 构造控制器；bucket 定义已在 config 包校验过区间不重叠。
func NewController(cfg ControllerConfig, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		cfg:     cfg,
		log:     log,
		buckets: make(map[string]*bucketState, len(cfg.Buckets)),
	}
	for _, bc := range cfg.Buckets {
		c.buckets[bc.Name] = &bucketState{
			cfg:     bc,
			state:   NeverUpdated,
			strikes: make(map[float64]*strikeExposure),
		}
		c.order = append(c.order, bc.Name)
	}
	return c
}

// SetConsensus 安装新的共识曲面并对已有 bump 做 rebase：
// 同一批行权价、同一边际要求，针对新曲面完整重解（不是平移）。
func (c *Controller) SetConsensus(p smile.Params, forward, tte float64) {
	c.consensus = p
	c.forward = forward
	c.tte = tte
	for _, b := range c.buckets {
		if len(b.bumps) == 0 {
			continue
		}
		b.bumps = c.solveBucket(b, b.cachedEdge)
	}
}

// SetMarket 更新远期与到期时间，不触发 rebase（锚点存于 k 空间，
// 重算时按当前市场换算）。
func (c *Controller) SetMarket(forward, tte float64) {
	c.forward = forward
	c.tte = tte
}

// SetLadder 热更新单个 bucket 的边际阶梯。参数先过 Validate；
// 已有 bump 的 bucket 被标记待重算，下个 tick 按新阶梯重解。
func (c *Controller) SetLadder(name string, lc edge.LadderConfig) error {
	if err := lc.Validate(); err != nil {
		return err
	}
	b, ok := c.buckets[name]
	if !ok {
		return fmt.Errorf("inventory: unknown bucket %q", name)
	}
	b.cfg.Ladder = lc
	if b.state == BumpsCurrent {
		b.state = PendingRecompute
		b.tradesSinceBump = c.cfg.MinTradesForRecompute
	}
	return nil
}

// Recompute 对滞回条件满足的 bucket 重算 bump，返回重算的 bucket 数。
func (c *Controller) Recompute() int {
	n := 0
	for _, name := range c.order {
		b := c.buckets[name]
		if !c.recomputeDue(b) {
			continue
		}
		required := edge.Edge(b.exposure, b.cfg.Ladder)
		b.cachedEdge = required
		if math.Abs(required) < c.cfg.NegligibleEdge {
			// 边际可忽略：清空而不是保留陈旧 bump
			b.bumps = nil
		} else {
			b.bumps = c.solveBucket(b, required)
		}
		b.state = BumpsCurrent
		b.exposureAtBump = b.exposure
		b.tradesSinceBump = 0
		n++
	}
	return n
}

// solveBucket 把价格边际换算成各锚点的方差增量并求解 RBF 幅度。
// 候选曲面无效时按比例连续减半回退；到达下限则放弃调整，
// 返回空集（退回未调整的共识曲面）并告警。
func (c *Controller) solveBucket(b *bucketState, required float64) []bump.Bump {
	targets := c.targets(b, required)
	if len(targets) == 0 {
		return nil
	}
	centers := make([]float64, len(targets))
	for i, t := range targets {
		centers[i] = t.K
	}

	scale := 1.0
	for h := 0; h <= c.cfg.MaxBackoffHalvings; h++ {
		scaled := make([]bump.Target, len(targets))
		for i, t := range targets {
			scaled[i] = bump.Target{K: t.K, DeltaW: t.DeltaW * scale}
		}
		bumps, err := bump.Build(scaled, centers, c.cfg.Solver, b.cfg.Name)
		if err != nil {
			c.log.Warn("bump solve failed, falling back to consensus",
				zap.String("bucket", b.cfg.Name), zap.Error(err))
			return nil
		}
		if c.surfaceValid(bumps, centers) {
			if scale < 1 {
				c.log.Warn("bump adjustment scaled back",
					zap.String("bucket", b.cfg.Name), zap.Float64("scale", scale))
			}
			return bumps
		}
		scale /= 2
	}
	c.log.Warn("no valid bumped surface within backoff floor, using consensus",
		zap.String("bucket", b.cfg.Name))
	return nil
}

// targets 锚点为该 bucket 有敞口的行权价；价格边际经 vega 与共识
// 隐含方差换算为总方差增量：Δw = 2*sqrt(w*T)*(edge/vega)。
func (c *Controller) targets(b *bucketState, required float64) []bump.Target {
	if c.forward <= 0 || c.tte <= 0 {
		return nil
	}
	strikes := make([]float64, 0, len(b.strikes))
	for k := range b.strikes {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	out := make([]bump.Target, 0, len(strikes))
	for _, strike := range strikes {
		se := b.strikes[strike]
		if se.vega <= 0 {
			continue
		}
		k := math.Log(strike / c.forward)
		w := smile.TotalVariance(c.consensus, k)
		if w <= 0 {
			continue
		}
		volEdge := required / se.vega
		out = append(out, bump.Target{
			K:      k,
			DeltaW: 2 * math.Sqrt(w*c.tte) * volEdge,
		})
	}
	return out
}

// surfaceValid 候选价格曲面必须在全部锚点与微笑中心保持正总方差。
func (c *Controller) surfaceValid(bumps []bump.Bump, anchors []float64) bool {
	s := bump.Surface{Consensus: c.consensus, Bumps: bumps}
	for _, k := range anchors {
		if s.TotalVariance(k) <= 0 {
			return false
		}
	}
	return s.TotalVariance(c.consensus.M) > 0
}

// Surface 当前价格曲面：共识曲面 + 全部 bucket 的 bump。
func (c *Controller) Surface() bump.Surface {
	var all []bump.Bump
	for _, name := range c.order {
		all = append(all, c.buckets[name].bumps...)
	}
	return bump.Surface{Consensus: c.consensus, Bumps: all}
}

// Consensus 当前共识曲面参数。
func (c *Controller) Consensus() smile.Params {
	return c.consensus
}

// HasBucket 判断 bucket 是否存在。
func (c *Controller) HasBucket(name string) bool {
	_, ok := c.buckets[name]
	return ok
}

// BucketFor 按绝对 delta 查找所属 bucket；无匹配返回空串。
func (c *Controller) BucketFor(delta float64) string {
	d := math.Abs(delta)
	for _, name := range c.order {
		bc := c.buckets[name].cfg
		if d >= bc.MinDelta && d < bc.MaxDelta {
			return name
		}
	}
	return ""
}
