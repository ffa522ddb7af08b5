package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-quoter-go/edge"
	"options-quoter-go/smile"
)

var testConsensus = smile.Params{A: 0.015, B: 0.12, Rho: -0.25, M: 0.02, Sigma: 0.2}

func newTestController() *Controller {
	cfg := DefaultControllerConfig()
	cfg.Buckets = []BucketConfig{
		{
			Name:     "atm",
			MinDelta: 0.4,
			MaxDelta: 1.01,
			Ladder:   edge.LadderConfig{E0: 0.5, Kappa: 2.0, Gamma: 1.2, Vref: 200},
		},
		{
			Name:     "rr25",
			MinDelta: 0.15,
			MaxDelta: 0.4,
			Ladder:   edge.LadderConfig{E0: 1.0, Kappa: 3.0, Gamma: 1.4, Vref: 100},
		},
	}
	c := NewController(cfg, nil)
	c.SetConsensus(testConsensus, 100, 0.25)
	return c
}

func sellTrade(size, vega float64, ts int64) Trade {
	return Trade{Strike: 100, SignedSize: -size, Vega: vega, Bucket: "rr25", TimestampMs: ts}
}

func TestStateMachineLifecycle(t *testing.T) {
	c := newTestController()
	b := c.buckets["rr25"]
	require.Equal(t, NeverUpdated, b.state)

	// 首笔成交后：NeverUpdated 桶立即到期重算
	require.NoError(t, c.OnTrade(sellTrade(100, 0.5, 1000)))
	require.Equal(t, NeverUpdated, b.state)
	assert.Equal(t, 1, c.Recompute())
	assert.Equal(t, BumpsCurrent, b.state)
	assert.InDelta(t, -50.0, b.exposure, 1e-12)
	assert.InDelta(t, 2.1368, b.cachedEdge, 1e-3)
	assert.NotEmpty(t, b.bumps)

	// 新成交把状态打回 PendingRecompute
	require.NoError(t, c.OnTrade(sellTrade(2, 0.5, 2000)))
	assert.Equal(t, PendingRecompute, b.state)
}

func TestHysteresisSuppressesSmallChanges(t *testing.T) {
	c := newTestController()
	b := c.buckets["rr25"]
	require.NoError(t, c.OnTrade(sellTrade(100, 0.5, 1000)))
	require.Equal(t, 1, c.Recompute())

	// 滞回阈值 = 0.1 * Vref = 10 vega；5 vega 的变化不触发
	require.NoError(t, c.OnTrade(sellTrade(10, 0.5, 2000)))
	assert.Equal(t, 0, c.Recompute())
	assert.Equal(t, PendingRecompute, b.state)

	// 再来 10 vega，累计 15 超过阈值
	require.NoError(t, c.OnTrade(sellTrade(20, 0.5, 3000)))
	assert.Equal(t, 1, c.Recompute())
	assert.Equal(t, BumpsCurrent, b.state)
}

func TestTradeCountForcesRecompute(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.OnTrade(sellTrade(100, 0.5, 1000)))
	require.Equal(t, 1, c.Recompute())

	// 每笔 0.5 vega，远低于滞回阈值；凑满笔数阈值后仍须重算
	for i := 0; i < c.cfg.MinTradesForRecompute; i++ {
		require.NoError(t, c.OnTrade(sellTrade(1, 0.5, int64(2000+i))))
	}
	assert.Equal(t, 1, c.Recompute())
}

func TestNegligibleEdgeClearsBumps(t *testing.T) {
	c := newTestController()
	b := c.buckets["rr25"]
	require.NoError(t, c.OnTrade(sellTrade(100, 0.5, 1000)))
	require.Equal(t, 1, c.Recompute())
	require.NotEmpty(t, b.bumps)

	// 反向平仓回到零敞口：edge(0)=0，bump 清空而不是保留陈旧调整
	require.NoError(t, c.OnTrade(Trade{Strike: 100, SignedSize: 100, Vega: 0.5, Bucket: "rr25", TimestampMs: 2000}))
	require.Equal(t, 1, c.Recompute())
	assert.Empty(t, b.bumps)
	assert.Equal(t, BumpsCurrent, b.state)
	assert.Zero(t, b.cachedEdge)
}

func TestConsensusRebaseResolvesSameAnchors(t *testing.T) {
	c := newTestController()
	b := c.buckets["rr25"]
	require.NoError(t, c.OnTrade(sellTrade(100, 0.5, 1000)))
	require.Equal(t, 1, c.Recompute())
	require.NotEmpty(t, b.bumps)

	var before, beforeAlphas []float64
	for _, bp := range b.bumps {
		before = append(before, bp.K)
		beforeAlphas = append(beforeAlphas, bp.Alpha)
	}

	// 抬高共识水平：同一批锚点、同一边际要求，针对新曲面重解
	shifted := testConsensus
	shifted.A += 0.02
	c.SetConsensus(shifted, 100, 0.25)

	require.Len(t, b.bumps, len(before))
	for i, bp := range b.bumps {
		assert.Equal(t, before[i], bp.K, "rebase must keep anchor strikes")
		assert.NotEqual(t, beforeAlphas[i], bp.Alpha, "rebase must re-solve, not translate")
	}
	// rebase 不改变账本状态
	assert.Equal(t, BumpsCurrent, b.state)
}

func TestBackoffGivesUpToConsensus(t *testing.T) {
	c := newTestController()
	b := c.buckets["rr25"]
	// 巨大多头敞口要求的负方差调整远超共识总方差，
	// 连续减半到下限后必须放弃并退回共识曲面
	require.NoError(t, c.OnTrade(Trade{Strike: 100, SignedSize: 2000, Vega: 0.5, Bucket: "rr25", TimestampMs: 1000}))
	require.Equal(t, 1, c.Recompute())
	assert.Empty(t, b.bumps)
	assert.Equal(t, BumpsCurrent, b.state)

	s := c.Surface()
	assert.Empty(t, s.Bumps)
	assert.Equal(t, testConsensus, s.Consensus)
}

func TestUnknownBucketRejected(t *testing.T) {
	c := newTestController()
	err := c.OnTrade(Trade{Strike: 100, SignedSize: 1, Vega: 0.5, Bucket: "rr10", TimestampMs: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bucket")
}

func TestBucketForDeltaRanges(t *testing.T) {
	c := newTestController()
	assert.Equal(t, "atm", c.BucketFor(0.55))
	assert.Equal(t, "atm", c.BucketFor(-0.55))
	assert.Equal(t, "rr25", c.BucketFor(0.25))
	assert.Equal(t, "rr25", c.BucketFor(0.15)) // 区间左闭
	assert.Equal(t, "atm", c.BucketFor(0.4))   // 区间右开
	assert.Equal(t, "", c.BucketFor(0.05))
}

func TestSetLadderMarksPending(t *testing.T) {
	c := newTestController()
	b := c.buckets["rr25"]
	require.NoError(t, c.OnTrade(sellTrade(100, 0.5, 1000)))
	require.Equal(t, 1, c.Recompute())
	oldEdge := b.cachedEdge

	// 更陡的阶梯：bump 当前态打回待算，下个 tick 按新参数重解
	require.NoError(t, c.SetLadder("rr25", edge.LadderConfig{E0: 2.0, Kappa: 6.0, Gamma: 1.4, Vref: 100}))
	assert.Equal(t, PendingRecompute, b.state)
	require.Equal(t, 1, c.Recompute())
	assert.Greater(t, b.cachedEdge, oldEdge)

	// 非法阶梯与未知 bucket 被拒绝且不改状态
	require.Error(t, c.SetLadder("rr25", edge.LadderConfig{E0: 1, Kappa: 1, Gamma: 0.5, Vref: 100}))
	require.Error(t, c.SetLadder("rr10", edge.LadderConfig{E0: 1, Kappa: 1, Gamma: 1.2, Vref: 100}))
	assert.True(t, c.HasBucket("rr25"))
	assert.False(t, c.HasBucket("rr10"))
}

func TestSummaryAndReset(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.OnTrade(sellTrade(100, 0.5, 1000)))
	require.NoError(t, c.OnTrade(Trade{Strike: 110, SignedSize: -10, Vega: 0.3, Bucket: "atm", TimestampMs: 1100}))
	c.Recompute()

	sum := c.Summary()
	require.Len(t, sum.ByBucket, 2)
	assert.InDelta(t, -53.0, sum.TotalVega, 1e-12)
	assert.Equal(t, "atm", sum.ByBucket[0].Name) // 固定遍历顺序
	assert.Equal(t, "rr25", sum.ByBucket[1].Name)
	assert.Equal(t, int64(1), sum.ByBucket[1].TradeCount)

	c.Reset()
	sum = c.Summary()
	assert.Zero(t, sum.TotalVega)
	for _, bs := range sum.ByBucket {
		assert.Zero(t, bs.Exposure)
		assert.Zero(t, bs.TradeCount)
		assert.Equal(t, "never_updated", bs.State)
		assert.Zero(t, bs.BumpCount)
	}
}
