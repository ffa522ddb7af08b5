package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"options-quoter-go/config"
	"options-quoter-go/edge"
	"options-quoter-go/engine"
	"options-quoter-go/infrastructure/logger"
	"options-quoter-go/inventory"
	"options-quoter-go/monitor"
	"options-quoter-go/pricing"
	"options-quoter-go/smile"
)

// 合成行情驱动的报价环路。交易所接入不在本仓库范围内，
// 这里用随机游走远期 + 合成成交流演示完整控制环路。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	tickMs := flag.Int("tickMs", 100, "合成tick间隔（毫秒）")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	zl, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zl.Close()

	mon := monitor.New(monitor.DefaultConfig())
	if cfg.MetricsAddr != "" {
		mon.Serve(cfg.MetricsAddr)
	}

	book := engine.NewBook()
	pricer := pricing.Black76Pricer{DF: 1}
	for sym, sc := range cfg.Symbols {
		eng, err := engine.New(sc, pricer, zl.Logger, mon)
		if err != nil {
			log.Fatalf("初始化引擎失败 %s: %v", sym, err)
		}
		if err := book.Add(eng); err != nil {
			log.Fatalf("注册引擎失败 %s: %v", sym, err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 热更新只下发风险与阶梯参数，经 channel 进入各 symbol 的处理序列
	reloads := make(map[string]chan engine.Config)
	for _, sym := range book.Symbols() {
		reloads[sym] = make(chan engine.Config, 1)
	}
	go func() {
		err := config.Watcher{Path: *cfgPath}.Start(ctx, func(next config.AppConfig) {
			for sym, sc := range next.Symbols {
				ch, ok := reloads[sym]
				if !ok {
					continue // 新 symbol 需要重启进程
				}
				select {
				case ch <- sc:
				default:
				}
			}
			zl.Info("配置热更新已下发")
		})
		if err != nil && ctx.Err() == nil {
			zl.Warn("配置监听退出", zap.Error(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	var wg sync.WaitGroup
	for _, sym := range book.Symbols() {
		eng, _ := book.Get(sym)
		wg.Add(1)
		// 每个 symbol 一个处理序列，引擎状态由该 goroutine 独占
		go func(e *engine.Engine, updates <-chan engine.Config) {
			defer wg.Done()
			runSymbol(ctx, e, zl.Logger, time.Duration(*tickMs)*time.Millisecond, updates)
		}(eng, reloads[sym])
	}
	wg.Wait()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// runSymbol 为单个 symbol 跑合成环路：标定 → tick → 偶发成交 → 报价。
func runSymbol(ctx context.Context, eng *engine.Engine, zl *zap.Logger, interval time.Duration, updates <-chan engine.Config) {
	rng := rand.New(rand.NewSource(hashSymbol(eng.Symbol())))
	forward := 100.0
	nowMs := time.Now().UnixMilli()

	// 合成行情标定初始共识曲面
	if err := eng.Calibrate(syntheticQuotes(forward), forward, nowMs, smile.DefaultCalibrateConfig()); err != nil {
		zl.Error("初始标定失败", zap.String("symbol", eng.Symbol()), zap.Error(err))
		return
	}

	var ids []string
	for _, strike := range []float64{80, 90, 100, 110, 120} {
		id := fmt.Sprintf("%s-C-%.0f", eng.Symbol(), strike)
		if err := eng.AddInstrument(engine.Instrument{ID: id, Strike: strike, IsCall: true}); err != nil {
			zl.Error("注册合约失败", zap.Error(err))
			return
		}
		ids = append(ids, id)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case sc := <-updates:
			ladders := make(map[string]edge.LadderConfig, len(sc.Inventory.Buckets))
			for _, b := range sc.Inventory.Buckets {
				ladders[b.Name] = b.Ladder
			}
			if err := eng.ApplyRuntimeConfig(sc.Risk, ladders); err != nil {
				zl.Warn("热更新被拒绝", zap.String("symbol", eng.Symbol()), zap.Error(err))
			}
			continue
		case <-ticker.C:
		}
		nowMs = time.Now().UnixMilli()
		forward *= 1 + 0.0008*rng.NormFloat64()
		sigmaMD := 0.02 * math.Abs(rng.NormFloat64())

		if err := eng.OnTick(engine.Tick{TimestampMs: nowMs, Forward: forward, SigmaMD: sigmaMD}); err != nil {
			zl.Error("tick失败", zap.String("symbol", eng.Symbol()), zap.Error(err))
			continue
		}

		// 约 5% 的 tick 产生一笔合成成交
		if rng.Float64() < 0.05 {
			feedTrade(eng, rng, ids, forward, nowMs, zl)
		}

		for _, id := range ids {
			q, err := eng.Quote(id, forward)
			if err != nil {
				zl.Debug("暂不可报价", zap.String("instrument", id), zap.Error(err))
				continue
			}
			zl.Debug("quote",
				zap.String("instrument", id),
				zap.Float64("bid", q.Bid), zap.Float64("ask", q.Ask),
				zap.Float64("sizeBid", q.SizeBid), zap.Float64("sizeAsk", q.SizeAsk),
				zap.Float64("skew", q.Skew), zap.String("pass", string(q.Reason)))
		}
	}
}

// feedTrade 构造一笔合成成交并记账。
func feedTrade(eng *engine.Engine, rng *rand.Rand, ids []string, forward float64, nowMs int64, zl *zap.Logger) {
	id := ids[rng.Intn(len(ids))]
	strike := 80.0 + 10*float64(indexOf(ids, id))
	tte := pricing.TimeToExpiry(nowMs, eng.ExpiryMs(), pricing.Act365, 1e-6)
	vol := pricing.SurfaceVol(eng.Consensus(), strike, tte, forward)
	delta := pricing.Delta(forward, strike, tte, vol, true, 1)
	bucket := eng.BucketFor(delta)
	if bucket == "" {
		return
	}
	size := float64(rng.Intn(20)+1) * sign(rng.Float64()-0.5)
	err := eng.OnTrade(id, inventory.Trade{
		Strike:      strike,
		SignedSize:  size,
		Vega:        pricing.Vega(forward, strike, tte, vol, 1),
		Bucket:      bucket,
		TimestampMs: nowMs,
	})
	if err != nil {
		zl.Warn("记账失败", zap.String("instrument", id), zap.Error(err))
	}
}

// syntheticQuotes 一条合成微笑，足够标定通过。
func syntheticQuotes(forward float64) []smile.MarketQuote {
	out := make([]smile.MarketQuote, 0, 9)
	for i := -4; i <= 4; i++ {
		k := 0.1 * float64(i)
		out = append(out, smile.MarketQuote{
			Strike:     forward * math.Exp(k),
			ImpliedVol: 0.5 + 0.3*k*k - 0.05*k,
			Weight:     1,
		})
	}
	return out
}

func hashSymbol(s string) int64 {
	h := int64(1469598103934665603)
	for _, c := range s {
		h = (h ^ int64(c)) * 1099511628211
	}
	return h
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return 0
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
