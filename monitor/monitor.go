// Package monitor 报价核心的 Prometheus 指标收集器。
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor 每进程一个实例，使用私有 registry。
type Monitor struct {
	registry *prometheus.Registry

	// 控制环路指标
	ticksTotal      *prometheus.CounterVec
	tradesTotal     *prometheus.CounterVec
	quotesTotal     *prometheus.CounterVec
	passesTotal     *prometheus.CounterVec
	bumpRecomputes  *prometheus.CounterVec
	covSamples      *prometheus.CounterVec
	calibrations    *prometheus.CounterVec
	calibrationErrs *prometheus.CounterVec

	// 状态指标
	inventoryVega  *prometheus.GaugeVec
	bucketExposure *prometheus.GaugeVec
	spreadTotal    *prometheus.GaugeVec
	quoteSkew      *prometheus.GaugeVec
	covMaxEigen    *prometheus.GaugeVec
	covMinDiag     *prometheus.GaugeVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "oq",
		Subsystem: "core",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	bySymbol := []string{"symbol"}
	m := &Monitor{
		registry: reg,
		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "ticks_total", Help: "处理的tick总数",
		}, bySymbol),
		tradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "trades_total", Help: "记账成交总数",
		}, bySymbol),
		quotesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "quotes_total", Help: "生成报价总数",
		}, bySymbol),
		passesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "quote_passes_total", Help: "零size报价总数（按原因）",
		}, []string{"symbol", "reason"}),
		bumpRecomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "bump_recomputes_total", Help: "bump重算总数",
		}, bySymbol),
		covSamples: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "covariance_updates_total", Help: "协方差更新总数",
		}, bySymbol),
		calibrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "calibrations_total", Help: "标定成功总数",
		}, bySymbol),
		calibrationErrs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "calibration_errors_total", Help: "标定失败总数",
		}, bySymbol),
		inventoryVega: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "inventory_vega", Help: "签名vega净敞口",
		}, bySymbol),
		bucketExposure: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "bucket_exposure", Help: "bucket签名vega敞口",
		}, []string{"symbol", "bucket"}),
		spreadTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "spread_total", Help: "最近一次报价的总价差",
		}, bySymbol),
		quoteSkew: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "quote_skew", Help: "最近一次报价的库存偏移",
		}, bySymbol),
		covMaxEigen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "covariance_max_eigenvalue", Help: "协方差最大特征值（幂迭代近似）",
		}, bySymbol),
		covMinDiag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "covariance_min_diagonal", Help: "协方差对角线最小值",
		}, bySymbol),
	}
	return m
}

func (m *Monitor) RecordTick(symbol string)      { m.ticksTotal.WithLabelValues(symbol).Inc() }
func (m *Monitor) RecordTrade(symbol string)     { m.tradesTotal.WithLabelValues(symbol).Inc() }
func (m *Monitor) RecordQuote(symbol string)     { m.quotesTotal.WithLabelValues(symbol).Inc() }
func (m *Monitor) RecordCovUpdate(symbol string) { m.covSamples.WithLabelValues(symbol).Inc() }

func (m *Monitor) RecordPass(symbol, reason string) {
	m.passesTotal.WithLabelValues(symbol, reason).Inc()
}

func (m *Monitor) RecordBumpRecomputes(symbol string, n int) {
	m.bumpRecomputes.WithLabelValues(symbol).Add(float64(n))
}

func (m *Monitor) RecordCalibration(symbol string, ok bool) {
	if ok {
		m.calibrations.WithLabelValues(symbol).Inc()
	} else {
		m.calibrationErrs.WithLabelValues(symbol).Inc()
	}
}

func (m *Monitor) SetInventoryVega(symbol string, v float64) {
	m.inventoryVega.WithLabelValues(symbol).Set(v)
}

func (m *Monitor) SetBucketExposure(symbol, bucket string, v float64) {
	m.bucketExposure.WithLabelValues(symbol, bucket).Set(v)
}

func (m *Monitor) SetQuoteState(symbol string, skew, spreadTotal float64) {
	m.quoteSkew.WithLabelValues(symbol).Set(skew)
	m.spreadTotal.WithLabelValues(symbol).Set(spreadTotal)
}

func (m *Monitor) SetCovDiagnostics(symbol string, maxEigen, minDiag float64) {
	m.covMaxEigen.WithLabelValues(symbol).Set(maxEigen)
	m.covMinDiag.WithLabelValues(symbol).Set(minDiag)
}

// Handler 返回 /metrics 处理器。
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 启动指标服务器（后台）。
func (m *Monitor) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
