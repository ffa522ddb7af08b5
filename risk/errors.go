package risk

import "errors"

var (
	// ErrStateStale 报价前未对当前 tick 更新风险状态，属于集成错误。
	ErrStateStale = errors.New("risk: state not updated for current tick")
	// ErrNotReady 协方差未就绪时禁止消费 Σ。
	ErrNotReady = errors.New("risk: covariance not ready")
)
