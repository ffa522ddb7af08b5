package engine

import (
	"fmt"
	"sync"
)

// Book 显式构造、按引用传递的引擎注册表，每 symbol 一个实例。
// 取代进程级单例：没有环境全局可变状态。
// 锁只保护注册表本身；引擎内部状态仍归各自的处理序列独占。
type Book struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewBook 创建空注册表。
func NewBook() *Book {
	return &Book{engines: make(map[string]*Engine)}
}

// Add 注册引擎，symbol 重复属于集成错误。
func (b *Book) Add(e *Engine) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.engines[e.Symbol()]; ok {
		return fmt.Errorf("engine: symbol %q already registered", e.Symbol())
	}
	b.engines[e.Symbol()] = e
	return nil
}

// Get 按 symbol 查找引擎。
func (b *Book) Get(symbol string) (*Engine, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.engines[symbol]
	return e, ok
}

// Symbols 已注册 symbol 列表。
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.engines))
	for s := range b.engines {
		out = append(out, s)
	}
	return out
}

// Reset 重置单个 symbol 的全部状态（新时段），原子地对该 symbol 生效。
func (b *Book) Reset(symbol string) bool {
	b.mu.RLock()
	e, ok := b.engines[symbol]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	e.Reset()
	return true
}
