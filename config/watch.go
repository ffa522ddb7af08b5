package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 基于 fsnotify 的配置监听器。回调只在新配置通过完整校验后
// 触发；如何以及何时应用（通常只取 risk/edge 参数）由调用方在自己的
// 处理循环里决定，监听器不直接改引擎状态。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 连续写入的冷却窗口
}

// Start 阻塞监听直到 ctx 取消。
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer fw.Close()

	// 监听目录而不是文件：编辑器原子替换会使文件级 watch 失效
	if err := fw.Add(filepath.Dir(w.Path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.Path, err)
	}

	var lastReload time.Time
	target := filepath.Clean(w.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if time.Since(lastReload) < w.Cooldown {
				continue
			}
			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				// 坏配置不冷却，等修好后的下一次写入
				continue
			}
			lastReload = time.Now()
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case _, ok := <-fw.Errors:
			if !ok {
				return nil
			}
		}
	}
}
