package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML(bucketsOK, covOK)), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updates := make(chan AppConfig, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watcher{Path: path, Cooldown: 10 * time.Millisecond}.Start(ctx, func(cfg AppConfig) {
			select {
			case updates <- cfg:
			default:
			}
		})
	}()

	// 给 watcher 时间挂上目录
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(configYAML(bucketsOK, covOK)), 0o644))

	select {
	case cfg := <-updates:
		assert.Equal(t, "test", cfg.Env)
	case <-ctx.Done():
		t.Fatalf("no reload callback before timeout")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML(bucketsOK, covOK)), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan AppConfig, 4)
	go func() {
		_ = Watcher{Path: path, Cooldown: 10 * time.Millisecond}.Start(ctx, func(cfg AppConfig) {
			updates <- cfg
		})
	}()

	time.Sleep(100 * time.Millisecond)
	// 坏配置不得触发回调
	require.NoError(t, os.WriteFile(path, []byte("env: [broken"), 0o644))
	select {
	case <-updates:
		t.Fatalf("invalid config must not trigger the callback")
	case <-time.After(300 * time.Millisecond):
	}
}
