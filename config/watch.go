package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/sim"
)

// Watcher 基于 fsnotify 监听配置文件，变更后重新加载、校验，
// 只把通过校验的配置与新的 ProfileSet 交给回调；非法配置被丢弃，旧配置继续生效。
type Watcher struct {
	path     string
	debounce time.Duration
	fw       *fsnotify.Watcher
	log      *logger.Logger
}

// NewWatcher 监听 path 所在目录（编辑器常用 rename 方式保存）。
func NewWatcher(path string, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}
	return &Watcher{path: filepath.Clean(path), debounce: debounce, fw: fw, log: log}, nil
}

// Run 阻塞直到 ctx 结束。
func (w *Watcher) Run(ctx context.Context, onUpdate func(AppConfig, *sim.ProfileSet)) error {
	defer w.fw.Close()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.LogError(err, zap.String("path", w.path))
		case <-fire:
			fire = nil
			w.reload(onUpdate)
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig, *sim.ProfileSet)) {
	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		w.log.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	set, err := cfg.ProfileSet()
	if err != nil {
		w.log.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.log.Info("config reloaded", zap.String("path", w.path), zap.Strings("profiles", set.Names()))
	if onUpdate != nil {
		onUpdate(cfg, set)
	}
}
