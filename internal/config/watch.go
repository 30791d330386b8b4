package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/callscope/callscope/internal/session"
)

// RulesProvider hands out the current rules snapshot. A run in flight
// keeps the snapshot it started with; reloads only affect later runs.
type RulesProvider struct {
	mu    sync.RWMutex
	rules *session.Rules
	path  string
}

// NewRulesProvider wraps an initial rules snapshot for the given file path.
func NewRulesProvider(path string, rules *session.Rules) *RulesProvider {
	return &RulesProvider{rules: rules, path: path}
}

// Current returns the active rules snapshot.
func (p *RulesProvider) Current() *session.Rules {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rules
}

// reload re-reads the rules file and swaps the snapshot. A broken file
// keeps the previous snapshot in place.
func (p *RulesProvider) reload() {
	rules, err := LoadRules(p.path)
	if err != nil {
		slog.Error("rules reload failed, keeping previous rules", "path", p.path, "error", err)
		return
	}
	p.mu.Lock()
	p.rules = rules
	p.mu.Unlock()
	slog.Info("classification rules reloaded", "path", p.path)
}

// Watch monitors the rules file and reloads it on change. The watch is on
// the parent directory because editors replace files rather than writing
// in place. Events are debounced. Watch returns immediately; the goroutine
// stops when ctx is cancelled. A nil error with an empty path means there
// is nothing to watch.
func (p *RulesProvider) Watch(ctx context.Context) error {
	if p.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}

	const debounce = 200 * time.Millisecond
	target := filepath.Clean(p.path)

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, p.reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("rules watcher error", "error", err)
			}
		}
	}()

	slog.Info("watching rules file", "path", p.path)
	return nil
}
