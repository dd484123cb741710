package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/coderunner/agentcore/internal/domain/service"
)

// LoadRules reads a YAML rule file into the PermissionEngine's rule type.
// A missing file is not an error — it yields no rules, matching the
// PermissionEngine's "no rule matched" fallthrough to mode defaults.
func LoadRules(path string) ([]service.PermissionRule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}

	var rules []service.PermissionRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	return rules, nil
}

// RuleWatcher watches a permission rule file with fsnotify and pushes
// reloaded rules into a PermissionEngine, the way the teacher's
// ConfigWatcher polls an agent config file — except event-driven rather
// than timer-driven, since fsnotify is available for this one file.
type RuleWatcher struct {
	path    string
	engine  *service.PermissionEngine
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stopCh  chan struct{}
}

// NewRuleWatcher creates a watcher for path, performing one synchronous
// initial load before returning so the engine never runs without rules
// that were present on disk at startup.
func NewRuleWatcher(path string, engine *service.PermissionEngine, logger *zap.Logger) (*RuleWatcher, error) {
	w := &RuleWatcher{
		path:   path,
		engine: engine,
		logger: logger.With(zap.String("component", "rule-watcher")),
		stopCh: make(chan struct{}),
	}

	if err := w.reload(); err != nil {
		w.logger.Warn("initial rule load failed, starting with no rules", zap.Error(err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	w.watcher = watcher
	return w, nil
}

// Start blocks, reloading rules whenever path is written or renamed into
// place (editors commonly replace-by-rename on save). Call in its own
// goroutine; stop with Stop.
func (w *RuleWatcher) Start() {
	w.logger.Info("rule watcher started", zap.String("path", w.path))
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				w.logger.Warn("rule reload failed", zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule watcher error", zap.Error(err))
		}
	}
}

// Stop shuts down the watcher.
func (w *RuleWatcher) Stop() {
	close(w.stopCh)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *RuleWatcher) reload() error {
	rules, err := LoadRules(w.path)
	if err != nil {
		return err
	}
	w.engine.SetRules(rules)
	w.logger.Info("rules reloaded", zap.Int("count", len(rules)))
	return nil
}

// fsnotify watches directories, not individual files, so rename-based saves
// (the common editor pattern) still fire events; Start filters by event.Name.
