package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager holds the live configuration and re-reads the file when it
// changes on disk. Only tunables are hot-swapped; endpoint changes still
// require a restart because clients are constructed once at boot.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	onReload []func(*Config)
	stopCh   chan struct{}
}

// NewManager loads the initial config and starts watching its directory.
func NewManager(logger *zap.Logger) (*Manager, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, logger: logger, stopCh: make(chan struct{})}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable, hot reload disabled", zap.Error(err))
		return m, nil
	}
	// Watch the directory, not the file: editors and configmap mounts
	// replace the file inode on write.
	if err := watcher.Add(filepath.Dir(Path())); err != nil {
		logger.Warn("config watch failed, hot reload disabled", zap.Error(err))
		_ = watcher.Close()
		return m, nil
	}
	m.watcher = watcher
	go m.watch()
	return m, nil
}

// Current returns the live configuration snapshot.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// OnReload registers a callback invoked with each successfully reloaded
// configuration.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

// Close stops the watcher.
func (m *Manager) Close() {
	close(m.stopCh)
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
}

func (m *Manager) watch() {
	// Debounce bursts of write events from atomic-save editors.
	var pending <-chan time.Time
	target := filepath.Clean(Path())
	for {
		select {
		case <-m.stopCh:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(200 * time.Millisecond)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			m.reload()
		}
	}
}

func (m *Manager) reload() {
	cfg, err := Load()
	if err != nil {
		m.logger.Warn("config reload failed, keeping previous", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	callbacks := make([]func(*Config), len(m.onReload))
	copy(callbacks, m.onReload)
	m.mu.Unlock()

	m.logger.Info("configuration reloaded", zap.String("path", Path()))
	for _, fn := range callbacks {
		fn(cfg)
	}
}
