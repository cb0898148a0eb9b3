package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ChangeCallback is invoked after a reload with the previous and the new config.
type ChangeCallback func(oldConfig, newConfig *Config) error

// Manager holds the live configuration and reloads it when the file changes.
type Manager struct {
	v       *viper.Viper
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Config]

	mu        sync.Mutex
	callbacks []ChangeCallback
	watching  bool
}

// NewManager loads the config at path and returns a Manager serving it.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := newViper()
	if err := readFile(v, path); err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	m := &Manager{v: v, path: path, logger: logger}
	m.current.Store(cfg)
	return m, nil
}

// Current returns the active configuration. Callers must not mutate it.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnChange registers a callback run after every successful reload.
func (m *Manager) OnChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Watch starts watching the config file. It is a no-op when no file was loaded.
func (m *Manager) Watch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watching || m.v.ConfigFileUsed() == "" {
		return
	}
	m.watching = true
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := m.Reload(); err != nil {
			m.logger.Error("Config reload failed, keeping previous config",
				zap.String("file", e.Name), zap.Error(err))
		}
	})
	m.v.WatchConfig()
	m.logger.Info("Watching config file", zap.String("path", m.v.ConfigFileUsed()))
}

// Reload re-reads the file and swaps in the new config if it validates.
func (m *Manager) Reload() error {
	if m.v.ConfigFileUsed() != "" {
		if err := m.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	next, err := decode(m.v)
	if err != nil {
		return err
	}
	prev := m.current.Swap(next)

	m.mu.Lock()
	cbs := append([]ChangeCallback(nil), m.callbacks...)
	m.mu.Unlock()

	for _, cb := range cbs {
		if err := cb(prev, next); err != nil {
			m.logger.Warn("Config change callback failed", zap.Error(err))
		}
	}
	m.logger.Info("Configuration reloaded",
		zap.Float64("quality_gate_threshold", next.QualityGate.Threshold),
		zap.Int("top_k", next.Retrieval.TopK),
	)
	return nil
}
