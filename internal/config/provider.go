package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

// Provider implements ports.SettingsProvider over a config file. After
// Watch, edits made with `config set` from another terminal apply to the
// next flow decision.
type Provider struct {
	path string

	mu      sync.RWMutex
	current domain.Settings
}

var _ ports.SettingsProvider = (*Provider)(nil)

// NewProvider creates a provider seeded with cfg.
func NewProvider(path string, cfg *Config) *Provider {
	return &Provider{path: path, current: cfg.ToSettings()}
}

// Settings returns the current settings.
func (p *Provider) Settings() domain.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Watch reloads the settings whenever the config file changes. A file that
// fails to load keeps the last good settings.
func (p *Provider) Watch() error {
	v := newViper(p.path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.current = cfg.ToSettings()
		p.mu.Unlock()
	})
	v.WatchConfig()
	return nil
}
