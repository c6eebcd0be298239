package config

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"go-piano/debug"
	"go-piano/engine"
	"go-piano/keymap"
	"go-piano/performance"
)

// SaveDelay is how long preference writes are held back so a burst of
// slider steps turns into one write.
const SaveDelay = 500 * time.Millisecond

// Store is the engine's settings collaborator backed by the config file
type Store struct {
	mu        sync.Mutex
	cfg       *Config
	debounced func(func())
	log       *zap.Logger
	lastErr   error
}

// NewStore wraps cfg. The store owns cfg from here on.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{
		cfg:       cfg,
		debounced: debounce.New(SaveDelay),
		log:       debug.L().Named("config"),
	}
}

// Config returns a copy of the current config
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.cfg
	c.Controllers = append([]ControllerConfig(nil), s.cfg.Controllers...)
	c.Keymaps = make(map[keymap.Layout]keymap.Bindings, len(s.cfg.Keymaps))
	for l, b := range s.cfg.Keymaps {
		c.Keymaps[l] = b.Clone()
	}
	return c
}

// Update changes the config and writes it immediately
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
	return s.cfg.Save()
}

// LoadBindings returns the custom table for l, or nil when none is stored
func (s *Store) LoadBindings(l keymap.Layout) (keymap.Bindings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.cfg.Keymaps[l]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

// SaveBindings stores a table and writes the file synchronously; a keymap
// commit only succeeds once this returns nil.
func (s *Store) SaveBindings(l keymap.Layout, b keymap.Bindings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.cfg.Keymaps[l]
	if s.cfg.Keymaps == nil {
		s.cfg.Keymaps = make(map[keymap.Layout]keymap.Bindings)
	}
	s.cfg.Keymaps[l] = b.Clone()
	if err := s.cfg.Save(); err != nil {
		if had {
			s.cfg.Keymaps[l] = prev
		} else {
			delete(s.cfg.Keymaps, l)
		}
		return err
	}
	return nil
}

// ResetBindings drops the custom table for l
func (s *Store) ResetBindings(l keymap.Layout) error {
	return s.Update(func(c *Config) { delete(c.Keymaps, l) })
}

// LoadPerformanceDefaults returns the stored playing defaults
func (s *Store) LoadPerformanceDefaults() (performance.Defaults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PerformanceDefaults(), nil
}

// SavePreferences records live values and schedules a debounced write. It
// never blocks on disk.
func (s *Store) SavePreferences(p engine.Preferences) {
	s.mu.Lock()
	s.cfg.Performance.Layout = p.Layout
	s.cfg.Performance.Velocity = p.Velocity
	s.cfg.SetPerformanceDefaults(p.Performance)
	s.cfg.Sound.Volume = p.Volume
	s.cfg.Sound.Bank = p.Program.Bank
	s.cfg.Sound.Preset = p.Program.Preset
	s.mu.Unlock()

	s.debounced(s.flushLogged)
}

func (s *Store) flushLogged() {
	if err := s.Flush(); err != nil {
		s.log.Warn("saving preferences", zap.Error(err))
	}
}

// Flush writes the config now
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = s.cfg.Save()
	return s.lastErr
}

// Err returns the result of the last write
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

var _ engine.Settings = (*Store)(nil)
var _ engine.PreferenceSaver = (*Store)(nil)
