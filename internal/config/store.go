package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Store holds the current configuration and supports live reload. Readers
// always see a complete, validated Config.
type Store struct {
	path    string
	current atomic.Pointer[Config]

	// override adjusts every loaded configuration, e.g. command-line flags
	override func(*Config)

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewStore loads the configuration from path (see Load) into a new Store.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(cfg)
	return s, nil
}

// NewStaticStore wraps an already built configuration.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the active configuration. Callers must not modify it.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload re-reads the configuration source. On error the active configuration
// is kept.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	if fn := s.loadOverride(); fn != nil {
		fn(cfg)
		if err := Validate(cfg); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	s.Set(cfg)
	return nil
}

// Override applies fn to the current configuration and to every future
// Reload. The current configuration is kept if the result is invalid.
func (s *Store) Override(fn func(*Config)) error {
	cfg := s.Current().Clone()
	fn(cfg)
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	s.mu.Lock()
	s.override = fn
	s.mu.Unlock()

	s.Set(cfg)
	return nil
}

func (s *Store) loadOverride() func(*Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override
}

// Set replaces the active configuration and notifies listeners.
func (s *Store) Set(cfg *Config) {
	s.current.Store(cfg)

	s.mu.Lock()
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// OnChange registers fn to run after every successful Set or Reload.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
