package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Factory creates a Backend from a validated configuration.
type Factory func(ctx context.Context, cfg *Config) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a driver available to NewBackend. It panics on a duplicate
// name, mirroring database/sql.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("storage: Register called twice for driver " + name)
	}
	factories[name] = f
}

// Registered reports whether a driver of that name exists.
func Registered(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Drivers lists registered driver names, sorted.
func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewBackend validates cfg, creates the backend for its driver and
// initializes it.
//
// Example:
//
//	backend, err := storage.NewBackend(ctx, &storage.Config{
//	    Driver: storage.DriverSQLite,
//	    Path:   "~/.local/share/attackq/db/attackq.db",
//	})
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	factoriesMu.RLock()
	factory := factories[cfg.Driver]
	factoriesMu.RUnlock()

	backend, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Initialize(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	return backend, nil
}
