// Package appctx carries the per-invocation CLI state on a context: the
// config manager that loaded the layered sources and the settings derived
// from it once workspace paths are resolved.
package appctx

import (
	"context"

	"github.com/vulntor/attackq/pkg/config"
)

type key string

const (
	configKey   key = "attackq.config.manager"
	settingsKey key = "attackq.config.settings"
)

// WithConfig stores the shared config manager on context.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the shared config manager from context.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// WithSettings stores the resolved configuration on context.
func WithSettings(ctx context.Context, cfg config.Config) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, settingsKey, &cfg)
}

// Settings returns a copy of the resolved configuration. It falls back to
// the manager's configuration when no settings were stored.
func Settings(ctx context.Context) (config.Config, bool) {
	if ctx == nil {
		return config.Config{}, false
	}
	if cfg, ok := ctx.Value(settingsKey).(*config.Config); ok && cfg != nil {
		return *cfg, true
	}
	if mgr, ok := Config(ctx); ok {
		return mgr.Get(), true
	}
	return config.Config{}, false
}
