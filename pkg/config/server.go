package config

import (
	"time"

	"github.com/spf13/pflag"
)

// DefaultServerConfig returns the default server configuration.
// These are sensible defaults for local use and can be overridden
// via flags, environment variables, or config files.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		HandlerTimeout:  30 * time.Second,
		MetricsEnabled:  true,
		EventBuffer:     256,
		Auth: AuthConfig{
			Mode: "none",
		},
	}
}

// BindServerFlags binds server-specific flags to the provided FlagSet.
// These flags will be used by the 'attackq server' command.
//
// Flags are namespaced under 'server.' to avoid conflicts with global flags.
// Example: --server.addr, --server.port
func BindServerFlags(flags *pflag.FlagSet) {
	defaults := DefaultServerConfig()

	flags.String("server.addr", defaults.Addr, "Server listen address (use 0.0.0.0 for all interfaces)")
	flags.Int("server.port", defaults.Port, "Server listen port")
	flags.Duration("server.read_timeout", defaults.ReadTimeout, "HTTP read timeout")
	flags.Duration("server.write_timeout", defaults.WriteTimeout, "HTTP write timeout")
	flags.Duration("server.shutdown_timeout", defaults.ShutdownTimeout, "Graceful shutdown timeout")
	flags.Duration("server.handler_timeout", defaults.HandlerTimeout, "API handler timeout")
	flags.Bool("server.metrics_enabled", defaults.MetricsEnabled, "Expose Prometheus metrics on /metrics")
	flags.String("server.auth.mode", defaults.Auth.Mode, "API authentication mode (none, token)")
	flags.String("server.auth.token", defaults.Auth.Token, "Bearer token when server.auth.mode=token")
}
