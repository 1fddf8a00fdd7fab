// pkg/config/types.go
package config

import (
	"time"

	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/storage"
)

// Config is the root configuration structure for attackq.
// It aggregates all other specific configuration structs.
type Config struct {
	Log       LogConfig        `description:"Logging configuration" koanf:"log"`
	Scheduler scheduler.Config `description:"Scheduler configuration" koanf:"scheduler"`
	Tool      ToolConfig       `description:"Attack tool configuration" koanf:"tool"`
	Storage   storage.Config   `description:"Storage configuration" koanf:"storage"`
	Server    ServerConfig     `description:"Server configuration" koanf:"server"`
	Workspace WorkspaceConfig  `description:"Workspace configuration" koanf:"workspace"`
	Spool     SpoolConfig      `description:"Spool directory configuration" koanf:"spool"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: trace | debug | info | warn | error" koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `description:"Log format: json | text" koanf:"format" validate:"oneof=text json"`
	File   string `description:"Log file path" koanf:"file"`
}

// ToolConfig describes the external login cracker.
type ToolConfig struct {
	Path              string        `description:"Path to the hydra-compatible binary" koanf:"path" validate:"required"`
	Args              []string      `description:"Extra arguments placed before the target" koanf:"args"`
	Env               []string      `description:"Extra KEY=VALUE environment entries" koanf:"env"`
	Dir               string        `description:"Working directory for attack processes" koanf:"dir"`
	KillGrace         time.Duration `description:"Delay between SIGTERM and SIGKILL" koanf:"kill_grace" validate:"gte=0"`
	BufferLimit       int           `description:"Rolling output buffer size in bytes" koanf:"buffer_limit" validate:"gte=0"`
	VersionConstraint string        `description:"Accepted tool versions (semver constraint)" koanf:"version_constraint"`
}

// ServerConfig holds configuration for the HTTP API.
// Used by 'attackq server'.
type ServerConfig struct {
	// Network settings
	Addr string `description:"Server listen address" koanf:"addr"`
	Port int    `description:"Server listen port" koanf:"port" validate:"gte=0,lte=65535"`

	// HTTP timeouts
	ReadTimeout     time.Duration `description:"HTTP read timeout" koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `description:"HTTP write timeout (event streams are exempt)" koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `description:"Graceful shutdown timeout" koanf:"shutdown_timeout" validate:"gte=0"`

	// HandlerTimeout bounds non-streaming API handlers.
	HandlerTimeout time.Duration `description:"API handler timeout" koanf:"handler_timeout" validate:"gte=0"`

	MetricsEnabled bool `description:"Expose Prometheus metrics on /metrics" koanf:"metrics_enabled"`
	EventBuffer    int  `description:"Per-subscriber event buffer" koanf:"event_buffer" validate:"gte=1"`

	Auth AuthConfig `description:"API authentication" koanf:"auth"`
}

// AuthConfig controls API authentication. Health endpoints are always open.
type AuthConfig struct {
	Mode  string `description:"Authentication mode: none | token" koanf:"mode" validate:"oneof=none token"`
	Token string `description:"Bearer token for token mode" koanf:"token" validate:"required_if=Mode token"`
}

// WorkspaceConfig locates the data directory.
type WorkspaceConfig struct {
	Dir string `description:"Workspace root (defaults to the platform data dir)" koanf:"dir"`
}

// SpoolConfig controls the job-file drop directory.
type SpoolConfig struct {
	Enabled  bool          `description:"Watch the spool directory for job files" koanf:"enabled"`
	Dir      string        `description:"Spool directory (defaults to <workspace>/spool)" koanf:"dir"`
	Debounce time.Duration `description:"Quiet period before a new file is read" koanf:"debounce" validate:"gte=0"`
}
