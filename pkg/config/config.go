// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vulntor/attackq/pkg/procexec"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/storage"
	"github.com/vulntor/attackq/pkg/tool"
	"github.com/vulntor/attackq/pkg/workspace"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultSpoolDebounce is the quiet period before a spooled file is read.
const DefaultSpoolDebounce = 500 * time.Millisecond

var validate = validator.New(validator.WithRequiredStructEnabled())

// Manager handles loading and accessing application configuration.
// Each Manager owns its koanf instance, so tests and commands don't share
// state.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	loaded        []string
	mu            sync.RWMutex
}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New(".")}
}

// DefaultConfig returns a new Config struct populated with hardcoded default values.
// These serve as the baseline configuration if no other sources override them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scheduler: scheduler.DefaultConfig(),
		Tool: ToolConfig{
			Path:              tool.DefaultPath,
			KillGrace:         procexec.DefaultGracePeriod,
			BufferLimit:       procexec.DefaultBufferLimit,
			VersionConstraint: tool.DefaultConstraint,
		},
		Storage: storage.Config{
			Driver:      storage.DriverSQLite,
			BusyTimeout: storage.DefaultBusyTimeout,
		},
		Server: DefaultServerConfig(),
		Spool: SpoolConfig{
			Debounce: DefaultSpoolDebounce,
		},
	}
}

// Load loads configuration from the given sources in priority order and
// validates the merged result.
func (m *Manager) Load(sources ...ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := slices.Clone(sources)
	slices.SortStableFunc(ordered, func(a, b ConfigSource) int {
		return a.Priority() - b.Priority()
	})

	loaded := make([]string, 0, len(ordered))
	for _, src := range ordered {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
		loaded = append(loaded, src.Name())
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return err
	}

	m.currentConfig = newCfg
	m.loaded = loaded
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.currentConfig
	cfg.Tool.Args = slices.Clone(cfg.Tool.Args)
	cfg.Tool.Env = slices.Clone(cfg.Tool.Env)
	return cfg
}

// Sources lists the names of the sources applied by the last Load.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.loaded)
}

// Validate checks struct tags and the cross-field rules the tags can't express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s: failed %q (value %v)", ErrInvalid, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Scheduler.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, kv := range c.Tool.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("%w: tool.env entry %q is not KEY=VALUE", ErrInvalid, kv)
		}
	}
	if c.Tool.VersionConstraint != "" {
		if _, err := semver.NewConstraint(c.Tool.VersionConstraint); err != nil {
			return fmt.Errorf("%w: tool.version_constraint: %v", ErrInvalid, err)
		}
	}
	return nil
}

// ResolvePaths fills workspace-relative defaults: the sqlite database, the
// spool directory and a relative log file.
func (c *Config) ResolvePaths(ws *workspace.Workspace) {
	if c.Storage.Driver == storage.DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = ws.DBPath()
	}
	if c.Spool.Dir == "" {
		c.Spool.Dir = ws.SpoolDir()
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		c.Log.File = filepath.Join(ws.Root, c.Log.File)
	}
}

// Builder returns the command builder for the configured tool.
func (c ToolConfig) Builder() tool.Builder {
	return tool.Builder{
		Path:      c.Path,
		ExtraArgs: slices.Clone(c.Args),
		Env:       slices.Clone(c.Env),
		Dir:       c.Dir,
	}
}

// Runner returns a process runner honouring the kill grace and buffer limit.
func (c ToolConfig) Runner(logger zerolog.Logger) *procexec.Runner {
	opts := []procexec.Option{procexec.WithLogger(logger)}
	if c.KillGrace > 0 {
		opts = append(opts, procexec.WithGracePeriod(c.KillGrace))
	}
	if c.BufferLimit > 0 {
		opts = append(opts, procexec.WithBufferLimit(c.BufferLimit))
	}
	return procexec.NewRunner(opts...)
}

// DefaultConfigAsMap converts the DefaultConfig struct to a map[string]interface{}
// for Koanf's confmap.Provider. This is a bit manual but ensures Koanf knows all keys.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		// Log configuration
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		// Scheduler configuration
		"scheduler.max_concurrent":          def.Scheduler.MaxConcurrent,
		"scheduler.priority_max_concurrent": 0,
		"scheduler.standard_max_concurrent": 0,
		"scheduler.backoff_base":            def.Scheduler.BackoffBase,
		"scheduler.backoff_max":             def.Scheduler.BackoffMax,
		"scheduler.stall_interval":          def.Scheduler.StallInterval,
		"scheduler.stall_threshold":         def.Scheduler.StallThreshold,
		"scheduler.heartbeat_interval":      def.Scheduler.HeartbeatInterval,
		"scheduler.persist_queue_size":      def.Scheduler.PersistQueueSize,
		"scheduler.persist_timeout":         def.Scheduler.PersistTimeout,
		"scheduler.retention":               def.Scheduler.Retention,

		// Tool configuration
		"tool.path":               def.Tool.Path,
		"tool.args":               []string{},
		"tool.env":                []string{},
		"tool.dir":                def.Tool.Dir,
		"tool.kill_grace":         def.Tool.KillGrace,
		"tool.buffer_limit":       def.Tool.BufferLimit,
		"tool.version_constraint": def.Tool.VersionConstraint,

		// Storage configuration
		"storage.driver":       def.Storage.Driver,
		"storage.path":         def.Storage.Path,
		"storage.busy_timeout": def.Storage.BusyTimeout,

		// Server configuration
		"server.addr":             def.Server.Addr,
		"server.port":             def.Server.Port,
		"server.read_timeout":     def.Server.ReadTimeout,
		"server.write_timeout":    def.Server.WriteTimeout,
		"server.shutdown_timeout": def.Server.ShutdownTimeout,
		"server.handler_timeout":  def.Server.HandlerTimeout,
		"server.metrics_enabled":  def.Server.MetricsEnabled,
		"server.event_buffer":     def.Server.EventBuffer,
		"server.auth.mode":        def.Server.Auth.Mode,
		"server.auth.token":       def.Server.Auth.Token,

		// Workspace and spool
		"workspace.dir":  def.Workspace.Dir,
		"spool.enabled":  def.Spool.Enabled,
		"spool.dir":      def.Spool.Dir,
		"spool.debounce": def.Spool.Debounce,
	}
}

// BindFlags defines the global command-line flags.
// These flags allow overriding config file / environment variable settings.
func BindFlags(flags *pflag.FlagSet) {
	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")
	flags.String("log.level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log.format", "text", "Log format (text, json)")
	flags.String("log.file", "", "Path to log file (optional, leave empty for stderr)")
	flags.String("workspace.dir", "", "Workspace root directory")
}

// BindSchedulerFlags binds scheduler and tool flags used by 'run' and 'server'.
func BindSchedulerFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	flags.Int("scheduler.max_concurrent", defaults.Scheduler.MaxConcurrent, "Maximum running attempts across both lanes")
	flags.Int("scheduler.priority_max_concurrent", 0, "Priority lane cap (0 uses max_concurrent)")
	flags.Int("scheduler.standard_max_concurrent", 0, "Standard lane cap (0 uses max_concurrent)")
	flags.Duration("scheduler.backoff_base", defaults.Scheduler.BackoffBase, "Delay before the first retry")
	flags.Duration("scheduler.stall_threshold", defaults.Scheduler.StallThreshold, "Silence before a job is reported stalled")
	flags.String("tool.path", defaults.Tool.Path, "Path to the hydra-compatible binary")
	flags.Duration("tool.kill_grace", defaults.Tool.KillGrace, "Delay between SIGTERM and SIGKILL")
	flags.String("storage.driver", defaults.Storage.Driver, "Storage driver (memory, sqlite)")
	flags.String("storage.path", "", "SQLite database file (defaults to <workspace>/db/attackq.db)")
}
