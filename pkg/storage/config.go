package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Driver names.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// DefaultBusyTimeout is how long sqlite waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Config selects and configures a backend.
type Config struct {
	// Driver is a registered backend name. Default: memory.
	Driver string `koanf:"driver" description:"Storage driver: memory or sqlite"`

	// Path is the sqlite database file. Relative paths and ~/ are resolved.
	Path string `koanf:"path" description:"SQLite database file"`

	// BusyTimeout bounds waits on a locked sqlite database.
	BusyTimeout time.Duration `koanf:"busy_timeout" description:"SQLite busy timeout"`
}

// Validate normalizes the configuration and checks it against the registered
// drivers.
func (c *Config) Validate() error {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if !Registered(c.Driver) {
		return NewInvalidInputError("driver", fmt.Sprintf("unknown driver %q (available: %s)", c.Driver, strings.Join(Drivers(), ", ")))
	}
	if c.BusyTimeout < 0 {
		return NewInvalidInputError("busy_timeout", "must not be negative")
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}

	if c.Driver != DriverSQLite {
		return nil
	}
	if c.Path == "" {
		return NewInvalidInputError("path", "sqlite driver requires a database path")
	}
	if c.Path == ":memory:" {
		return nil
	}

	// Expand tilde in path
	if strings.HasPrefix(c.Path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.Path = filepath.Join(home, c.Path[2:])
	}

	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return NewInvalidInputError("path", fmt.Sprintf("invalid path: %v", err))
	}
	c.Path = absPath
	return nil
}
