package scheduler

import "time"

const (
	DefaultMaxConcurrent     = 4
	DefaultStallInterval     = 30 * time.Second
	DefaultStallThreshold    = 2 * time.Minute
	DefaultHeartbeatInterval = time.Second
	DefaultPersistQueueSize  = 1024
	DefaultPersistTimeout    = 5 * time.Second
	DefaultRetention         = time.Hour
)

// Config holds scheduler tuning. Zero values take defaults.
type Config struct {
	// MaxConcurrent caps running attempts across both lanes.
	MaxConcurrent int `koanf:"max_concurrent" description:"Maximum running attempts across both lanes"`
	// PriorityMaxConcurrent and StandardMaxConcurrent cap each lane;
	// zero means MaxConcurrent.
	PriorityMaxConcurrent int `koanf:"priority_max_concurrent" description:"Maximum running attempts in the priority lane"`
	StandardMaxConcurrent int `koanf:"standard_max_concurrent" description:"Maximum running attempts in the standard lane"`

	BackoffBase time.Duration `koanf:"backoff_base" description:"Delay before the first retry"`
	BackoffMax  time.Duration `koanf:"backoff_max" description:"Upper bound for retry delays"`

	// StallInterval is how often running jobs are checked for silence.
	StallInterval time.Duration `koanf:"stall_interval" description:"How often running jobs are checked for silence"`
	// StallThreshold is how long a running job may go without output.
	StallThreshold time.Duration `koanf:"stall_threshold" description:"Silence after which a running job is reported stalled"`
	// HeartbeatInterval throttles heartbeat updates from output lines.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" description:"Minimum spacing of heartbeat updates"`

	PersistQueueSize int           `koanf:"persist_queue_size" description:"Pending persistence writes before new ones are dropped"`
	PersistTimeout   time.Duration `koanf:"persist_timeout" description:"Timeout for a single persistence write"`

	// Retention is how long a terminal job stays in memory. Older jobs are
	// only served from the store.
	Retention time.Duration `koanf:"retention" description:"How long finished jobs are kept in memory"`
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills zero fields; lane caps follow MaxConcurrent.
func (c Config) WithDefaults() Config {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.PriorityMaxConcurrent == 0 {
		c.PriorityMaxConcurrent = c.MaxConcurrent
	}
	if c.StandardMaxConcurrent == 0 {
		c.StandardMaxConcurrent = c.MaxConcurrent
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.StallInterval == 0 {
		c.StallInterval = DefaultStallInterval
	}
	if c.StallThreshold == 0 {
		c.StallThreshold = DefaultStallThreshold
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.PersistQueueSize == 0 {
		c.PersistQueueSize = DefaultPersistQueueSize
	}
	if c.PersistTimeout == 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	return c
}

// Validate checks a config after defaults were applied.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrent < 1:
		return NewInvalidConfigError("max_concurrent", c.MaxConcurrent, "must be at least 1")
	case c.PriorityMaxConcurrent < 1:
		return NewInvalidConfigError("priority_max_concurrent", c.PriorityMaxConcurrent, "must be at least 1")
	case c.StandardMaxConcurrent < 1:
		return NewInvalidConfigError("standard_max_concurrent", c.StandardMaxConcurrent, "must be at least 1")
	case c.BackoffBase < 0:
		return NewInvalidConfigError("backoff_base", c.BackoffBase, "must not be negative")
	case c.BackoffMax < c.BackoffBase:
		return NewInvalidConfigError("backoff_max", c.BackoffMax, "must not be below backoff_base")
	case c.StallInterval < 0, c.StallThreshold < 0, c.HeartbeatInterval < 0:
		return NewInvalidConfigError("stall", c.StallThreshold, "durations must not be negative")
	case c.Retention < 0:
		return NewInvalidConfigError("retention", c.Retention, "must not be negative")
	case c.PersistQueueSize < 1:
		return NewInvalidConfigError("persist_queue_size", c.PersistQueueSize, "must be at least 1")
	}
	return nil
}
