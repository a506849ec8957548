// Package config provides domain models for engine configuration.
package config

import "time"

// EngineConfig represents the complete cache engine configuration.
type EngineConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`
	// Description describes the deployment.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Volatile configures the in-memory tier.
	Volatile VolatileConfig `json:"volatile,omitempty" yaml:"volatile,omitempty"`
	// Durable configures the persistent tier.
	Durable DurableConfig `json:"durable,omitempty" yaml:"durable,omitempty"`
	// Remote configures replication to the remote session backend.
	Remote RemoteConfig `json:"remote,omitempty" yaml:"remote,omitempty"`
	// Sync configures the background sync engine.
	Sync SyncConfig `json:"sync,omitempty" yaml:"sync,omitempty"`
	// Cleanup configures expired-entry removal.
	Cleanup CleanupConfig `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
	// Log configures structured logging.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
}

// VolatileConfig configures the in-memory tier.
type VolatileConfig struct {
	// MaxSize is the byte capacity of the tier.
	MaxSize int64 `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	// MaxEntries is the entry-count capacity of the tier.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

// DurableConfig configures the persistent tier.
type DurableConfig struct {
	// Backend selects the embedded store (badger or sqlite).
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Dir is the data directory for the badger backend.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// DSN is the connection string for the sqlite backend.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// InMemory runs the badger backend without disk persistence.
	InMemory bool `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`
	// MaxSize is the byte capacity of the tier.
	MaxSize int64 `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	// MaxEntries is the entry-count capacity of the tier.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	// Quota is the platform-reported storage quota, if any.
	Quota int64 `json:"quota,omitempty" yaml:"quota,omitempty"`
	// GCInterval is how often the badger value log is compacted.
	GCInterval Duration `json:"gc_interval,omitempty" yaml:"gc_interval,omitempty"`
}

// RemoteConfig configures replication to the remote session backend.
type RemoteConfig struct {
	// Enabled turns remote replication on.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Address is the Redis server address (host:port).
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Password for authentication (optional).
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB selects the Redis database index.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
	// KeyPrefix namespaces replicated keys.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	// EntryTTL bounds how long replicated entries live server-side.
	EntryTTL Duration `json:"entry_ttl,omitempty" yaml:"entry_ttl,omitempty"`
}

// SyncConfig configures the background sync engine.
type SyncConfig struct {
	// Enabled turns background sync on.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Interval is the base delay between sync rounds.
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	// MaxInterval caps the backoff between failed rounds.
	MaxInterval Duration `json:"max_interval,omitempty" yaml:"max_interval,omitempty"`
	// MaxAttempts is the per-entry retry budget within a round.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay within a round.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	// BatchSize bounds how many entries one round pushes.
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// CleanupConfig configures expired-entry removal.
type CleanupConfig struct {
	// Interval is how often expired entries are swept. Zero disables
	// the background sweep; expired entries are still removed lazily.
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level (trace, debug, info, warn, error).
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format selects the output encoding (json or console).
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Handle null
	if string(b) == "null" {
		return nil
	}

	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
