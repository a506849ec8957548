package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	t.Run("marshal", func(t *testing.T) {
		t.Parallel()
		d := Duration(90 * time.Second)
		b, err := json.Marshal(d)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(b) != `"1m30s"` {
			t.Errorf("Marshal() = %s, want \"1m30s\"", b)
		}
	})

	t.Run("unmarshal", func(t *testing.T) {
		t.Parallel()
		var d Duration
		if err := json.Unmarshal([]byte(`"2m"`), &d); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if d.Duration() != 2*time.Minute {
			t.Errorf("Duration() = %v, want 2m", d.Duration())
		}
	})

	t.Run("unmarshal null", func(t *testing.T) {
		t.Parallel()
		var d Duration
		if err := json.Unmarshal([]byte("null"), &d); err != nil {
			t.Fatalf("Unmarshal(null) error = %v", err)
		}
		if d != 0 {
			t.Errorf("Duration = %v, want 0", d)
		}
	})

	t.Run("unmarshal invalid", func(t *testing.T) {
		t.Parallel()
		var d Duration
		if err := json.Unmarshal([]byte(`"not a duration"`), &d); err == nil {
			t.Error("Unmarshal() should fail for invalid duration")
		}
	})
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var cfg SyncConfig
	data := []byte("enabled: true\ninterval: 30s\nmax_interval: 2m\n")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Interval.Duration() != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Interval.Duration())
	}
	if cfg.MaxInterval.Duration() != 2*time.Minute {
		t.Errorf("MaxInterval = %v, want 2m", cfg.MaxInterval.Duration())
	}
}

func TestEngineConfig_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	original := EngineConfig{
		Name:    "session-cache",
		Version: "1.0",
		Volatile: VolatileConfig{
			MaxSize:    10 << 20,
			MaxEntries: 1000,
		},
		Durable: DurableConfig{
			Backend:    "badger",
			Dir:        "/var/lib/sessioncache",
			MaxSize:    256 << 20,
			MaxEntries: 10000,
			GCInterval: Duration(5 * time.Minute),
		},
		Remote: RemoteConfig{
			Enabled: true,
			Address: "localhost:6379",
		},
		Sync: SyncConfig{
			Enabled:     true,
			Interval:    Duration(30 * time.Second),
			MaxInterval: Duration(2 * time.Minute),
			MaxAttempts: 3,
			Multiplier:  2,
		},
	}

	data, err := yaml.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded EngineConfig
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.Name != original.Name {
		t.Errorf("Name = %s, want %s", decoded.Name, original.Name)
	}
	if decoded.Durable.Backend != "badger" {
		t.Errorf("Durable.Backend = %s, want badger", decoded.Durable.Backend)
	}
	if decoded.Sync.MaxInterval.Duration() != 2*time.Minute {
		t.Errorf("Sync.MaxInterval = %v, want 2m", decoded.Sync.MaxInterval.Duration())
	}
	if decoded.Volatile.MaxEntries != 1000 {
		t.Errorf("Volatile.MaxEntries = %d, want 1000", decoded.Volatile.MaxEntries)
	}
}
