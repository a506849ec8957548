package redis

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Address != "localhost:6379" {
		t.Errorf("Address = %s, want localhost:6379", cfg.Address)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.KeyPrefix != "sessioncache:" {
		t.Errorf("KeyPrefix = %s, want sessioncache:", cfg.KeyPrefix)
	}
	if cfg.EntryTTL != 0 {
		t.Errorf("EntryTTL = %v, want 0 (no expiration)", cfg.EntryTTL)
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	opts := []ConfigOption{
		WithAddress("redis.internal:6380"),
		WithPassword("secret"),
		WithDB(2),
		WithKeyPrefix("tenant:"),
		WithPoolSize(50),
		WithEntryTTL(24 * time.Hour),
		WithTimeouts(time.Second, 2*time.Second, 3*time.Second),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Address != "redis.internal:6380" {
		t.Errorf("Address = %s, want redis.internal:6380", cfg.Address)
	}
	if cfg.Password != "secret" {
		t.Errorf("Password = %s, want secret", cfg.Password)
	}
	if cfg.DB != 2 {
		t.Errorf("DB = %d, want 2", cfg.DB)
	}
	if cfg.KeyPrefix != "tenant:" {
		t.Errorf("KeyPrefix = %s, want tenant:", cfg.KeyPrefix)
	}
	if cfg.PoolSize != 50 {
		t.Errorf("PoolSize = %d, want 50", cfg.PoolSize)
	}
	if cfg.EntryTTL != 24*time.Hour {
		t.Errorf("EntryTTL = %v, want 24h", cfg.EntryTTL)
	}
	if cfg.DialTimeout != time.Second || cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 3*time.Second {
		t.Errorf("timeouts = %v/%v/%v, want 1s/2s/3s", cfg.DialTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
	}
}

func TestNewStoreFromClient(t *testing.T) {
	t.Parallel()

	t.Run("creates store with custom prefix", func(t *testing.T) {
		t.Parallel()
		s := NewStoreFromClient(nil, "myapp:")

		if s == nil {
			t.Fatal("NewStoreFromClient() returned nil")
		}
		if s.keyPrefix != "myapp:" {
			t.Errorf("keyPrefix = %s, want myapp:", s.keyPrefix)
		}
	})

	t.Run("creates store with empty prefix", func(t *testing.T) {
		t.Parallel()
		s := NewStoreFromClient(nil, "")

		if s.keyPrefix != "" {
			t.Errorf("keyPrefix = %s, want empty", s.keyPrefix)
		}
	})
}

func TestStore_prefixKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		keyPrefix string
		key       string
		expected  string
	}{
		{
			name:      "default prefix",
			keyPrefix: "sessioncache:",
			key:       "chat-123",
			expected:  "sessioncache:session:chat-123",
		},
		{
			name:      "empty prefix",
			keyPrefix: "",
			key:       "chat-abc",
			expected:  "session:chat-abc",
		},
		{
			name:      "key with colons",
			keyPrefix: "app:",
			key:       "user:1:session:9",
			expected:  "app:session:user:1:session:9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewStoreFromClient(nil, tt.keyPrefix)
			if got := s.prefixKey(tt.key); got != tt.expected {
				t.Errorf("prefixKey(%s) = %s, want %s", tt.key, got, tt.expected)
			}
		})
	}
}
