package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wilson323/llmchat-sub005/domain/remote"
	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// Store is a Redis-backed implementation of remote.Store. Entries are
// replicated as JSON documents under a namespaced key so an external
// session service can consume them directly.
type Store struct {
	client    *redis.Client
	keyPrefix string
	entryTTL  time.Duration
}

// NewStore creates a new Redis remote store with the given configuration.
func NewStore(cfg Config, opts ...ConfigOption) (*Store, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(remote.ErrUnavailable, err)
	}

	return &Store{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		entryTTL:  cfg.EntryTTL,
	}, nil
}

// NewStoreFromClient creates a store from an existing Redis client.
func NewStoreFromClient(client *redis.Client, keyPrefix string) *Store {
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *Store) prefixKey(key string) string {
	return s.keyPrefix + "session:" + key
}

// PushEntry uploads the entry as a JSON document.
func (s *Store) PushEntry(ctx context.Context, entry *storage.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil || entry.Key == "" {
		return storage.ErrInvalidKey
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Join(storage.ErrSerializationFailed, err)
	}

	if err := s.client.Set(ctx, s.prefixKey(entry.Key), payload, s.entryTTL).Err(); err != nil {
		return errors.Join(remote.ErrPushFailed, err)
	}
	return nil
}

// PullEntry fetches the remote copy of a key, if any.
func (s *Store) PullEntry(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	payload, err := s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Join(remote.ErrUnavailable, err)
	}

	var entry storage.Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, false, errors.Join(storage.ErrSerializationFailed, err)
	}
	return &entry, true, nil
}

// PushTombstone removes the remote copy of a key.
func (s *Store) PushTombstone(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		return errors.Join(remote.ErrPushFailed, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for advanced operations.
func (s *Store) Client() *redis.Client {
	return s.client
}

var _ remote.Store = (*Store)(nil)
