// Package remote defines the minimal contract the tiered cache needs
// from the remote session backend. The wire protocol beyond this
// surface is owned by the external collaborator.
package remote

import (
	"context"
	"errors"

	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// Store is the remote backend the sync engine pushes to. Pushes carry
// a cancellation context; persistent failure is reported to the caller
// and retried, never treated as terminal.
type Store interface {
	// PushEntry uploads the entry to the remote backend.
	PushEntry(ctx context.Context, entry *storage.Entry) error

	// PullEntry fetches the remote copy of a key, if any.
	PullEntry(ctx context.Context, key string) (*storage.Entry, bool, error)

	// PushTombstone tells the remote backend to remove its copy.
	PushTombstone(ctx context.Context, key string) error
}

// Errors returned by remote store implementations.
var (
	// ErrPushFailed is returned when the backend rejects an upload.
	ErrPushFailed = errors.New("remote: push failed")

	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("remote: backend unavailable")
)
