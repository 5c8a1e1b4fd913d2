package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is the messenger RPC surface the worker drives. Implementations
// wrap a concrete bot API; message IDs are provider-scoped.
type Provider interface {
	SendText(ctx context.Context, chatID, text string) (int64, error)
	EditText(ctx context.Context, chatID string, messageID int64, text string) error
	SendPhoto(ctx context.Context, chatID string, photo []byte, caption string) (int64, error)
	EditPhoto(ctx context.Context, chatID string, messageID int64, photo []byte, caption string) error
}

// RateLimitedError signals the provider asked us to back off. The worker
// sleeps RetryAfter and leaves the task pending without burning a retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ErrMessageGone signals the target message no longer exists or can no
// longer be edited. The worker drops the mirror row and recreates it.
var ErrMessageGone = errors.New("message to edit is gone")

// ErrNotModified signals an edit that changed nothing. Treated as success.
var ErrNotModified = errors.New("message is not modified")
