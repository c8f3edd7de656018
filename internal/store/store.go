// Package store is the key-value TTL store every gateway component keeps its
// state in. All cross-request coordination goes through the atomic primitives
// exposed here; there is no in-process locking.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable classifies every failure to reach the backing store.
	// Components decide between fail-open and fail-closed by testing for it
	// with errors.Is.
	ErrUnavailable = errors.New("store unavailable")
)

// UnavailableError wraps the transport error behind an unreachable store.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) match regardless of the cause.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Store is the capability set the gateway needs from its key-value backend.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// SetExIfExists overwrites key only while it still exists (SET XX EX) and
	// reports whether the write happened.
	SetExIfExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// IncrWindow increments key by one and sets its expiry to window only if
	// the key did not exist before, in a single indivisible operation. It
	// returns the new count and the remaining time-to-live.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Tx queues the writes issued by fn and applies them atomically.
	Tx(ctx context.Context, fn func(tx Tx)) error

	Ping(ctx context.Context) error
}

// Tx collects writes for Store.Tx. Calls are queued, not executed, so they
// return nothing.
type Tx interface {
	SetEx(key, value string, ttl time.Duration)
	Del(keys ...string)
	Expire(key string, ttl time.Duration)
	LPush(key string, values ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
}
