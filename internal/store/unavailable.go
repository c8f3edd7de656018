package store

import (
	"context"
	"errors"
	"time"
)

// Unavailable is the Store used when no backend is configured. Every call
// fails with ErrUnavailable so that each component applies its documented
// outage policy instead of silently succeeding.
type Unavailable struct {
	Reason string
}

var _ Store = Unavailable{}

func (u Unavailable) err(op string) error {
	reason := u.Reason
	if reason == "" {
		reason = "no backend configured"
	}
	return &UnavailableError{Op: op, Err: errors.New(reason)}
}

func (u Unavailable) Get(context.Context, string) (string, error) { return "", u.err("get") }

func (u Unavailable) SetEx(context.Context, string, string, time.Duration) error {
	return u.err("setex")
}

func (u Unavailable) SetExIfExists(context.Context, string, string, time.Duration) (bool, error) {
	return false, u.err("setxx")
}

func (u Unavailable) Del(context.Context, ...string) error { return u.err("del") }

func (u Unavailable) TTL(context.Context, string) (time.Duration, error) { return 0, u.err("ttl") }

func (u Unavailable) Expire(context.Context, string, time.Duration) error { return u.err("expire") }

func (u Unavailable) IncrWindow(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, u.err("incr")
}

func (u Unavailable) LPush(context.Context, string, ...string) error { return u.err("lpush") }

func (u Unavailable) LRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, u.err("lrange")
}

func (u Unavailable) SAdd(context.Context, string, ...string) error { return u.err("sadd") }

func (u Unavailable) SRem(context.Context, string, ...string) error { return u.err("srem") }

func (u Unavailable) SMembers(context.Context, string) ([]string, error) {
	return nil, u.err("smembers")
}

func (u Unavailable) Tx(context.Context, func(tx Tx)) error { return u.err("tx") }

func (u Unavailable) Ping(context.Context) error { return u.err("ping") }
