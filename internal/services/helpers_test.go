package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/gatekeeper/internal/store"
)

func newTestStore(t *testing.T) (store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewRedisStore(rdb), mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// hookStore runs afterGet once the wrapped Get has returned, which lets a test
// interleave another operation between a read and the write that follows it.
type hookStore struct {
	store.Store
	afterGet func(key string)
}

func (h *hookStore) Get(ctx context.Context, key string) (string, error) {
	val, err := h.Store.Get(ctx, key)
	if h.afterGet != nil {
		h.afterGet(key)
	}
	return val, err
}
