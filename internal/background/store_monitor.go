package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger is the part of the store the monitor needs
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreStatus is a snapshot of the last store health check
type StoreStatus struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// StoreMonitor periodically pings the key-value store and remembers the
// result for the health endpoint. It only observes; each component keeps its
// own outage policy.
type StoreMonitor struct {
	store    Pinger
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	status StoreStatus
}

// NewStoreMonitor creates a new store monitor
func NewStoreMonitor(store Pinger, logger *slog.Logger, interval time.Duration) *StoreMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := 2 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &StoreMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic health check
func (m *StoreMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Run immediately on startup
	m.Check(ctx)

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-m.stopCh:
			m.logger.Info("store monitor stopped")
			return
		case <-ctx.Done():
			m.logger.Info("store monitor context cancelled")
			return
		}
	}
}

// Check pings the store once and records the outcome. Transitions between
// healthy and unhealthy are logged.
func (m *StoreMonitor) Check(ctx context.Context) StoreStatus {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.store.Ping(pingCtx)
	status := StoreStatus{Healthy: err == nil, CheckedAt: time.Now().UTC()}
	if err != nil {
		status.Error = err.Error()
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	switch {
	case !status.Healthy && (previous.Healthy || previous.CheckedAt.IsZero()):
		m.logger.Error("key-value store unreachable", slog.String("error", status.Error))
	case status.Healthy && !previous.Healthy && !previous.CheckedAt.IsZero():
		m.logger.Info("key-value store recovered")
	}

	return status
}

// Status returns the last recorded check
func (m *StoreMonitor) Status() StoreStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Stop signals the monitor to stop. Safe to call more than once.
func (m *StoreMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
