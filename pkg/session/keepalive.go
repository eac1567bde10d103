package session

import (
	"context"
	"errors"
	"time"

	"github.com/studyhall/attempts/pkg/domain"
)

// spawnKeepAlive launches the liveness loop for a freshly created session
// and registers its cancel handle. Exactly one loop exists per active id.
func (m *Manager) spawnKeepAlive(id string) {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &loopHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if old, exists := m.loops[id]; exists {
		old.cancel()
	}
	m.loops[id] = handle
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
	}

	go m.keepAlive(ctx, id, handle)
}

// stopKeepAlive cancels the session's loop without waiting for it to exit.
// The loop wakes on cancellation and performs no store writes afterwards.
func (m *Manager) stopKeepAlive(id string) {
	m.mu.Lock()
	handle, exists := m.loops[id]
	m.mu.Unlock()

	if exists {
		handle.cancel()
	}
}

// forget deregisters the loop once it has exited.
func (m *Manager) forget(id string, handle *loopHandle) {
	m.mu.Lock()
	if m.loops[id] == handle {
		delete(m.loops, id)
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsActive.Dec()
	}
}

// keepAlive refreshes the session's liveness timestamp on a fixed interval
// until the session completes, disappears, or the loop is cancelled.
//
// The loop never mutates version, status, responses, or the cursor; its only
// write is TouchLiveness. Transient store errors are logged and the loop
// continues to the next tick; only cancellation or a confirmed terminal or
// absent record ends it.
func (m *Manager) keepAlive(ctx context.Context, id string, handle *loopHandle) {
	defer close(handle.done)
	defer m.forget(id, handle)

	ticker := time.NewTicker(m.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Keep-alive cancelled", "session_id", id)
			return
		case <-ticker.C:
			attempt, err := m.store.FetchByID(ctx, id)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				m.logger.Info("Keep-alive exiting, session gone", "session_id", id)
				return
			case err != nil:
				m.logger.Warn("Keep-alive read failed", "session_id", id, "err", err)
				if m.metrics != nil {
					m.metrics.KeepaliveErrors.Inc()
				}
				continue
			case attempt.Status.Terminal():
				m.logger.Debug("Keep-alive exiting, session terminal", "session_id", id, "status", attempt.Status)
				return
			}

			if err := m.store.TouchLiveness(ctx, id); err != nil {
				m.logger.Warn("Keep-alive touch failed", "session_id", id, "err", err)
				if m.metrics != nil {
					m.metrics.KeepaliveErrors.Inc()
				}
				continue
			}
			if m.metrics != nil {
				m.metrics.KeepaliveTicks.Inc()
			}
		}
	}
}

// activeLoops reports how many keep-alive loops are currently registered.
func (m *Manager) activeLoops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}
