package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/studyhall/attempts/internal/logging"
	"github.com/studyhall/attempts/internal/observability"
	"github.com/studyhall/attempts/pkg/domain"
	"github.com/studyhall/attempts/pkg/ports"
)

const (
	// DefaultCacheTTL bounds the lifetime of a cache entry.
	DefaultCacheTTL = 30 * time.Minute

	// DefaultKeepAliveInterval is the tick period of the liveness loop.
	DefaultKeepAliveInterval = 30 * time.Second
)

// Manager orchestrates attempt state across the durable store and the cache.
type Manager struct {
	store ports.AttemptStore

	// Optional collaborators; all may be nil.
	cache   ports.Cache
	catalog ports.ActivityCatalog
	metrics *observability.Metrics

	logger *slog.Logger

	cacheTTL          time.Duration
	keepAliveInterval time.Duration

	mu    sync.Mutex
	loops map[string]*loopHandle
}

// loopHandle tracks one session's keep-alive goroutine.
type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures the Manager.
type Option func(*Manager)

// WithCache enables the ephemeral read cache.
func WithCache(cache ports.Cache) Option {
	return func(m *Manager) {
		m.cache = cache
	}
}

// WithCatalog makes Create verify the activity id against the content catalog.
func WithCatalog(catalog ports.ActivityCatalog) Option {
	return func(m *Manager) {
		m.catalog = catalog
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics wires the Prometheus metric set.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithCacheTTL overrides the cache entry lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.cacheTTL = ttl
	}
}

// WithKeepAliveInterval overrides the liveness tick period.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(m *Manager) {
		m.keepAliveInterval = interval
	}
}

// NewManager creates a Manager over the given durable store. Construct one
// per process and hand it to the request layer; there is no package-level
// instance.
func NewManager(store ports.AttemptStore, opts ...Option) *Manager {
	m := &Manager{
		store:             store,
		logger:            logging.NewNop(),
		cacheTTL:          DefaultCacheTTL,
		keepAliveInterval: DefaultKeepAliveInterval,
		loops:             make(map[string]*loopHandle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new attempt for the subject on the activity: it persists
// the record, warms the cache, and launches the keep-alive loop.
func (m *Manager) Create(ctx context.Context, subjectID, activityID string) (*domain.Attempt, error) {
	if m.catalog != nil {
		exists, err := m.catalog.ActivityExists(ctx, activityID)
		if err != nil {
			return nil, fmt.Errorf("check activity %s: %w", activityID, err)
		}
		if !exists {
			return nil, fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
		}
	}

	attempt := domain.NewAttempt(uuid.NewString(), subjectID, activityID, time.Now().UTC())

	if err := m.store.Insert(ctx, attempt); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A fresh UUID colliding means the id scheme is broken, not
			// that the caller raced anyone.
			return nil, fmt.Errorf("attempt %s: %w", attempt.ID, domain.ErrIdentifierCollision)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCreationFailed, err)
	}

	m.cachePut(ctx, attempt)
	m.spawnKeepAlive(attempt.ID)

	if m.metrics != nil {
		m.metrics.SessionsCreated.Inc()
	}
	m.logger.Info("Created session", "session_id", attempt.ID, "subject_id", subjectID, "activity_id", activityID)
	return attempt, nil
}

// Get returns the session from the cache when present, falling back to the
// durable store.
//
// A durable hit after a cache miss does NOT repopulate the cache: only the
// write path fills it, so every cached value was produced by the writer that
// committed it. A read-side fill could race an in-flight writer and pin a
// stale version for a full TTL.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Attempt, error) {
	if m.cache != nil {
		data, err := m.cache.Get(ctx, id)
		switch {
		case err == nil:
			attempt, decodeErr := domain.DecodeAttempt(data)
			if decodeErr == nil {
				return attempt, nil
			}
			m.logger.Warn("Discarding undecodable cache entry", "session_id", id, "err", decodeErr)
		case !errors.Is(err, domain.ErrCacheMiss):
			m.logger.Warn("Cache read failed, falling back to store", "session_id", id, "err", err)
			if m.metrics != nil {
				m.metrics.CacheFallbacks.Inc()
			}
		}
	}

	return m.store.FetchByID(ctx, id)
}

// UpdateProgress records a response for one step using optimistic concurrency.
//
// It reads the durable record directly (bypassing the cache), then issues a
// conditional write against the observed version. Two concurrent calls can
// read the same version, but at most one write is accepted; the loser gets
// accepted=false and nothing is merged or retried on its behalf — re-reading
// and resubmitting is deliberately the caller's decision.
//
// accepted=false also covers a missing record and a terminal session; callers
// needing a precise outcome re-check with Get.
func (m *Manager) UpdateProgress(ctx context.Context, id string, stepID int, response string) (bool, error) {
	current, err := m.store.FetchByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		m.countUpdate("error")
		return false, err
	}
	if current.Status.Terminal() {
		return false, nil
	}

	responses := make(map[int]string, len(current.Responses)+1)
	for k, v := range current.Responses {
		responses[k] = v
	}
	responses[stepID] = response

	accepted, err := m.store.ConditionalUpdate(ctx, id, current.Version, responses, stepID)
	if err != nil {
		m.countUpdate("error")
		return false, err
	}
	if !accepted {
		m.countUpdate("rejected")
		m.logger.Warn("Version conflict", "session_id", id, "expected_version", current.Version)
		return false, nil
	}

	// Refresh the cache with the record this call just committed. Built
	// locally from the accepted write, so its version can never lead the
	// durable one.
	committed := *current
	committed.Responses = responses
	committed.CurrentStep = stepID
	committed.Version = current.Version + 1
	committed.LastUpdated = time.Now().UTC()
	if committed.Status == domain.StatusStarted {
		committed.Status = domain.StatusInProgress
	}
	m.cachePut(ctx, &committed)

	m.countUpdate("accepted")
	return true, nil
}

// Complete marks the session completed, drops its cache entry, and stops its
// keep-alive loop. Completing an already-terminal session returns false with
// no side effects.
func (m *Manager) Complete(ctx context.Context, id string) (bool, error) {
	changed, err := m.store.SetStatus(ctx, id, domain.StatusCompleted)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if m.cache != nil {
		if err := m.cache.Delete(ctx, id); err != nil {
			// The entry expires on its own; completion already committed.
			m.logger.Warn("Failed to drop cache entry", "session_id", id, "err", err)
		}
	}
	m.stopKeepAlive(id)

	m.logger.Info("Completed session", "session_id", id)
	return true, nil
}

// ListBySubject returns the subject's attempts, most recent first.
func (m *Manager) ListBySubject(ctx context.Context, subjectID string) ([]domain.Summary, error) {
	return m.store.ListBySubject(ctx, subjectID)
}

// Stats aggregates the subject's attempt history.
func (m *Manager) Stats(ctx context.Context, subjectID string) (*domain.SubjectStats, error) {
	return m.store.SubjectStats(ctx, subjectID)
}

// Shutdown cancels every keep-alive loop and waits for them to exit, bounded
// by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*loopHandle, 0, len(m.loops))
	for _, h := range m.loops {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) cachePut(ctx context.Context, attempt *domain.Attempt) {
	if m.cache == nil {
		return
	}
	data, err := attempt.Encode()
	if err != nil {
		m.logger.Warn("Failed to encode cache entry", "session_id", attempt.ID, "err", err)
		return
	}
	if err := m.cache.Put(ctx, attempt.ID, data, m.cacheTTL); err != nil {
		// Cache-aside: the durable write already succeeded, so a failed
		// cache write only costs read latency.
		m.logger.Warn("Failed to write cache entry", "session_id", attempt.ID, "err", err)
	}
}

func (m *Manager) countUpdate(result string) {
	if m.metrics != nil {
		m.metrics.Updates.WithLabelValues(result).Inc()
	}
}
