// Package memory provides an in-memory ports.AttemptStore.
//
// It mirrors the SQL adapters' semantics (including conditional-update
// atomicity) and exists for tests and throwaway environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studyhall/attempts/pkg/domain"
)

// Store is a mutex-guarded map of attempts.
type Store struct {
	mu   sync.Mutex
	data map[string]*domain.Attempt
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Attempt),
	}
}

func clone(a *domain.Attempt) *domain.Attempt {
	copied := *a
	copied.Responses = make(map[int]string, len(a.Responses))
	for k, v := range a.Responses {
		copied.Responses[k] = v
	}
	return &copied
}

// Insert stores a deep copy of the record, rejecting duplicate ids.
func (s *Store) Insert(ctx context.Context, attempt *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[attempt.ID]; exists {
		return domain.ErrConflict
	}
	s.data[attempt.ID] = clone(attempt)
	return nil
}

// FetchByID returns a deep copy of the current record.
func (s *Store) FetchByID(ctx context.Context, id string) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(a), nil
}

// ConditionalUpdate applies the mutation only if the stored version matches
// and the record is not terminal. The map mutex makes the check-and-write
// atomic, matching the single-statement SQL adapters.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, responses map[int]string, currentStep int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[id]
	if !ok || a.Version != expectedVersion || a.Status.Terminal() {
		return false, nil
	}

	a.Responses = make(map[int]string, len(responses))
	for k, v := range responses {
		a.Responses[k] = v
	}
	a.CurrentStep = currentStep
	a.Version = expectedVersion + 1
	a.LastUpdated = time.Now().UTC()
	if a.Status == domain.StatusStarted {
		a.Status = domain.StatusInProgress
	}
	return true, nil
}

// SetStatus transitions the record unless it is already terminal.
func (s *Store) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[id]
	if !ok || a.Status.Terminal() {
		return false, nil
	}
	a.Status = status
	a.LastUpdated = time.Now().UTC()
	return true, nil
}

// TouchLiveness refreshes last_updated only.
func (s *Store) TouchLiveness(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.LastUpdated = time.Now().UTC()
	return nil
}

// ListBySubject returns the subject's attempts, most recent first.
func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []domain.Summary
	for _, a := range s.data {
		if a.SubjectID != subjectID {
			continue
		}
		summaries = append(summaries, domain.Summary{
			ID:          a.ID,
			ActivityID:  a.ActivityID,
			Status:      a.Status,
			StartedAt:   a.StartedAt,
			CurrentStep: a.CurrentStep,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries, nil
}

// SubjectStats aggregates the subject's attempt history.
func (s *Store) SubjectStats(ctx context.Context, subjectID string) (*domain.SubjectStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.SubjectStats{}
	for _, a := range s.data {
		if a.SubjectID != subjectID {
			continue
		}
		stats.TotalAttempts++
		if a.Status == domain.StatusCompleted {
			stats.CompletedCount++
		}
	}
	if stats.TotalAttempts > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TotalAttempts)
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
