package ports

import (
	"context"

	"github.com/studyhall/attempts/pkg/domain"
)

// AttemptStore is the canonical, versioned durable store for attempts.
//
// ConditionalUpdate is the single serialization point for a given attempt id:
// implementations must make the version check and the write atomic with
// respect to concurrent callers (a single conditional statement or an
// equivalent transaction).
type AttemptStore interface {
	// Insert persists a new record. Returns domain.ErrConflict if the id
	// already exists.
	Insert(ctx context.Context, attempt *domain.Attempt) error

	// FetchByID returns the current durable record, or domain.ErrNotFound.
	FetchByID(ctx context.Context, id string) (*domain.Attempt, error)

	// ConditionalUpdate applies the new responses and cursor only if the
	// stored version equals expectedVersion, bumping version to
	// expectedVersion+1 and refreshing last_updated. It reports whether the
	// write was accepted; a rejected update mutates nothing.
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, responses map[int]string, currentStep int) (bool, error)

	// SetStatus sets the status only if the current status is not terminal,
	// reporting whether a change occurred.
	SetStatus(ctx context.Context, id string, status domain.Status) (bool, error)

	// TouchLiveness refreshes last_updated without touching version or
	// content. Used by the keep-alive loop only.
	TouchLiveness(ctx context.Context, id string) error

	// ListBySubject returns the subject's attempts, most recent first.
	ListBySubject(ctx context.Context, subjectID string) ([]domain.Summary, error)

	// SubjectStats aggregates the subject's attempt history.
	SubjectStats(ctx context.Context, subjectID string) (*domain.SubjectStats, error)

	// Close releases the underlying connection pool.
	Close() error
}
