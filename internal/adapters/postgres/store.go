// Package postgres provides the production ports.AttemptStore on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/studyhall/attempts/pkg/domain"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Store implements ports.AttemptStore on a PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

// NewStore connects with the given DSN and ensures the schema.
func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	store := &Store{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id VARCHAR(36) PRIMARY KEY,
		subject_id VARCHAR(36) NOT NULL,
		activity_id VARCHAR(36) NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		responses JSONB NOT NULL DEFAULT '{}',
		status VARCHAR(20) NOT NULL DEFAULT 'started',
		time_remaining INTEGER NOT NULL DEFAULT 1800,
		last_updated TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_subject ON attempts(subject_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_status ON attempts(status);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}

// Insert persists a new record, reporting domain.ErrConflict on a duplicate id.
func (s *Store) Insert(ctx context.Context, a *domain.Attempt) error {
	responses, err := domain.EncodeResponses(a.Responses)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO attempts (id, subject_id, activity_id, started_at, current_step, responses, status, time_remaining, last_updated, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.SubjectID, a.ActivityID, a.StartedAt, a.CurrentStep,
		responses, string(a.Status), a.TimeRemaining, a.LastUpdated, a.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("attempt %s: %w", a.ID, domain.ErrConflict)
		}
		return unavailable("insert attempt", err)
	}
	return nil
}

// FetchByID returns the current durable record.
func (s *Store) FetchByID(ctx context.Context, id string) (*domain.Attempt, error) {
	query := `
		SELECT id, subject_id, activity_id, started_at, current_step, responses, status, time_remaining, last_updated, version
		FROM attempts
		WHERE id = $1
	`

	return scanAttempt(s.db.QueryRowContext(ctx, query, id))
}

func scanAttempt(row *sql.Row) (*domain.Attempt, error) {
	var a domain.Attempt
	var responses []byte
	var status string

	err := row.Scan(
		&a.ID, &a.SubjectID, &a.ActivityID, &a.StartedAt, &a.CurrentStep,
		&responses, &status, &a.TimeRemaining, &a.LastUpdated, &a.Version,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("fetch attempt", err)
	}

	if a.Status, err = domain.ParseStatus(status); err != nil {
		return nil, err
	}
	if a.Responses, err = domain.DecodeResponses(responses); err != nil {
		return nil, err
	}
	return &a, nil
}

// ConditionalUpdate performs the single-statement optimistic write. The
// version and status predicates make the check-and-write atomic; an update
// against a stale version or a terminal record changes nothing.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, responses map[int]string, currentStep int) (bool, error) {
	encoded, err := domain.EncodeResponses(responses)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE attempts
		SET responses = $1,
		    current_step = $2,
		    version = $3,
		    last_updated = $4,
		    status = CASE WHEN status = 'started' THEN 'in_progress' ELSE status END
		WHERE id = $5 AND version = $6 AND status NOT IN ('completed', 'expired', 'abandoned')
	`

	result, err := s.db.ExecContext(ctx, query,
		encoded, currentStep, expectedVersion+1, time.Now().UTC(),
		id, expectedVersion,
	)
	if err != nil {
		return false, unavailable("conditional update", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("conditional update", err)
	}
	return affected > 0, nil
}

// SetStatus transitions the record unless it is already terminal.
func (s *Store) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	query := `
		UPDATE attempts
		SET status = $1, last_updated = $2
		WHERE id = $3 AND status NOT IN ('completed', 'expired', 'abandoned')
	`

	result, err := s.db.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return false, unavailable("set status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("set status", err)
	}
	return affected > 0, nil
}

// TouchLiveness refreshes last_updated without touching version or content.
func (s *Store) TouchLiveness(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET last_updated = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return unavailable("touch liveness", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("touch liveness", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListBySubject returns the subject's attempts, most recent first.
func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]domain.Summary, error) {
	query := `
		SELECT id, activity_id, status, started_at, current_step
		FROM attempts
		WHERE subject_id = $1
		ORDER BY started_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, unavailable("list attempts", err)
	}
	defer rows.Close()

	var summaries []domain.Summary
	for rows.Next() {
		var summary domain.Summary
		var status string

		err := rows.Scan(&summary.ID, &summary.ActivityID, &status, &summary.StartedAt, &summary.CurrentStep)
		if err != nil {
			return nil, unavailable("scan attempt summary", err)
		}
		if summary.Status, err = domain.ParseStatus(status); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SubjectStats aggregates the subject's attempt history.
func (s *Store) SubjectStats(ctx context.Context, subjectID string) (*domain.SubjectStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed
		FROM attempts
		WHERE subject_id = $1
	`

	var stats domain.SubjectStats
	var completed sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(&stats.TotalAttempts, &completed)
	if err != nil {
		return nil, unavailable("subject stats", err)
	}

	if completed.Valid {
		stats.CompletedCount = int(completed.Int64)
	}
	if stats.TotalAttempts > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TotalAttempts)
	}
	return &stats, nil
}

// Truncate removes every attempt. Intended for test isolation only.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE attempts`); err != nil {
		return unavailable("truncate attempts", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
