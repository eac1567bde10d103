// Package sqlite provides a ports.AttemptStore backed by SQLite.
//
// It mirrors the postgres adapter so small deployments and tests can run
// without an external database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/studyhall/attempts/pkg/domain"
)

// Store implements ports.AttemptStore on a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral store.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases
	// from silently splitting into one database per pooled connection.
	db.SetMaxOpenConns(1)

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
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		activity_id TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		current_step INTEGER NOT NULL,
		responses TEXT NOT NULL,
		status TEXT NOT NULL,
		time_remaining INTEGER NOT NULL,
		last_updated TIMESTAMP NOT NULL,
		version INTEGER NOT NULL
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.SubjectID, a.ActivityID, a.StartedAt, a.CurrentStep,
		string(responses), string(a.Status), a.TimeRemaining, a.LastUpdated, a.Version,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
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
		WHERE id = ?
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
		SET responses = ?,
		    current_step = ?,
		    version = ?,
		    last_updated = ?,
		    status = CASE WHEN status = 'started' THEN 'in_progress' ELSE status END
		WHERE id = ? AND version = ? AND status NOT IN ('completed', 'expired', 'abandoned')
	`

	result, err := s.db.ExecContext(ctx, query,
		string(encoded), currentStep, expectedVersion+1, time.Now().UTC(),
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
		SET status = ?, last_updated = ?
		WHERE id = ? AND status NOT IN ('completed', 'expired', 'abandoned')
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
		`UPDATE attempts SET last_updated = ? WHERE id = ?`,
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
		WHERE subject_id = ?
		ORDER BY started_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, unavailable("list attempts", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]domain.Summary, error) {
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
		WHERE subject_id = ?
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

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
