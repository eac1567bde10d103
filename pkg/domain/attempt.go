package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTimeBudget is the seconds budget granted to a new attempt.
const DefaultTimeBudget = 1800

// Attempt represents one subject's pass through one activity.
//
// Version is the optimistic-concurrency token: it starts at 1 and is
// incremented exactly once per accepted mutation. The durable store always
// holds the highest committed version; a cached copy may lag but never lead.
type Attempt struct {
	ID            string         `json:"id"`
	SubjectID     string         `json:"subject_id"`
	ActivityID    string         `json:"activity_id"`
	StartedAt     time.Time      `json:"started_at"`
	CurrentStep   int            `json:"current_step"`
	Responses     map[int]string `json:"responses"`
	Status        Status         `json:"status"`
	TimeRemaining int            `json:"time_remaining"`
	LastUpdated   time.Time      `json:"last_updated"`
	Version       int64          `json:"version"`
}

// NewAttempt builds a fresh record in Started with the default budget.
func NewAttempt(id, subjectID, activityID string, startedAt time.Time) *Attempt {
	return &Attempt{
		ID:            id,
		SubjectID:     subjectID,
		ActivityID:    activityID,
		StartedAt:     startedAt,
		CurrentStep:   0,
		Responses:     make(map[int]string),
		Status:        StatusStarted,
		TimeRemaining: DefaultTimeBudget,
		LastUpdated:   startedAt,
		Version:       1,
	}
}

// Encode serializes the full record for a cache entry.
func (a *Attempt) Encode() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attempt %s: %w", a.ID, err)
	}
	return data, nil
}

// DecodeAttempt parses a cache entry back into a record, validating the
// status variant and the integer-keyed response mapping.
func DecodeAttempt(data []byte) (*Attempt, error) {
	var a Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode attempt: %w", err)
	}
	if a.Responses == nil {
		a.Responses = make(map[int]string)
	}
	return &a, nil
}

// EncodeResponses serializes the response mapping for the store's blob column.
func EncodeResponses(responses map[int]string) ([]byte, error) {
	if responses == nil {
		responses = map[int]string{}
	}
	data, err := json.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("failed to encode responses: %w", err)
	}
	return data, nil
}

// DecodeResponses parses the blob column. Keys must be decimal integers.
func DecodeResponses(data []byte) (map[int]string, error) {
	if len(data) == 0 {
		return map[int]string{}, nil
	}
	responses := make(map[int]string)
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, fmt.Errorf("failed to decode responses: %w", err)
	}
	return responses, nil
}

// Summary is the listing projection of an attempt.
type Summary struct {
	ID          string    `json:"id"`
	ActivityID  string    `json:"activity_id"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CurrentStep int       `json:"current_step"`
}

// SubjectStats aggregates a subject's history across attempts.
type SubjectStats struct {
	TotalAttempts  int     `json:"total_attempts"`
	CompletedCount int     `json:"completed_count"`
	CompletionRate float64 `json:"completion_rate"`
}
