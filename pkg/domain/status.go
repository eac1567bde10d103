package domain

import (
	"encoding/json"
	"fmt"
)

// Status defines the lifecycle state of an attempt.
type Status string

const (
	StatusStarted    Status = "started"     // Created, no answer submitted yet
	StatusInProgress Status = "in_progress" // At least one answer accepted
	StatusCompleted  Status = "completed"   // Finished by the subject
	StatusExpired    Status = "expired"     // Time budget ran out
	StatusAbandoned  Status = "abandoned"   // Given up or swept as orphaned
)

// Terminal reports whether the status accepts no further mutation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusAbandoned:
		return true
	}
	return false
}

// ParseStatus validates a raw status value against the closed set.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusStarted, StatusInProgress, StatusCompleted, StatusExpired, StatusAbandoned:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown attempt status %q", raw)
}

// UnmarshalJSON enforces the closed set on every decode, so a corrupted
// cache entry or store row cannot smuggle in an unknown status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
