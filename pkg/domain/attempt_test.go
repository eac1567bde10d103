package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttempt_Defaults(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAttempt("a-1", "u1", "q1", started)

	assert.Equal(t, "a-1", a.ID)
	assert.Equal(t, "u1", a.SubjectID)
	assert.Equal(t, "q1", a.ActivityID)
	assert.Equal(t, StatusStarted, a.Status)
	assert.Equal(t, 0, a.CurrentStep)
	assert.Empty(t, a.Responses)
	assert.Equal(t, DefaultTimeBudget, a.TimeRemaining)
	assert.EqualValues(t, 1, a.Version)
	assert.Equal(t, started, a.LastUpdated)
}

func TestAttempt_EncodeDecode(t *testing.T) {
	a := NewAttempt("a-2", "u1", "q1", time.Now().UTC())
	a.Responses[1] = "A"
	a.Responses[2] = "C"
	a.CurrentStep = 2
	a.Status = StatusInProgress
	a.Version = 3

	data, err := a.Encode()
	require.NoError(t, err)

	decoded, err := DecodeAttempt(data)
	require.NoError(t, err)

	assert.Equal(t, a.ID, decoded.ID)
	assert.Equal(t, StatusInProgress, decoded.Status)
	assert.Equal(t, map[int]string{1: "A", 2: "C"}, decoded.Responses)
	assert.EqualValues(t, 3, decoded.Version)
}

func TestDecodeAttempt_RejectsUnknownStatus(t *testing.T) {
	_, err := DecodeAttempt([]byte(`{"id":"x","status":"paused"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown attempt status")
}

func TestDecodeAttempt_DefaultsNilResponses(t *testing.T) {
	decoded, err := DecodeAttempt([]byte(`{"id":"x","status":"started"}`))
	require.NoError(t, err)
	assert.NotNil(t, decoded.Responses)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusStarted.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.True(t, StatusAbandoned.Terminal())
}

func TestDecodeResponses_IntegerKeys(t *testing.T) {
	responses, err := DecodeResponses([]byte(`{"1":"A","10":"B"}`))
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "A", 10: "B"}, responses)

	_, err = DecodeResponses([]byte(`{"one":"A"}`))
	require.Error(t, err)

	empty, err := DecodeResponses(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
