// Package storetest provides a reusable contract suite that verifies an
// adapter complies with ports.AttemptStore, including the atomicity of
// ConditionalUpdate under concurrent writers.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/attempts/pkg/domain"
	"github.com/studyhall/attempts/pkg/ports"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) ports.AttemptStore

// Run executes the AttemptStore contract suite against the factory.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	seed := func(t *testing.T, store ports.AttemptStore, id string) *domain.Attempt {
		t.Helper()
		a := domain.NewAttempt(id, "u1", "q1", time.Now().UTC().Truncate(time.Millisecond))
		require.NoError(t, store.Insert(ctx, a))
		return a
	}

	t.Run("InsertAndFetch", func(t *testing.T) {
		store := newStore(t)
		a := domain.NewAttempt("at-1", "u1", "q1", time.Now().UTC().Truncate(time.Millisecond))
		a.Responses[1] = "A"
		require.NoError(t, store.Insert(ctx, a))

		got, err := store.FetchByID(ctx, "at-1")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, a.SubjectID, got.SubjectID)
		assert.Equal(t, a.ActivityID, got.ActivityID)
		assert.Equal(t, domain.StatusStarted, got.Status)
		assert.Equal(t, map[int]string{1: "A"}, got.Responses)
		assert.Equal(t, domain.DefaultTimeBudget, got.TimeRemaining)
		assert.EqualValues(t, 1, got.Version)
	})

	t.Run("Insert_DuplicateIsConflict", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "at-dup")
		err := store.Insert(ctx, domain.NewAttempt("at-dup", "u2", "q2", time.Now().UTC()))
		require.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Fetch_NotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.FetchByID(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ConditionalUpdate_Accepted", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "at-2")

		accepted, err := store.ConditionalUpdate(ctx, "at-2", 1, map[int]string{3: "B"}, 3)
		require.NoError(t, err)
		assert.True(t, accepted)

		got, err := store.FetchByID(ctx, "at-2")
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.Version)
		assert.Equal(t, 3, got.CurrentStep)
		assert.Equal(t, map[int]string{3: "B"}, got.Responses)
		assert.Equal(t, domain.StatusInProgress, got.Status)
	})

	t.Run("ConditionalUpdate_StaleVersionRejected", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "at-3")

		accepted, err := store.ConditionalUpdate(ctx, "at-3", 7, map[int]string{1: "X"}, 1)
		require.NoError(t, err)
		assert.False(t, accepted)

		got, err := store.FetchByID(ctx, "at-3")
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.Version)
		assert.Empty(t, got.Responses)
		assert.Equal(t, domain.StatusStarted, got.Status)
	})

	t.Run("ConditionalUpdate_MissingID", func(t *testing.T) {
		store := newStore(t)
		accepted, err := store.ConditionalUpdate(ctx, "nope", 1, map[int]string{1: "A"}, 1)
		require.NoError(t, err)
		assert.False(t, accepted)
	})

	t.Run("ConditionalUpdate_MonotonicVersion", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "at-4")

		responses := map[int]string{}
		for step := 1; step <= 5; step++ {
			responses[step] = "A"
			accepted, err := store.ConditionalUpdate(ctx, "at-4", int64(step), responses, step)
			require.NoError(t, err)
			require.True(t, accepted)

			got, err := store.FetchByID(ctx, "at-4")
			require.NoError(t, err)
			require.EqualValues(t, step+1, got.Version)
		}
	})

	t.Run("ConditionalUpdate_AtMostOneWins", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "at-race")

		const writers = 8
		var wg sync.WaitGroup
		results := make([]bool, writers)
		errs := make([]error, writers)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = store.ConditionalUpdate(ctx, "at-race", 1, map[int]string{1: "A"}, 1)
			}(i)
		}
		wg.Wait()

		wins := 0
		for i := 0; i < writers; i++ {
			require.NoError(t, errs[i])
			if results[i] {
				wins++
			}
		}
		assert.Equal(t, 1, wins, "exactly one concurrent writer must win")

		got, err := store.FetchByID(ctx, "at-race")
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("SetStatus_TerminalGuard", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "at-5")

		changed, err := store.SetStatus(ctx, "at-5", domain.StatusCompleted)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = store.SetStatus(ctx, "at-5", domain.StatusAbandoned)
		require.NoError(t, err)
		assert.False(t, changed, "terminal status must not change again")

		got, err := store.FetchByID(ctx, "at-5")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)
	})

	t.Run("SetStatus_MissingID", func(t *testing.T) {
		store := newStore(t)
		changed, err := store.SetStatus(ctx, "nope", domain.StatusCompleted)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("ConditionalUpdate_TerminalRejected", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "at-6")

		changed, err := store.SetStatus(ctx, "at-6", domain.StatusCompleted)
		require.NoError(t, err)
		require.True(t, changed)

		// SetStatus does not bump the version, so the version check alone
		// would let this through. The store must reject it on status.
		accepted, err := store.ConditionalUpdate(ctx, "at-6", 1, map[int]string{1: "A"}, 1)
		require.NoError(t, err)
		assert.False(t, accepted)
	})

	t.Run("TouchLiveness", func(t *testing.T) {
		store := newStore(t)
		a := seed(t, store, "at-7")

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, store.TouchLiveness(ctx, "at-7"))

		got, err := store.FetchByID(ctx, "at-7")
		require.NoError(t, err)
		assert.True(t, got.LastUpdated.After(a.LastUpdated), "last_updated must advance")
		assert.EqualValues(t, 1, got.Version, "touch must not bump the version")
		assert.Empty(t, got.Responses)
	})

	t.Run("ListBySubject_MostRecentFirst", func(t *testing.T) {
		store := newStore(t)
		base := time.Now().UTC().Truncate(time.Millisecond)

		older := domain.NewAttempt("at-old", "u1", "q1", base.Add(-time.Hour))
		newer := domain.NewAttempt("at-new", "u1", "q2", base)
		other := domain.NewAttempt("at-other", "u2", "q1", base)
		require.NoError(t, store.Insert(ctx, older))
		require.NoError(t, store.Insert(ctx, newer))
		require.NoError(t, store.Insert(ctx, other))

		summaries, err := store.ListBySubject(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "at-new", summaries[0].ID)
		assert.Equal(t, "at-old", summaries[1].ID)
		assert.Equal(t, "q2", summaries[0].ActivityID)
	})

	t.Run("SubjectStats", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "st-1")
		seed(t, store, "st-2")

		changed, err := store.SetStatus(ctx, "st-1", domain.StatusCompleted)
		require.NoError(t, err)
		require.True(t, changed)

		stats, err := store.SubjectStats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalAttempts)
		assert.Equal(t, 1, stats.CompletedCount)
		assert.InDelta(t, 0.5, stats.CompletionRate, 0.001)
	})
}
