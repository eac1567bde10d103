package sqlite_test

import (
	"testing"

	"github.com/studyhall/attempts/internal/adapters/sqlite"
	"github.com/studyhall/attempts/pkg/ports"
	"github.com/studyhall/attempts/pkg/ports/storetest"
)

func TestSQLiteStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.AttemptStore {
		store, err := sqlite.NewStore(":memory:")
		if err != nil {
			t.Fatalf("Failed to open sqlite store: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}
