package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/studyhall/attempts/internal/adapters/postgres"
	"github.com/studyhall/attempts/pkg/ports"
	"github.com/studyhall/attempts/pkg/ports/storetest"
)

// TestPostgresStore_Contract runs the shared contract suite against a real
// PostgreSQL instance. Skipped unless ATTEMPTS_TEST_DATABASE_URL is set.
func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("ATTEMPTS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ATTEMPTS_TEST_DATABASE_URL not set")
	}

	storetest.Run(t, func(t *testing.T) ports.AttemptStore {
		store, err := postgres.NewStore(dsn)
		if err != nil {
			t.Fatalf("Failed to open postgres store: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Truncate(ctx); err != nil {
			t.Fatalf("Failed to truncate attempts: %v", err)
		}

		t.Cleanup(func() { store.Close() })
		return store
	})
}
