package memory_test

import (
	"testing"

	"github.com/studyhall/attempts/internal/adapters/memory"
	"github.com/studyhall/attempts/pkg/ports"
	"github.com/studyhall/attempts/pkg/ports/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.AttemptStore {
		return memory.NewStore()
	})
}
