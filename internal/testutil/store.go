package testutil

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/amrwatch/internal/store"
)

// NewEventStore returns an event mirror backed by an in-memory database
// that is closed when the test completes.
func NewEventStore(t *testing.T) *store.EventStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("testutil.NewEventStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	es, err := store.NewEventStore(context.Background(), db, zap.NewNop())
	if err != nil {
		t.Fatalf("testutil.NewEventStore: %v", err)
	}
	return es
}
