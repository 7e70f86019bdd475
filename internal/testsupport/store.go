package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Enqueue records a work item for tests using the provided store.
func Enqueue(t testing.TB, st *store.Store, sessionID, payload string) *store.Item {
	t.Helper()

	item, err := st.Enqueue(context.Background(), sessionID, "", payload)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
