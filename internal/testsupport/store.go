package testsupport

import (
	"context"
	"testing"
	"time"

	"barscan/internal/config"
	"barscan/internal/records"
)

// MustOpenStore opens the configured records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) records.Store {
	t.Helper()

	store, err := records.Open(context.Background(), cfg.Store.Backend)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// AppendRecords appends one record per text and fails the test on rejection.
func AppendRecords(t testing.TB, store records.Store, texts ...string) []records.Record {
	t.Helper()

	out := make([]records.Record, 0, len(texts))
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, text := range texts {
		rec := records.NewRecord(text, "QR_CODE", base.Add(time.Duration(i)*time.Second))
		ok, err := store.Append(context.Background(), rec)
		if err != nil {
			t.Fatalf("store.Append(%q): %v", text, err)
		}
		if !ok {
			t.Fatalf("store.Append(%q) rejected", text)
		}
		out = append(out, rec)
	}
	return out
}
