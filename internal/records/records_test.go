package records_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"barscan/internal/records"
	"barscan/internal/testsupport"
)

var backends = []string{"memory", "sqlite"}

func openStore(t *testing.T, backend string) records.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(backend))
	return testsupport.MustOpenStore(t, cfg)
}

func texts(t *testing.T, store records.Store) []string {
	t.Helper()
	all, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	out := make([]string, len(all))
	for i, rec := range all {
		out[i] = rec.Text
	}
	return out
}

func TestStoreAppendRejectsDuplicateText(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			store := openStore(t, backend)
			testsupport.AppendRecords(t, store, "A1", "B2")

			ok, err := store.Append(ctx, records.NewRecord("A1", "EAN_13", time.Now()))
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			if ok {
				t.Fatal("duplicate text accepted")
			}
			if n, _ := store.Len(ctx); n != 2 {
				t.Fatalf("Len = %d, want 2", n)
			}
		})
	}
}

func TestStoreOrderRemoveClearLookup(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			store := openStore(t, backend)
			recs := testsupport.AppendRecords(t, store, "A1", "B2", "C3")

			if got := records.ExportText(mustAll(t, store)); got != "A1\nB2\nC3" {
				t.Fatalf("ExportText = %q", got)
			}

			found, ok, err := store.Lookup(ctx, "B2")
			if err != nil || !ok {
				t.Fatalf("Lookup B2: ok=%v err=%v", ok, err)
			}
			if found.ID != recs[1].ID || found.Format != "QR_CODE" || !found.Timestamp.Equal(recs[1].Timestamp) {
				t.Fatalf("Lookup returned %+v, want %+v", found, recs[1])
			}
			if _, ok, _ := store.Lookup(ctx, "b2"); ok {
				t.Fatal("lookup must be an exact match")
			}

			if err := store.Remove(ctx, recs[1].ID); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if err := store.Remove(ctx, recs[1].ID); !errors.Is(err, records.ErrNotFound) {
				t.Fatalf("second Remove: expected ErrNotFound, got %v", err)
			}
			if got := texts(t, store); fmt.Sprint(got) != "[A1 C3]" {
				t.Fatalf("after remove: %v", got)
			}
			if _, ok, _ := store.Lookup(ctx, "C3"); !ok {
				t.Fatal("lookup index stale after remove")
			}

			// A removed value may be scanned again and lands at the end.
			testsupport.AppendRecords(t, store, "B2")
			if got := texts(t, store); fmt.Sprint(got) != "[A1 C3 B2]" {
				t.Fatalf("after re-append: %v", got)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if n, _ := store.Len(ctx); n != 0 {
				t.Fatalf("Len after clear = %d", n)
			}
			if records.ExportText(mustAll(t, store)) != "" {
				t.Fatal("export of empty store should be empty")
			}
		})
	}
}

func TestStoreUniquenessUnderRandomOperations(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			store := openStore(t, backend)
			rng := rand.New(rand.NewPCG(7, 11))
			values := []string{"A", "B", "C", "D", "E"}

			for i := 0; i < 300; i++ {
				switch op := rng.IntN(10); {
				case op < 7:
					text := values[rng.IntN(len(values))]
					if _, err := store.Append(ctx, records.NewRecord(text, "", time.Now())); err != nil {
						t.Fatal(err)
					}
				case op < 9:
					all := mustAll(t, store)
					if len(all) > 0 {
						if err := store.Remove(ctx, all[rng.IntN(len(all))].ID); err != nil {
							t.Fatal(err)
						}
					}
				default:
					if err := store.Clear(ctx); err != nil {
						t.Fatal(err)
					}
				}

				seen := map[string]bool{}
				for _, text := range texts(t, store) {
					if seen[text] {
						t.Fatalf("duplicate %q after %d operations", text, i+1)
					}
					seen[text] = true
				}
			}
		})
	}
}

func TestNewRecordIDsAreUnique(t *testing.T) {
	at := time.Now()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		rec := records.NewRecord("same", "", at)
		if _, dup := seen[rec.ID]; dup {
			t.Fatalf("duplicate id %s", rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
}

func TestExportText(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{name: "empty", texts: nil, want: ""},
		{name: "single", texts: []string{"A1"}, want: "A1"},
		{name: "ordered", texts: []string{"A1", "B2", "C3"}, want: "A1\nB2\nC3"},
		{name: "embedded spaces kept", texts: []string{" x ", "y"}, want: " x \ny"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := make([]records.Record, len(tt.texts))
			for i, text := range tt.texts {
				recs[i] = records.NewRecord(text, "", time.Time{})
			}
			if got := records.ExportText(recs); got != tt.want {
				t.Fatalf("ExportText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := records.Open(context.Background(), "redis"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func mustAll(t *testing.T, store records.Store) []records.Record {
	t.Helper()
	all, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	return all
}
