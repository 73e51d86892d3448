package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Remove when no record has the id.
var ErrNotFound = errors.New("scan record not found")

// Record is one accepted scan. Records are never mutated.
type Record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Format    string    `json:"format,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecord builds a record with a random UUID, unique even for records
// created within the same instant.
func NewRecord(text, format string, at time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Text:      text,
		Format:    format,
		Timestamp: at,
	}
}

// Store is the accumulated scan list.
type Store interface {
	// Append adds rec and reports true, or reports false when a record with
	// the same text exists.
	Append(ctx context.Context, rec Record) (bool, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	// All returns records in insertion order.
	All(ctx context.Context) ([]Record, error)
	// Lookup finds the record whose text equals text exactly.
	Lookup(ctx context.Context, text string) (Record, bool, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Open returns a store for backend ("memory" or "sqlite").
func Open(ctx context.Context, backend string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx)
	default:
		return nil, fmt.Errorf("unknown record store backend %q", backend)
	}
}

// ExportText joins record texts with "\n" in order, without a trailing newline.
func ExportText(recs []Record) string {
	texts := make([]string, len(recs))
	for i, rec := range recs {
		texts[i] = rec.Text
	}
	return strings.Join(texts, "\n")
}
