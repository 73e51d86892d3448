package records

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps records in a private in-memory SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates the in-memory database and its schema.
func OpenSQLite(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Every pooled connection to ":memory:" would be a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO scan_records (id, text, format, accepted_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Text, rec.Format, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("insert scan record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scan record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scan_records`); err != nil {
		return fmt.Errorf("clear scan records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, format, accepted_at FROM scan_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query scan records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan records: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, text string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, format, accepted_at FROM scan_records WHERE text = ?`, text)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM scan_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count scan records: %w", err)
	}
	return n, nil
}

// Close discards the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		acceptedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Text, &rec.Format, &acceptedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan record row: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, acceptedAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse accepted_at %q: %w", acceptedAt, err)
	}
	rec.Timestamp = ts
	return rec, nil
}
