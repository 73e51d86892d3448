// Package records holds the ordered, value-unique list of accepted scans.
//
// Store is implemented by MemoryStore (the default) and SQLiteStore, an
// in-memory SQLite database for deployments that want SQL-level uniqueness.
// Neither survives a restart. Both reject an Append whose text is already
// present, so removal and clearing can never reintroduce a duplicate.
// ExportText renders the list in the newline-joined form used for copying.
package records
