// Package sqlite provides a SQLite document repository using the pure Go
// modernc.org/sqlite driver.
//
// Uniqueness of content hashes and source URLs is enforced by UNIQUE
// indexes; constraint failures surface as storage.ErrDuplicateKey and lock
// contention as storage.ErrConflict.
//
//	repo, err := sqlite.Open(ctx, "/var/lib/kbingest/documents.db")
package sqlite
