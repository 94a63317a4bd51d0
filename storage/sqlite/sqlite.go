package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/sqldb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DefaultBusyTimeoutMS is how long a connection waits on a locked database.
const DefaultBusyTimeoutMS = 5000

type dialect struct{}

var _ sqldb.Dialect = dialect{}

func (dialect) Name() string { return "sqlite" }

func (dialect) Rebind(query string) string { return query }

func (dialect) TranslateError(err error) error {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch code := serr.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", storage.ErrDuplicateKey, err)
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	}
	return err
}

// Open opens or creates a SQLite database file at path and returns a
// repository that owns it. The path ":memory:" opens a private in-memory
// database.
//
// The pool holds a single connection: SQLite serializes writers anyway, and
// one connection keeps transactions from failing with SQLITE_BUSY.
func Open(ctx context.Context, path string, opts ...sqldb.Option) (*sqldb.Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, DefaultBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	repo, err := sqldb.New(ctx, db, dialect{}, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
