package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/sqldb"
)

// SQLSTATE codes the repository maps onto storage errors.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type dialect struct{}

var _ sqldb.Dialect = dialect{}

func (dialect) Name() string { return "postgres" }

func (dialect) Rebind(query string) string { return sqldb.RebindDollar(query) }

func (dialect) TranslateError(err error) error {
	return TranslateError(err)
}

// TranslateError maps Postgres errors onto storage errors.
func TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", storage.ErrDuplicateKey, err)
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	}
	return err
}

// OpenDB opens a pooled connection to dsn through the pgx stdlib driver and
// verifies it with a ping.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Open connects to dsn and returns a repository that owns the connection.
func Open(ctx context.Context, dsn string, opts ...sqldb.Option) (*sqldb.Repository, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	repo, err := sqldb.New(ctx, db, dialect{}, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
