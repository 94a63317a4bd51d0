// Package postgres provides a PostgreSQL document repository over the pgx
// database/sql driver.
//
// SQLSTATE 23505 (unique violation) surfaces as storage.ErrDuplicateKey;
// 40001 and 40P01 surface as storage.ErrConflict.
package postgres
