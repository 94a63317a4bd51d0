// Package sqldb implements storage.DocumentRepository on database/sql.
//
// The repository is engine neutral: a Dialect supplies placeholder syntax
// and maps driver errors onto storage.ErrDuplicateKey and storage.ErrConflict.
// The sqlite and postgres packages provide the dialects and open the
// underlying connections.
//
// Transactions are carried in the context exactly as in the badger backend;
// calls made with the context handed to WithTransaction run on its *sql.Tx.
package sqldb
