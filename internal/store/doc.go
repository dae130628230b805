// Package store defines the persistence boundary shared by every storage
// implementation: the DBTX abstraction over *sql.DB and *sql.Tx, and the
// sentinel errors stores translate their driver errors into.
package store
