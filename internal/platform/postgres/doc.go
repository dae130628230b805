// Package postgres implements the task repository on PostgreSQL through the
// pgx database/sql driver. It owns the schema, embedded as goose migrations,
// and maps driver errors onto the store package's sentinel errors.
package postgres
