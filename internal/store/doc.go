// Package store persists inequality results in Postgres. Each save replaces
// the rows of a dataset and level in one transaction, loading them with COPY.
package store
