// Package sqlite provides the modernc.org/sqlite backed store driver.
//
// It mirrors the postgres driver: the same upsert statements run against
// both, with SQLite placeholders and an embedded copy of the order schema.
package sqlite
