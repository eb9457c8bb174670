// Package db implements the keyspace: numbered databases mapping byte
// string keys to typed objects, with per-key expiration times kept in a
// separate index. On top of the keyspace the package provides the type
// operation layer (strings, lists, sets, sorted sets and hashes) that
// enforces type checks, drives encoding promotions and keeps the memory
// ledger and the dirty counter up to date.
//
// Thread-safety: a Server and its databases are driven from a single
// goroutine. Background saves work on deep copies taken synchronously, so
// they never observe concurrent mutation.
package db
