// Package dict implements the incremental hash table used for keyspaces and
// large hash values. A dict holds two bucket tables: during a rehash, entries
// migrate from the first to the second a few buckets at a time, so no single
// operation ever pays for moving the whole table. Lookups consult both tables
// while a rehash is in progress.
//
// Table sizes are powers of two. The table grows when the load factor reaches
// 1 (or 5 while resizing is forbidden during a background save) and shrinks
// when utilization drops below 10%.
//
// Behavior at the key level is delegated to a Type vtable so the same
// machinery serves byte-string keys and pointer keys alike.
package dict
