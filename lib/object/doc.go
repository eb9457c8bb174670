// Package object implements the typed value wrapper stored under every key.
// An Object pairs a logical type (string, list, set, zset, hash) with the
// concrete encoding currently backing it, so the same list behaves as a
// packed byte buffer while small and as a linked list of objects once it
// crosses the configured thresholds. Encoding changes are one-way: values
// never fall back to a packed representation.
//
// Objects are reference counted. The decimal strings 0 through 9999 are
// served from a shared pool whose members are never released.
package object
