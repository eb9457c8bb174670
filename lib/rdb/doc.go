// Package rdb implements the snapshot codec: a compact binary rendering of
// the whole keyspace that survives restarts. The format is byte oriented
// and self describing, with variable width length prefixes, optional LZF
// compression of long strings, per value type opcodes and a trailing CRC64
// checksum over everything written.
//
// Values are stored in their packed encodings verbatim when they are packed
// in memory, so loading small collections is a single buffer copy.
package rdb
