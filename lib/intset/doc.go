// Package intset implements the sorted integer array: a contiguous buffer of
// signed integers kept in ascending order, all stored at the same width. The
// width starts at 16 bits and upgrades to 32 or 64 bits the first time a
// value that does not fit is added. Widths never downgrade.
//
// Layout:
//
//	<encoding uint32le> <length uint32le> <contents>
//
// where encoding is the element width in bytes (2, 4 or 8) and contents holds
// length little endian two's-complement integers.
package intset
