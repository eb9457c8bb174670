// Package ziplist implements the packed entry list: a single contiguous byte
// buffer storing a sequence of small entries, each of which is either a short
// byte string or an integer encoded at the narrowest width that fits.
//
// Layout:
//
//	<zlbytes uint32le> <zltail uint32le> <zllen uint16le> <entry>... <0xFF>
//
// Every entry starts with the encoded length of the previous entry (1 byte
// for lengths below 254, otherwise a 0xFE marker followed by a 4 byte little
// endian length) which enables backward traversal, followed by a
// self-describing encoding byte and the payload.
//
// The zllen count field saturates at 65535; once saturated the real length
// is obtained by scanning the list.
package ziplist
