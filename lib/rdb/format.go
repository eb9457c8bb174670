package rdb

// Version is the highest snapshot format version this codec reads and the
// one it writes.
const Version = 6

// magic opens every snapshot, followed by the four digit ASCII version.
const magic = "REDIS"

// Length prefixes: the two high bits of the first byte select the width.
const (
	len6Bit    = 0 // remaining 6 bits hold the length
	len14Bit   = 1 // remaining 6 bits plus one byte, big endian
	len32Bit   = 2 // four following bytes, big endian
	lenSpecial = 3 // remaining 6 bits select a special string format
)

// Special string formats under lenSpecial.
const (
	encInt8  = 0
	encInt16 = 1
	encInt32 = 2
	encLZF   = 3
)

// Value type opcodes.
const (
	typeString      = 0
	typeList        = 1
	typeSet         = 2
	typeZSet        = 3
	typeHash        = 4
	typeListZiplist = 10
	typeSetIntset   = 11
	typeZSetZiplist = 12
	typeHashZiplist = 13
)

// Record opcodes.
const (
	opcodeExpireMS  = 252 // followed by uint64le unix milliseconds
	opcodeExpireSec = 253 // followed by uint32le unix seconds
	opcodeSelectDB  = 254 // followed by the database index as a length
	opcodeEOF       = 255
)

// Special double markers: a one byte length prefixes the ASCII rendering,
// with these values standing in for the non-finite cases.
const (
	doubleNaN    = 253
	doublePosInf = 254
	doubleNegInf = 255
)

// Strings longer than this are considered for compression.
const compressMinLen = 20
