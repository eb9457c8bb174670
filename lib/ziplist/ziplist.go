package ziplist

import (
	"bytes"
	"encoding/binary"
	"strconv"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	headerSize = 10 // zlbytes + zltail + zllen
	endByte    = 0xFF

	// bigPrevLen marks a 5 byte previous-entry-length field.
	bigPrevLen = 0xFE

	// maxLen is the saturation value of the zllen count field.
	maxLen = 0xFFFF

	// string encodings (top two bits of the encoding byte)
	encStr06B = 0x00
	encStr14B = 0x40
	encStr32B = 0x80
	strMask   = 0xC0

	// integer encodings
	encInt16 = 0xC0
	encInt32 = 0xD0
	encInt64 = 0xE0
	encInt24 = 0xF0
	encInt8  = 0xFE

	// 4 bit immediate integers 0..12 are stored in the encoding byte itself
	encIntImmMin = 0xF1

	int24Max = 1<<23 - 1
	int24Min = -1 << 23
)

// Head and Tail select the push side.
const (
	Head = 0
	Tail = 1
)

// --------------------------------------------------------------------------
// Core type
// --------------------------------------------------------------------------

// Ziplist is the raw packed representation. Positions handed out by Index,
// Next and Prev are byte offsets into this buffer and are invalidated by any
// mutation.
//
// Thread-safety: a Ziplist is not safe for concurrent mutation.
type Ziplist []byte

// New returns an empty ziplist.
func New() Ziplist {
	zl := make(Ziplist, headerSize+1)
	zl.setBytes(uint32(len(zl)))
	zl.setTailOffset(headerSize)
	zl.setCount(0)
	zl[headerSize] = endByte
	return zl
}

// FromBlob wraps an existing packed byte buffer. The buffer is used as-is.
func FromBlob(blob []byte) Ziplist {
	return Ziplist(blob)
}

// --------------------------------------------------------------------------
// Header accessors
// --------------------------------------------------------------------------

func (zl Ziplist) tailOffset() uint32 { return binary.LittleEndian.Uint32(zl[4:]) }
func (zl Ziplist) countField() uint16 { return binary.LittleEndian.Uint16(zl[8:]) }
func (zl Ziplist) setBytes(v uint32)  { binary.LittleEndian.PutUint32(zl[0:], v) }
func (zl Ziplist) setTailOffset(v uint32) {
	binary.LittleEndian.PutUint32(zl[4:], v)
}
func (zl Ziplist) setCount(v uint16) { binary.LittleEndian.PutUint16(zl[8:], v) }

func (zl Ziplist) incrCount(delta int) {
	c := int(zl.countField())
	if c < maxLen {
		c += delta
		if c > maxLen {
			c = maxLen
		}
		zl.setCount(uint16(c))
	}
}

// BlobLen returns the total size of the packed buffer in bytes.
func (zl Ziplist) BlobLen() int { return len(zl) }

// Len returns the number of entries. When the count field is saturated the
// length is recomputed by scanning and, if it turns out to fit again, the
// field is refreshed so later calls are O(1).
func (zl Ziplist) Len() int {
	if c := zl.countField(); c < maxLen {
		return int(c)
	}
	n := 0
	p := headerSize
	for zl[p] != endByte {
		p += zl.rawEntryLength(p)
		n++
	}
	if n < maxLen {
		zl.setCount(uint16(n))
	}
	return n
}

// --------------------------------------------------------------------------
// Previous-entry-length field
// --------------------------------------------------------------------------

// prevLenSize returns the number of bytes the prevlen field at p occupies.
func (zl Ziplist) prevLenSize(p int) int {
	if zl[p] < bigPrevLen {
		return 1
	}
	return 5
}

// prevLen decodes the previous entry length stored at p.
func (zl Ziplist) prevLen(p int) int {
	if zl[p] < bigPrevLen {
		return int(zl[p])
	}
	return int(binary.LittleEndian.Uint32(zl[p+1:]))
}

// prevLenBytesNeeded returns how many bytes are needed to encode length l.
func prevLenBytesNeeded(l int) int {
	if l < bigPrevLen {
		return 1
	}
	return 5
}

// encodePrevLen writes the prevlen field for length l at p and returns the
// number of bytes written.
func (zl Ziplist) encodePrevLen(p, l int) int {
	if l < bigPrevLen {
		zl[p] = byte(l)
		return 1
	}
	zl[p] = bigPrevLen
	binary.LittleEndian.PutUint32(zl[p+1:], uint32(l))
	return 5
}

// encodePrevLenForceLarge writes l as a 5 byte prevlen field even when it
// would fit in one byte, so that existing large fields are never shrunk.
func (zl Ziplist) encodePrevLenForceLarge(p, l int) {
	zl[p] = bigPrevLen
	binary.LittleEndian.PutUint32(zl[p+1:], uint32(l))
}

// --------------------------------------------------------------------------
// Entry encoding
// --------------------------------------------------------------------------

// intEncodingSize returns the payload size of an integer encoding.
func intEncodingSize(encoding byte) int {
	switch encoding {
	case encInt8:
		return 1
	case encInt16:
		return 2
	case encInt24:
		return 3
	case encInt32:
		return 4
	case encInt64:
		return 8
	}
	return 0 // 4 bit immediate
}

// tryIntEncoding attempts to interpret the bytes as a decimal integer and
// returns the value with the narrowest encoding that admits it.
func tryIntEncoding(s []byte) (int64, byte, bool) {
	if len(s) == 0 || len(s) > 20 {
		return 0, 0, false
	}
	v, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil || strconv.FormatInt(v, 10) != string(s) {
		return 0, 0, false
	}
	switch {
	case v >= 0 && v <= 12:
		return v, encIntImmMin + byte(v), true
	case v >= -128 && v <= 127:
		return v, encInt8, true
	case v >= -32768 && v <= 32767:
		return v, encInt16, true
	case v >= int24Min && v <= int24Max:
		return v, encInt24, true
	case v >= -2147483648 && v <= 2147483647:
		return v, encInt32, true
	default:
		return v, encInt64, true
	}
}

// strEncodingSize returns the size of the encoding header for a string of
// the given length.
func strEncodingSize(l int) int {
	switch {
	case l <= 0x3F:
		return 1
	case l <= 0x3FFF:
		return 2
	default:
		return 5
	}
}

// writeStrEncoding writes the string encoding header at p for length l and
// returns the header size.
func (zl Ziplist) writeStrEncoding(p, l int) int {
	switch {
	case l <= 0x3F:
		zl[p] = encStr06B | byte(l)
		return 1
	case l <= 0x3FFF:
		zl[p] = encStr14B | byte(l>>8)
		zl[p+1] = byte(l)
		return 2
	default:
		zl[p] = encStr32B
		binary.BigEndian.PutUint32(zl[p+1:], uint32(l))
		return 5
	}
}

// decodeEncoding returns (headerSize, payloadLen, isString) for the entry
// encoding starting at p (past the prevlen field).
func (zl Ziplist) decodeEncoding(p int) (int, int, bool) {
	enc := zl[p]
	if enc&strMask != strMask {
		switch enc & strMask {
		case encStr06B:
			return 1, int(enc & 0x3F), true
		case encStr14B:
			return 2, int(enc&0x3F)<<8 | int(zl[p+1]), true
		default:
			return 5, int(binary.BigEndian.Uint32(zl[p+1:])), true
		}
	}
	return 1, intEncodingSize(enc), false
}

// rawEntryLength returns the total encoded size of the entry at p.
func (zl Ziplist) rawEntryLength(p int) int {
	pls := zl.prevLenSize(p)
	hs, dl, _ := zl.decodeEncoding(p + pls)
	return pls + hs + dl
}

// writeInt stores an integer payload for the given encoding at p.
func (zl Ziplist) writeInt(p int, v int64, encoding byte) {
	switch encoding {
	case encInt8:
		zl[p] = byte(v)
	case encInt16:
		binary.LittleEndian.PutUint16(zl[p:], uint16(v))
	case encInt24:
		u := uint32(v) & 0xFFFFFF
		zl[p] = byte(u)
		zl[p+1] = byte(u >> 8)
		zl[p+2] = byte(u >> 16)
	case encInt32:
		binary.LittleEndian.PutUint32(zl[p:], uint32(v))
	case encInt64:
		binary.LittleEndian.PutUint64(zl[p:], uint64(v))
	}
}

// readInt loads the integer payload for the encoding starting at p.
func (zl Ziplist) readInt(p int, encoding byte) int64 {
	switch encoding {
	case encInt8:
		return int64(int8(zl[p]))
	case encInt16:
		return int64(int16(binary.LittleEndian.Uint16(zl[p:])))
	case encInt24:
		u := uint32(zl[p]) | uint32(zl[p+1])<<8 | uint32(zl[p+2])<<16
		return int64(int32(u<<8) >> 8)
	case encInt32:
		return int64(int32(binary.LittleEndian.Uint32(zl[p:])))
	case encInt64:
		return int64(binary.LittleEndian.Uint64(zl[p:]))
	default:
		// 4 bit immediate
		return int64(encoding&0x0F) - 1
	}
}

// --------------------------------------------------------------------------
// Traversal
// --------------------------------------------------------------------------

// Index returns the byte offset of the entry with the given index, or -1 if
// it is out of range. Negative indices count from the tail, -1 being the
// last entry.
func (zl Ziplist) Index(index int) int {
	if index < 0 {
		index = -index - 1
		p := int(zl.tailOffset())
		if zl[p] == endByte {
			return -1
		}
		for index > 0 {
			prev := zl.prevLen(p)
			if prev == 0 {
				return -1
			}
			p -= prev
			index--
		}
		return p
	}
	p := headerSize
	for index > 0 {
		if zl[p] == endByte {
			return -1
		}
		p += zl.rawEntryLength(p)
		index--
	}
	if zl[p] == endByte {
		return -1
	}
	return p
}

// Next returns the offset of the entry after p, or -1 at the end.
func (zl Ziplist) Next(p int) int {
	p += zl.rawEntryLength(p)
	if zl[p] == endByte {
		return -1
	}
	return p
}

// Prev returns the offset of the entry before p, or -1 at the head.
func (zl Ziplist) Prev(p int) int {
	prev := zl.prevLen(p)
	if prev == 0 {
		return -1
	}
	return p - prev
}

// Get decodes the entry at p. Byte string entries return (bytes, 0, true);
// integer entries return (nil, value, false). The returned byte slice
// aliases the ziplist buffer.
func (zl Ziplist) Get(p int) ([]byte, int64, bool) {
	pls := zl.prevLenSize(p)
	hs, dl, isStr := zl.decodeEncoding(p + pls)
	if isStr {
		start := p + pls + hs
		return zl[start : start+dl], 0, true
	}
	return nil, zl.readInt(p+pls+hs, zl[p+pls]), false
}

// Find searches forward from position p for an entry byte-equal to target,
// inspecting one entry out of every skip+1. The stride makes associative
// field/value scans cheap. Returns the offset of the match or -1.
func (zl Ziplist) Find(p int, target []byte, skip int) int {
	toSkip := 0
	var (
		tval    int64
		tIsInt  bool
		tParsed bool
	)
	for p != -1 && zl[p] != endByte {
		if toSkip == 0 {
			sv, iv, isStr := zl.Get(p)
			if isStr {
				if bytes.Equal(sv, target) {
					return p
				}
			} else {
				if !tParsed {
					tval, _, tIsInt = tryIntEncoding(target)
					tParsed = true
				}
				if tIsInt && iv == tval {
					return p
				}
			}
			toSkip = skip
		} else {
			toSkip--
		}
		p = zl.Next(p)
	}
	return -1
}

// --------------------------------------------------------------------------
// Mutation
// --------------------------------------------------------------------------

// Push inserts the value at the head or tail of the list.
func (zl Ziplist) Push(s []byte, where int) Ziplist {
	if where == Head {
		return zl.insert(headerSize, s)
	}
	return zl.insert(len(zl)-1, s)
}

// Insert inserts the value before the entry at position p. When p addresses
// the terminator the value is appended.
func (zl Ziplist) Insert(p int, s []byte) Ziplist {
	return zl.insert(p, s)
}

func (zl Ziplist) insert(p int, s []byte) Ziplist {
	atEnd := zl[p] == endByte

	// previous entry length seen by the new entry
	prevlen := 0
	if !atEnd {
		prevlen = zl.prevLen(p)
	} else {
		tail := int(zl.tailOffset())
		if zl[tail] != endByte {
			prevlen = zl.rawEntryLength(tail)
		}
	}

	// size of the new entry
	value, encoding, isInt := tryIntEncoding(s)
	reqlen := prevLenBytesNeeded(prevlen)
	if isInt {
		reqlen += 1 + intEncodingSize(encoding)
	} else {
		reqlen += strEncodingSize(len(s)) + len(s)
	}

	// the successor's prevlen field may have to grow; it is never shrunk
	succPls, newSuccPls := 0, 0
	if !atEnd {
		succPls = zl.prevLenSize(p)
		newSuccPls = prevLenBytesNeeded(reqlen)
		if newSuccPls < succPls {
			newSuccPls = succPls
		}
	}
	nextdiff := newSuccPls - succPls

	out := make(Ziplist, len(zl)+reqlen+nextdiff)
	copy(out, zl[:p])

	// write the new entry
	q := p
	q += out.encodePrevLen(q, prevlen)
	if isInt {
		out[q] = encoding
		q++
		out.writeInt(q, value, encoding)
		q += intEncodingSize(encoding)
	} else {
		q += out.writeStrEncoding(q, len(s))
		copy(out[q:], s)
		q += len(s)
	}
	// q == p+reqlen

	if !atEnd {
		// rewrite the successor's prevlen field, then move the rest
		if newSuccPls == 5 && prevLenBytesNeeded(reqlen) == 1 {
			out.encodePrevLenForceLarge(q, reqlen)
		} else {
			out.encodePrevLen(q, reqlen)
		}
		copy(out[q+newSuccPls:], zl[p+succPls:])

		tailOff := int(zl.tailOffset()) + reqlen
		if int(zl.tailOffset()) != p {
			// the shifted successor is not the tail entry, so the
			// prevlen growth moves the tail as well
			tailOff += nextdiff
		}
		out.setTailOffset(uint32(tailOff))
	} else {
		copy(out[q:], zl[p:])
		out.setTailOffset(uint32(p))
	}

	out.setBytes(uint32(len(out)))
	out.incrCount(1)
	if nextdiff != 0 {
		out = out.cascadeUpdate(p + reqlen)
	}
	return out
}

// Delete removes the entry at position p and returns the updated list along
// with the offset of the entry that took its place, or -1 when the deleted
// entry was the tail.
func (zl Ziplist) Delete(p int) (Ziplist, int) {
	out := zl.deleteRangeAt(p, 1)
	if p >= len(out)-1 || out[p] == endByte {
		return out, -1
	}
	return out, p
}

// DeleteRange removes num entries starting at the given index.
func (zl Ziplist) DeleteRange(index, num int) Ziplist {
	p := zl.Index(index)
	if p == -1 || num <= 0 {
		return zl
	}
	return zl.deleteRangeAt(p, num)
}

func (zl Ziplist) deleteRangeAt(first, num int) Ziplist {
	p := first
	deleted := 0
	for deleted < num && zl[p] != endByte {
		p += zl.rawEntryLength(p)
		deleted++
	}
	if deleted == 0 {
		return zl
	}

	if zl[p] == endByte {
		// the range reaches the tail: truncate
		out := make(Ziplist, first+1)
		copy(out, zl[:first])
		out[first] = endByte
		if first == headerSize {
			out.setTailOffset(headerSize)
		} else {
			out.setTailOffset(uint32(first - zl.prevLen(first)))
		}
		out.setBytes(uint32(len(out)))
		out.incrCount(-deleted)
		return out
	}

	// the survivor entry at p gets the prevlen of the entry preceding the
	// deleted range; its field may have to grow and is never shrunk
	prevlen := zl.prevLen(first)
	succPls := zl.prevLenSize(p)
	newSuccPls := prevLenBytesNeeded(prevlen)
	if newSuccPls < succPls {
		newSuccPls = succPls
	}

	out := make(Ziplist, first+newSuccPls+len(zl)-(p+succPls))
	copy(out, zl[:first])
	if newSuccPls == 5 && prevLenBytesNeeded(prevlen) == 1 {
		out.encodePrevLenForceLarge(first, prevlen)
	} else {
		out.encodePrevLen(first, prevlen)
	}
	copy(out[first+newSuccPls:], zl[p+succPls:])

	var tailOff int
	if int(zl.tailOffset()) == p {
		tailOff = first
	} else {
		shift := (p + succPls) - (first + newSuccPls)
		tailOff = int(zl.tailOffset()) - shift
	}
	out.setTailOffset(uint32(tailOff))
	out.setBytes(uint32(len(out)))
	out.incrCount(-deleted)
	if newSuccPls != succPls {
		out = out.cascadeUpdate(first)
	}
	return out
}

// cascadeUpdate walks forward from p growing prevlen fields that can no
// longer hold their predecessor's size. The walk terminates at the first
// entry whose field size class does not change.
func (zl Ziplist) cascadeUpdate(p int) Ziplist {
	for zl[p] != endByte {
		rawlen := zl.rawEntryLength(p)
		next := p + rawlen
		if zl[next] == endByte {
			break
		}
		if zl.prevLen(next) == rawlen {
			break
		}
		if zl.prevLenSize(next) < prevLenBytesNeeded(rawlen) {
			// grow the successor's prevlen field from 1 to 5 bytes
			oldPls := zl.prevLenSize(next)
			newPls := prevLenBytesNeeded(rawlen)
			out := make(Ziplist, len(zl)+newPls-oldPls)
			copy(out, zl[:next])
			out.encodePrevLen(next, rawlen)
			copy(out[next+newPls:], zl[next+oldPls:])
			out.setBytes(uint32(len(out)))
			if tail := int(zl.tailOffset()); tail > next {
				out.setTailOffset(uint32(tail + newPls - oldPls))
			}
			zl = out
			p = next
			continue
		}
		// large enough (possibly oversized): rewrite the value in place
		if zl.prevLenSize(next) == 5 && prevLenBytesNeeded(rawlen) == 1 {
			zl.encodePrevLenForceLarge(next, rawlen)
		} else {
			zl.encodePrevLen(next, rawlen)
		}
		break
	}
	return zl
}
