package intset

import (
	"encoding/binary"
	"math"
	"math/rand"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// EncInt16, EncInt32 and EncInt64 are the element widths in bytes.
	EncInt16 = 2
	EncInt32 = 4
	EncInt64 = 8

	headerSize = 8
)

// --------------------------------------------------------------------------
// Core type
// --------------------------------------------------------------------------

// Intset is the serialized form of the set. It can be written to and read
// from disk verbatim.
//
// Thread-safety: an Intset is not safe for concurrent mutation.
type Intset []byte

// New creates an empty set with 16 bit elements.
func New() Intset {
	is := make(Intset, headerSize)
	is.setEncoding(EncInt16)
	is.setLen(0)
	return is
}

// FromBlob wraps an existing serialized set. The blob is used directly.
func FromBlob(b []byte) Intset {
	return Intset(b)
}

// --------------------------------------------------------------------------
// Header accessors
// --------------------------------------------------------------------------

func (is Intset) encoding() uint32 {
	return binary.LittleEndian.Uint32(is[0:4])
}

func (is Intset) setEncoding(enc uint32) {
	binary.LittleEndian.PutUint32(is[0:4], enc)
}

func (is Intset) setLen(n uint32) {
	binary.LittleEndian.PutUint32(is[4:8], n)
}

// Len returns the number of elements.
func (is Intset) Len() int {
	return int(binary.LittleEndian.Uint32(is[4:8]))
}

// BlobLen returns the total serialized size in bytes.
func (is Intset) BlobLen() int {
	return headerSize + is.Len()*int(is.encoding())
}

// Encoding returns the current element width in bytes.
func (is Intset) Encoding() int {
	return int(is.encoding())
}

// --------------------------------------------------------------------------
// Element access
// --------------------------------------------------------------------------

func encodingFor(v int64) uint32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return EncInt64
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		return EncInt32
	}
	return EncInt16
}

// getAt reads the element at the given position assuming the given width.
func (is Intset) getAt(pos int, enc uint32) int64 {
	off := headerSize + pos*int(enc)
	switch enc {
	case EncInt16:
		return int64(int16(binary.LittleEndian.Uint16(is[off:])))
	case EncInt32:
		return int64(int32(binary.LittleEndian.Uint32(is[off:])))
	default:
		return int64(binary.LittleEndian.Uint64(is[off:]))
	}
}

func (is Intset) setAt(pos int, v int64) {
	enc := is.encoding()
	off := headerSize + pos*int(enc)
	switch enc {
	case EncInt16:
		binary.LittleEndian.PutUint16(is[off:], uint16(int16(v)))
	case EncInt32:
		binary.LittleEndian.PutUint32(is[off:], uint32(int32(v)))
	default:
		binary.LittleEndian.PutUint64(is[off:], uint64(v))
	}
}

// Get returns the element at the given position, or ok=false when the
// position is out of range.
func (is Intset) Get(pos int) (int64, bool) {
	if pos < 0 || pos >= is.Len() {
		return 0, false
	}
	return is.getAt(pos, is.encoding()), true
}

// Random returns a uniformly random element. The set must not be empty.
func (is Intset) Random() int64 {
	return is.getAt(rand.Intn(is.Len()), is.encoding())
}

// --------------------------------------------------------------------------
// Search
// --------------------------------------------------------------------------

// search performs a binary search for v. It returns the position of v and
// true when found, otherwise the insertion position and false.
func (is Intset) search(v int64) (int, bool) {
	lo, hi := 0, is.Len()-1
	if hi < 0 {
		return 0, false
	}
	enc := is.encoding()
	// fast paths for values outside the stored range
	if v > is.getAt(hi, enc) {
		return hi + 1, false
	}
	if v < is.getAt(0, enc) {
		return 0, false
	}
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		cur := is.getAt(mid, enc)
		switch {
		case v > cur:
			lo = mid + 1
		case v < cur:
			hi = mid - 1
		default:
			return mid, true
		}
	}
	return lo, false
}

// Find reports whether v is a member of the set.
func (is Intset) Find(v int64) bool {
	if encodingFor(v) > is.encoding() {
		return false
	}
	_, found := is.search(v)
	return found
}

// --------------------------------------------------------------------------
// Mutation
// --------------------------------------------------------------------------

func (is Intset) resize(n int) Intset {
	need := headerSize + n*int(is.encoding())
	if need <= cap(is) {
		return is[:need]
	}
	grown := make(Intset, need)
	copy(grown, is)
	return grown
}

// upgradeAndAdd widens every element to fit v, then appends v at the edge of
// the set. The new value is necessarily smaller or larger than every stored
// element, otherwise it would have fit the old width.
func (is Intset) upgradeAndAdd(v int64) Intset {
	oldEnc := is.encoding()
	n := is.Len()
	prepend := 0
	if v < 0 {
		prepend = 1
	}

	is.setEncoding(encodingFor(v))
	is = is.resize(n + 1)

	// migrate from the back so nothing is overwritten
	for i := n - 1; i >= 0; i-- {
		is.setAt(i+prepend, is.getAt(i, oldEnc))
	}
	if prepend == 1 {
		is.setAt(0, v)
	} else {
		is.setAt(n, v)
	}
	is.setLen(uint32(n + 1))
	return is
}

// Add inserts v keeping the set sorted. The second return value is false
// when v was already present and the set is unchanged.
func (is Intset) Add(v int64) (Intset, bool) {
	if encodingFor(v) > is.encoding() {
		return is.upgradeAndAdd(v), true
	}
	pos, found := is.search(v)
	if found {
		return is, false
	}
	n := is.Len()
	is = is.resize(n + 1)
	if pos < n {
		width := int(is.encoding())
		src := headerSize + pos*width
		copy(is[src+width:], is[src:headerSize+n*width])
	}
	is.setAt(pos, v)
	is.setLen(uint32(n + 1))
	return is, true
}

// Remove deletes v from the set. The second return value is false when v was
// not a member.
func (is Intset) Remove(v int64) (Intset, bool) {
	if encodingFor(v) > is.encoding() {
		return is, false
	}
	pos, found := is.search(v)
	if !found {
		return is, false
	}
	n := is.Len()
	width := int(is.encoding())
	if pos < n-1 {
		dst := headerSize + pos*width
		copy(is[dst:], is[dst+width:headerSize+n*width])
	}
	is.setLen(uint32(n - 1))
	return is[:headerSize+(n-1)*width], true
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// ForEach calls fn for every element in ascending order. Iteration stops
// when fn returns false.
func (is Intset) ForEach(fn func(v int64) bool) {
	enc := is.encoding()
	for i, n := 0, is.Len(); i < n; i++ {
		if !fn(is.getAt(i, enc)) {
			return
		}
	}
}
