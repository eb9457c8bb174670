package object

import (
	"bytes"
	"errors"
	"math"
	"strconv"

	"github.com/cedarkv/cedar/lib/adlist"
	"github.com/cedarkv/cedar/lib/dict"
	"github.com/cedarkv/cedar/lib/intset"
	"github.com/cedarkv/cedar/lib/sds"
	"github.com/cedarkv/cedar/lib/skiplist"
	"github.com/cedarkv/cedar/lib/ziplist"
)

// --------------------------------------------------------------------------
// Types and encodings
// --------------------------------------------------------------------------

// Type is the logical type of a value.
type Type uint8

const (
	TypeString Type = iota
	TypeList
	TypeSet
	TypeZSet
	TypeHash
)

// String returns the lowercase type name as reported to clients.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	case TypeHash:
		return "hash"
	}
	return "unknown"
}

// Encoding is the concrete representation backing a value.
type Encoding uint8

const (
	EncRaw Encoding = iota
	EncInt
	EncHashtable
	EncLinkedList
	EncZiplist
	EncIntset
	EncSkiplist
)

// String returns the encoding name as reported to clients.
func (e Encoding) String() string {
	switch e {
	case EncRaw:
		return "raw"
	case EncInt:
		return "int"
	case EncHashtable:
		return "hashtable"
	case EncLinkedList:
		return "linkedlist"
	case EncZiplist:
		return "ziplist"
	case EncIntset:
		return "intset"
	case EncSkiplist:
		return "skiplist"
	}
	return "unknown"
}

// ErrWrongType is returned by accessors and type operations when a key holds
// a value of another type.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// --------------------------------------------------------------------------
// Object
// --------------------------------------------------------------------------

// ZSet is the composite backing of a skiplist-encoded sorted set: the dict
// answers score lookups by member, the skiplist answers ordered queries.
// Both sides always hold the same members.
type ZSet struct {
	Dict *dict.Dict[string, float64]
	Sl   *skiplist.Skiplist
}

// Object is a typed, reference counted value.
//
// Thread-safety: an Object is not safe for concurrent mutation.
type Object struct {
	Type     Type
	Encoding Encoding

	// Charged is the footprint last charged to the memory ledger for this
	// object. The keyspace maintains it on every mutating operation.
	Charged int64

	refcount int32
	val      any
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// NewString creates a raw string object holding the given bytes.
func NewString(s sds.S) *Object {
	return &Object{Type: TypeString, Encoding: EncRaw, refcount: 1, val: s}
}

// NewStringFromBytes creates a raw string object copying b.
func NewStringFromBytes(b []byte) *Object {
	return NewString(sds.New(b))
}

// NewInt creates an integer encoded string object, serving the shared pool
// for small non-negative values.
func NewInt(v int64) *Object {
	if v >= 0 && v < SharedIntegers {
		return sharedInts[v]
	}
	return &Object{Type: TypeString, Encoding: EncInt, refcount: 1, val: v}
}

// NewListZiplist creates an empty list in the packed encoding.
func NewListZiplist() *Object {
	return &Object{Type: TypeList, Encoding: EncZiplist, refcount: 1, val: ziplist.New()}
}

// NewListLinked creates an empty list in the linked encoding.
func NewListLinked() *Object {
	return &Object{Type: TypeList, Encoding: EncLinkedList, refcount: 1, val: adlist.New[*Object]()}
}

// NewSetIntset creates an empty set in the integer array encoding.
func NewSetIntset() *Object {
	return &Object{Type: TypeSet, Encoding: EncIntset, refcount: 1, val: intset.New()}
}

// SetDictType is the vtable of hashtable encoded sets. Values are unused.
var SetDictType = &dict.Type[string, struct{}]{
	Hash:  dict.HashString,
	Equal: func(a, b string) bool { return a == b },
}

// NewSetHashtable creates an empty set in the hashtable encoding.
func NewSetHashtable() *Object {
	return &Object{Type: TypeSet, Encoding: EncHashtable, refcount: 1, val: dict.New(SetDictType)}
}

// NewHashZiplist creates an empty hash in the packed encoding, alternating
// field and value entries.
func NewHashZiplist() *Object {
	return &Object{Type: TypeHash, Encoding: EncZiplist, refcount: 1, val: ziplist.New()}
}

// HashDictType is the vtable of hashtable encoded hashes.
var HashDictType = &dict.Type[string, sds.S]{
	Hash:  dict.HashString,
	Equal: func(a, b string) bool { return a == b },
}

// NewHashHashtable creates an empty hash in the hashtable encoding.
func NewHashHashtable() *Object {
	return &Object{Type: TypeHash, Encoding: EncHashtable, refcount: 1, val: dict.New(HashDictType)}
}

// NewZSetZiplist creates an empty sorted set in the packed encoding,
// alternating member and score entries.
func NewZSetZiplist() *Object {
	return &Object{Type: TypeZSet, Encoding: EncZiplist, refcount: 1, val: ziplist.New()}
}

// ZSetDictType is the vtable of the member to score index of skiplist
// encoded sorted sets.
var ZSetDictType = &dict.Type[string, float64]{
	Hash:  dict.HashString,
	Equal: func(a, b string) bool { return a == b },
}

// NewZSetSkiplist creates an empty sorted set in the skiplist encoding.
func NewZSetSkiplist() *Object {
	return &Object{
		Type: TypeZSet, Encoding: EncSkiplist, refcount: 1,
		val: &ZSet{Dict: dict.New(ZSetDictType), Sl: skiplist.New()},
	}
}

// --------------------------------------------------------------------------
// Reference counting
// --------------------------------------------------------------------------

// sharedRefcount marks objects whose lifetime is not managed.
const sharedRefcount = math.MaxInt32

// SharedIntegers is the size of the shared small integer pool.
const SharedIntegers = 10000

var sharedInts [SharedIntegers]*Object

func init() {
	for i := range sharedInts {
		sharedInts[i] = &Object{
			Type: TypeString, Encoding: EncInt,
			refcount: sharedRefcount, val: int64(i),
		}
	}
}

// IncrRefCount adds a reference to o and returns it.
func (o *Object) IncrRefCount() *Object {
	if o.refcount != sharedRefcount {
		o.refcount++
	}
	return o
}

// DecrRefCount drops a reference. The object must not be used after its
// last reference is dropped.
func (o *Object) DecrRefCount() {
	if o.refcount == sharedRefcount {
		return
	}
	if o.refcount < 1 {
		panic("object: refcount underflow")
	}
	o.refcount--
}

// RefCount returns the current reference count.
func (o *Object) RefCount() int32 { return o.refcount }

// IsShared reports whether o comes from the shared pool.
func (o *Object) IsShared() bool { return o.refcount == sharedRefcount }

// --------------------------------------------------------------------------
// Payload accessors
// --------------------------------------------------------------------------

// SDS returns the raw string payload. It panics on other encodings.
func (o *Object) SDS() sds.S { return o.val.(sds.S) }

// Int64 returns the integer payload. It panics on other encodings.
func (o *Object) Int64() int64 { return o.val.(int64) }

// Ziplist returns the packed payload of ziplist encoded values.
func (o *Object) Ziplist() ziplist.Ziplist { return o.val.(ziplist.Ziplist) }

// SetZiplist replaces the packed payload after a mutation reallocated it.
func (o *Object) SetZiplist(zl ziplist.Ziplist) { o.val = zl }

// Intset returns the integer array payload of intset encoded sets.
func (o *Object) Intset() intset.Intset { return o.val.(intset.Intset) }

// SetIntset replaces the integer array payload.
func (o *Object) SetIntset(is intset.Intset) { o.val = is }

// List returns the linked payload of linkedlist encoded lists.
func (o *Object) List() *adlist.List[*Object] { return o.val.(*adlist.List[*Object]) }

// SetDict returns the dict payload of hashtable encoded sets.
func (o *Object) SetDict() *dict.Dict[string, struct{}] {
	return o.val.(*dict.Dict[string, struct{}])
}

// HashDict returns the dict payload of hashtable encoded hashes.
func (o *Object) HashDict() *dict.Dict[string, sds.S] {
	return o.val.(*dict.Dict[string, sds.S])
}

// ZSet returns the composite payload of skiplist encoded sorted sets.
func (o *Object) ZSet() *ZSet { return o.val.(*ZSet) }

// SetPayload replaces the payload and encoding during a promotion.
func (o *Object) SetPayload(enc Encoding, val any) {
	o.Encoding = enc
	o.val = val
}

// --------------------------------------------------------------------------
// String object helpers
// --------------------------------------------------------------------------

// Bytes returns the string content, materializing integer encoded values.
// It panics when o is not a string object.
func (o *Object) Bytes() []byte {
	if o.Type != TypeString {
		panic("object: Bytes on non-string object")
	}
	if o.Encoding == EncInt {
		return strconv.AppendInt(nil, o.val.(int64), 10)
	}
	return o.SDS()
}

// StringLen returns the byte length of a string object without
// materializing integer encoded values.
func (o *Object) StringLen() int {
	if o.Encoding == EncInt {
		n := 1
		v := o.val.(int64)
		if v < 0 {
			n++
			v = -v
		}
		for v > 9 {
			n++
			v /= 10
		}
		return n
	}
	return sds.Len(o.SDS())
}

// AsInt64 interprets a string object as an integer. The second return value
// is false when the content is not a valid 64 bit decimal integer.
func (o *Object) AsInt64() (int64, bool) {
	if o.Encoding == EncInt {
		return o.val.(int64), true
	}
	v, err := strconv.ParseInt(string(o.SDS()), 10, 64)
	return v, err == nil
}

// AsFloat64 interprets a string object as a float.
func (o *Object) AsFloat64() (float64, bool) {
	if o.Encoding == EncInt {
		return float64(o.val.(int64)), true
	}
	v, err := strconv.ParseFloat(string(o.SDS()), 64)
	return v, err == nil
}

// maxIntEncodableLen is the longest decimal representation of an int64
// including the sign.
const maxIntEncodableLen = 20

// TryEncoding attempts to shrink a raw string object. Decimal integers
// switch to the int encoding (shared objects when possible); other strings
// lose their spare capacity. Shared objects and objects with more than one
// reference are returned untouched.
func (o *Object) TryEncoding() *Object {
	if o.Type != TypeString || o.Encoding != EncRaw {
		return o
	}
	if o.refcount > 1 {
		return o
	}
	s := o.SDS()
	if sds.Len(s) <= maxIntEncodableLen {
		if v, err := strconv.ParseInt(string(s), 10, 64); err == nil && canonicalInt(s, v) {
			if v >= 0 && v < SharedIntegers {
				return sharedInts[v]
			}
			o.Encoding = EncInt
			o.val = v
			return o
		}
	}
	if sds.Avail(s) > sds.Len(s)/10 {
		o.val = sds.RemoveFreeSpace(s)
	}
	return o
}

// canonicalInt reports whether s is exactly the decimal rendering of v,
// rejecting forms like "+1", "01" or "1.0" that would not round-trip.
func canonicalInt(s sds.S, v int64) bool {
	return string(s) == strconv.FormatInt(v, 10)
}

// Decoded returns a raw string copy of o when it is integer encoded, and o
// itself (with an added reference) otherwise.
func (o *Object) Decoded() *Object {
	if o.Encoding == EncInt {
		return NewString(sds.FromInt64(o.val.(int64)))
	}
	return o.IncrRefCount()
}

// Dup returns a deep copy of a string object.
func (o *Object) Dup() *Object {
	if o.Encoding == EncInt {
		return NewInt(o.val.(int64))
	}
	return NewString(sds.Dup(o.SDS()))
}

// EqualStrings compares two string objects for byte equality, comparing
// integer payloads directly when both sides are integer encoded.
func EqualStrings(a, b *Object) bool {
	if a.Encoding == EncInt && b.Encoding == EncInt {
		return a.val.(int64) == b.val.(int64)
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

// CompareStrings orders two string objects as opaque byte sequences.
func CompareStrings(a, b *Object) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}
