package db

import (
	"math"
	"strconv"

	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/sds"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// storeValue stores the value under the key preserving an existing
// deadline, the semantics of the arithmetic and range writes.
func (db *DB) storeValue(key string, o *object.Object) {
	if db.Exists(key) {
		db.Overwrite(key, o)
	} else {
		db.Add(key, o)
	}
}

// unshareString makes the string value of key privately mutable, converting
// integer encoded and shared objects into a fresh raw string. The returned
// object is stored under the key.
func (db *DB) unshareString(key string, o *object.Object) *object.Object {
	if o.Encoding == object.EncRaw && !o.IsShared() && o.RefCount() == 1 {
		return o
	}
	fresh := object.NewString(sds.New(o.Bytes()))
	db.Overwrite(key, fresh)
	return fresh
}

// --------------------------------------------------------------------------
// Plain writes
// --------------------------------------------------------------------------

// Set stores val under key, replacing any previous value of any type and
// clearing a previous deadline.
func (db *DB) Set(key string, val []byte) error {
	if err := db.srv.CheckMemory(); err != nil {
		return err
	}
	db.SetKey(key, object.NewStringFromBytes(val).TryEncoding())
	db.srv.AddDirty(1)
	return nil
}

// SetNX stores val only when the key does not exist. It reports whether the
// value was stored.
func (db *DB) SetNX(key string, val []byte) (bool, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return false, err
	}
	if db.Exists(key) {
		return false, nil
	}
	db.Add(key, object.NewStringFromBytes(val).TryEncoding())
	db.srv.AddDirty(1)
	return true, nil
}

// SetEX stores val with a relative deadline in milliseconds.
func (db *DB) SetEX(key string, val []byte, ttlMillis int64) error {
	if err := db.Set(key, val); err != nil {
		return err
	}
	db.SetExpire(key, nowMillis()+ttlMillis)
	return nil
}

// MSet stores every key/value pair of the map.
func (db *DB) MSet(pairs map[string][]byte) error {
	if err := db.srv.CheckMemory(); err != nil {
		return err
	}
	for k, v := range pairs {
		db.SetKey(k, object.NewStringFromBytes(v).TryEncoding())
	}
	db.srv.AddDirty(int64(len(pairs)))
	return nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns the string value of key. Missing keys return nil content with
// ok=false.
func (db *DB) Get(key string) ([]byte, bool, error) {
	o, err := db.LookupReadTyped(key, object.TypeString)
	if err != nil || o == nil {
		return nil, false, err
	}
	return o.Bytes(), true, nil
}

// MGet returns the values of the given keys, with nil entries for missing
// keys and keys of the wrong type.
func (db *DB) MGet(keys ...string) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if o := db.LookupRead(k); o != nil && o.Type == object.TypeString {
			out[i] = o.Bytes()
		}
	}
	return out
}

// Strlen returns the byte length of the string value, 0 for missing keys.
func (db *DB) Strlen(key string) (int, error) {
	o, err := db.LookupReadTyped(key, object.TypeString)
	if err != nil || o == nil {
		return 0, err
	}
	return o.StringLen(), nil
}

// GetSet stores val and returns the previous value.
func (db *DB) GetSet(key string, val []byte) ([]byte, bool, error) {
	old, ok, err := db.Get(key)
	if err != nil {
		return nil, false, err
	}
	if err := db.Set(key, val); err != nil {
		return nil, false, err
	}
	return old, ok, nil
}

// --------------------------------------------------------------------------
// Arithmetic
// --------------------------------------------------------------------------

// IncrBy adds incr to the integer interpretation of the value, creating the
// key at 0 when missing, and returns the new value. The deadline is kept.
func (db *DB) IncrBy(key string, incr int64) (int64, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeString)
	if err != nil {
		return 0, err
	}
	var cur int64
	if o != nil {
		v, ok := o.AsInt64()
		if !ok {
			return 0, ErrNotInteger
		}
		cur = v
	}
	if (incr > 0 && cur > math.MaxInt64-incr) ||
		(incr < 0 && cur < math.MinInt64-incr) {
		return 0, ErrOverflow
	}
	cur += incr
	db.storeValue(key, object.NewInt(cur))
	db.srv.AddDirty(1)
	return cur, nil
}

// DecrBy subtracts decr from the integer interpretation of the value.
func (db *DB) DecrBy(key string, decr int64) (int64, error) {
	if decr == math.MinInt64 {
		return 0, ErrOverflow
	}
	return db.IncrBy(key, -decr)
}

// IncrByFloat adds incr to the float interpretation of the value, stores
// the result formatted with minimal digits and returns it.
func (db *DB) IncrByFloat(key string, incr float64) (float64, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeString)
	if err != nil {
		return 0, err
	}
	var cur float64
	if o != nil {
		v, ok := o.AsFloat64()
		if !ok {
			return 0, ErrNotFloat
		}
		cur = v
	}
	cur += incr
	if math.IsNaN(cur) || math.IsInf(cur, 0) {
		return 0, ErrNotFloat
	}
	rep := strconv.FormatFloat(cur, 'f', -1, 64)
	db.storeValue(key, object.NewString(sds.NewString(rep)))
	db.srv.AddDirty(1)
	return cur, nil
}

// --------------------------------------------------------------------------
// Byte ranges
// --------------------------------------------------------------------------

// Append appends val to the string value, creating the key when missing,
// and returns the new length.
func (db *DB) Append(key string, val []byte) (int, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeString)
	if err != nil {
		return 0, err
	}
	if o == nil {
		o = object.NewStringFromBytes(val)
		db.Add(key, o)
		db.srv.AddDirty(1)
		return o.StringLen(), nil
	}
	o = db.unshareString(key, o)
	s := sds.Cat(o.SDS(), val)
	o.SetPayload(object.EncRaw, s)
	db.Recharge(key, o)
	db.srv.AddDirty(1)
	return sds.Len(s), nil
}

// SetRange overwrites the value starting at offset, zero-padding the gap
// when the value is shorter, and returns the new length. A missing key with
// an empty val stays missing.
func (db *DB) SetRange(key string, offset int, val []byte) (int, error) {
	if offset < 0 {
		return 0, ErrOutOfRange
	}
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeString)
	if err != nil {
		return 0, err
	}
	if o == nil {
		if len(val) == 0 {
			return 0, nil
		}
		s := sds.GrowZero(sds.Empty(), offset+len(val))
		copy(s[offset:], val)
		o = object.NewString(s)
		db.Add(key, o)
		db.srv.AddDirty(1)
		return sds.Len(s), nil
	}
	if len(val) == 0 {
		return o.StringLen(), nil
	}
	o = db.unshareString(key, o)
	s := sds.GrowZero(o.SDS(), offset+len(val))
	copy(s[offset:], val)
	o.SetPayload(object.EncRaw, s)
	db.Recharge(key, o)
	db.srv.AddDirty(1)
	return sds.Len(s), nil
}

// GetRange returns the substring selected by the inclusive index range
// [start, end]. Negative indices count from the end of the value.
func (db *DB) GetRange(key string, start, end int) ([]byte, error) {
	o, err := db.LookupReadTyped(key, object.TypeString)
	if err != nil || o == nil {
		return nil, err
	}
	b := o.Bytes()
	n := len(b)
	if n == 0 {
		return nil, nil
	}
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end = n + end
		if end < 0 {
			end = 0
		}
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return nil, nil
	}
	out := make([]byte, end-start+1)
	copy(out, b[start:end+1])
	return out, nil
}
