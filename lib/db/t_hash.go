package db

import (
	"math"
	"strconv"

	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/sds"
	"github.com/cedarkv/cedar/lib/ziplist"
)

// --------------------------------------------------------------------------
// Encoding management
// --------------------------------------------------------------------------

// hashConvert promotes a packed hash to the hashtable encoding. Entries
// alternate between fields and values in the packed form.
func hashConvert(o *object.Object) {
	zl := o.Ziplist()
	d := object.NewHashHashtable().HashDict()
	for p := zl.Index(0); p != -1; {
		field := entryToBytes(zl, p)
		p = zl.Next(p)
		val := entryToBytes(zl, p)
		p = zl.Next(p)
		d.Set(string(field), sds.New(val))
	}
	o.SetPayload(object.EncHashtable, d)
}

// hashTryConversion promotes the hash when storing the given field or value
// would violate the packed limits.
func (db *DB) hashTryConversion(o *object.Object, field, val []byte) {
	if o.Encoding != object.EncZiplist {
		return
	}
	cfg := db.srv.cfg
	if len(field) > cfg.HashMaxZiplistValue ||
		len(val) > cfg.HashMaxZiplistValue {
		hashConvert(o)
		return
	}
	// only a new field adds an entry; updating an existing one keeps the count
	if o.Ziplist().Len()/2 >= cfg.HashMaxZiplistEntries {
		if fp, _ := hashZiplistFind(o.Ziplist(), field); fp == -1 {
			hashConvert(o)
		}
	}
}

// hashZiplistFind returns the offsets of the field entry and its value
// entry, or -1, -1.
func hashZiplistFind(zl ziplist.Ziplist, field []byte) (int, int) {
	head := zl.Index(0)
	if head == -1 {
		return -1, -1
	}
	fp := zl.Find(head, field, 1)
	if fp == -1 {
		return -1, -1
	}
	return fp, zl.Next(fp)
}

func (db *DB) hashLen(o *object.Object) int {
	if o.Encoding == object.EncZiplist {
		return o.Ziplist().Len() / 2
	}
	return o.HashDict().Len()
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// HSet stores val under field, creating the key when missing. It reports
// whether the field was newly created.
func (db *DB) HSet(key string, field, val []byte) (bool, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return false, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeHash)
	if err != nil {
		return false, err
	}
	if o == nil {
		o = object.NewHashZiplist()
		db.Add(key, o)
	}
	db.hashTryConversion(o, field, val)
	created := false
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		fp, vp := hashZiplistFind(zl, field)
		if fp == -1 {
			zl = zl.Push(field, ziplist.Tail)
			zl = zl.Push(val, ziplist.Tail)
			created = true
		} else {
			zl, _ = zl.Delete(vp)
			if next := zl.Next(fp); next != -1 {
				zl = zl.Insert(next, val)
			} else {
				zl = zl.Push(val, ziplist.Tail)
			}
		}
		o.SetZiplist(zl)
	} else {
		created = o.HashDict().Set(string(field), sds.New(val))
	}
	db.Recharge(key, o)
	db.srv.AddDirty(1)
	return created, nil
}

// HSetNX stores val under field only when the field does not exist.
func (db *DB) HSetNX(key string, field, val []byte) (bool, error) {
	exists, err := db.HExists(key, field)
	if err != nil || exists {
		return false, err
	}
	return db.HSet(key, field, val)
}

// HMSet stores every field/value pair in one call. Pairs alternate field,
// value; an odd number of arguments is rejected.
func (db *DB) HMSet(key string, pairs ...[]byte) error {
	if len(pairs)%2 != 0 {
		return ErrWrongArgCount
	}
	for i := 0; i < len(pairs); i += 2 {
		if _, err := db.HSet(key, pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// HDel removes the given fields, deleting the key when the hash becomes
// empty. It returns the number of removed fields.
func (db *DB) HDel(key string, fields ...[]byte) (int, error) {
	o, err := db.LookupWriteTyped(key, object.TypeHash)
	if err != nil || o == nil {
		return 0, err
	}
	removed := 0
	for _, field := range fields {
		if o.Encoding == object.EncZiplist {
			zl := o.Ziplist()
			fp, _ := hashZiplistFind(zl, field)
			if fp == -1 {
				continue
			}
			// field and value are adjacent, two deletes at the same offset
			zl, _ = zl.Delete(fp)
			zl, _ = zl.Delete(fp)
			o.SetZiplist(zl)
			removed++
		} else if o.HashDict().Delete(string(field)) {
			removed++
		}
	}
	if removed > 0 {
		db.srv.AddDirty(int64(removed))
		if db.hashLen(o) == 0 {
			db.Delete(key)
		} else {
			db.Recharge(key, o)
		}
	}
	return removed, nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// HGet returns the value stored under field.
func (db *DB) HGet(key string, field []byte) ([]byte, bool, error) {
	o, err := db.LookupReadTyped(key, object.TypeHash)
	if err != nil || o == nil {
		return nil, false, err
	}
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		_, vp := hashZiplistFind(zl, field)
		if vp == -1 {
			return nil, false, nil
		}
		return entryToBytes(zl, vp), true, nil
	}
	v, ok := o.HashDict().Get(string(field))
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// HMGet returns one slot per requested field, nil for fields that do not
// exist. A missing or wrong-type key yields all-nil slots.
func (db *DB) HMGet(key string, fields ...[]byte) [][]byte {
	out := make([][]byte, len(fields))
	for i, field := range fields {
		if v, ok, err := db.HGet(key, field); ok && err == nil {
			out[i] = v
		}
	}
	return out
}

// HExists reports whether the field exists.
func (db *DB) HExists(key string, field []byte) (bool, error) {
	_, ok, err := db.HGet(key, field)
	return ok, err
}

// HLen returns the number of fields, 0 for missing keys.
func (db *DB) HLen(key string) (int, error) {
	o, err := db.LookupReadTyped(key, object.TypeHash)
	if err != nil || o == nil {
		return 0, err
	}
	return db.hashLen(o), nil
}

// hashForEach walks every field/value pair.
func hashForEach(o *object.Object, fn func(field, val []byte)) {
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		for p := zl.Index(0); p != -1; {
			field := entryToBytes(zl, p)
			p = zl.Next(p)
			val := entryToBytes(zl, p)
			p = zl.Next(p)
			fn(field, val)
		}
		return
	}
	o.HashDict().ForEach(func(k string, v sds.S) bool {
		val := make([]byte, len(v))
		copy(val, v)
		fn([]byte(k), val)
		return true
	})
}

// HGetAll returns every field/value pair.
func (db *DB) HGetAll(key string) (map[string][]byte, error) {
	o, err := db.LookupReadTyped(key, object.TypeHash)
	if err != nil || o == nil {
		return nil, err
	}
	out := make(map[string][]byte, db.hashLen(o))
	hashForEach(o, func(field, val []byte) {
		out[string(field)] = val
	})
	return out, nil
}

// HKeys returns every field name.
func (db *DB) HKeys(key string) ([][]byte, error) {
	o, err := db.LookupReadTyped(key, object.TypeHash)
	if err != nil || o == nil {
		return nil, err
	}
	out := make([][]byte, 0, db.hashLen(o))
	hashForEach(o, func(field, _ []byte) {
		out = append(out, field)
	})
	return out, nil
}

// HVals returns every value.
func (db *DB) HVals(key string) ([][]byte, error) {
	o, err := db.LookupReadTyped(key, object.TypeHash)
	if err != nil || o == nil {
		return nil, err
	}
	out := make([][]byte, 0, db.hashLen(o))
	hashForEach(o, func(_, val []byte) {
		out = append(out, val)
	})
	return out, nil
}

// --------------------------------------------------------------------------
// Arithmetic
// --------------------------------------------------------------------------

// HIncrBy adds incr to the integer interpretation of the field, creating a
// missing field at 0, and returns the new value.
func (db *DB) HIncrBy(key string, field []byte, incr int64) (int64, error) {
	cur, ok, err := db.HGet(key, field)
	if err != nil {
		return 0, err
	}
	var v int64
	if ok {
		v, err = strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
	}
	if (incr > 0 && v > math.MaxInt64-incr) ||
		(incr < 0 && v < math.MinInt64-incr) {
		return 0, ErrOverflow
	}
	v += incr
	if _, err := db.HSet(key, field, strconv.AppendInt(nil, v, 10)); err != nil {
		return 0, err
	}
	return v, nil
}

// HIncrByFloat adds incr to the float interpretation of the field.
func (db *DB) HIncrByFloat(key string, field []byte, incr float64) (float64, error) {
	cur, ok, err := db.HGet(key, field)
	if err != nil {
		return 0, err
	}
	var v float64
	if ok {
		v, err = strconv.ParseFloat(string(cur), 64)
		if err != nil {
			return 0, ErrNotFloat
		}
	}
	v += incr
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFloat
	}
	rep := strconv.FormatFloat(v, 'f', -1, 64)
	if _, err := db.HSet(key, field, []byte(rep)); err != nil {
		return 0, err
	}
	return v, nil
}
