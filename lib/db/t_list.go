package db

import (
	"bytes"

	"github.com/cedarkv/cedar/lib/adlist"
	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/ziplist"
)

// Where constants for the push and pop sides.
const (
	ListHead = ziplist.Head
	ListTail = ziplist.Tail
)

// --------------------------------------------------------------------------
// Encoding management
// --------------------------------------------------------------------------

// entryToBytes copies the entry at p out of the ziplist.
func entryToBytes(zl ziplist.Ziplist, p int) []byte {
	sv, iv, isStr := zl.Get(p)
	if isStr {
		out := make([]byte, len(sv))
		copy(out, sv)
		return out
	}
	return object.NewInt(iv).Bytes()
}

// entryToObject wraps the entry at p into a string object.
func entryToObject(zl ziplist.Ziplist, p int) *object.Object {
	sv, iv, isStr := zl.Get(p)
	if isStr {
		return object.NewStringFromBytes(sv).TryEncoding()
	}
	return object.NewInt(iv)
}

// listConvert promotes a packed list to the linked encoding. The promotion
// is one-way.
func listConvert(o *object.Object) {
	zl := o.Ziplist()
	l := adlist.New[*object.Object]()
	for p := zl.Index(0); p != -1; p = zl.Next(p) {
		l.PushTail(entryToObject(zl, p))
	}
	o.SetPayload(object.EncLinkedList, l)
}

// listTryConversion promotes the list when adding val would violate the
// packed limits.
func (db *DB) listTryConversion(o *object.Object, val []byte) {
	if o.Encoding != object.EncZiplist {
		return
	}
	cfg := db.srv.cfg
	if len(val) > cfg.ListMaxZiplistValue ||
		o.Ziplist().Len() >= cfg.ListMaxZiplistEntries {
		listConvert(o)
	}
}

// --------------------------------------------------------------------------
// Push and pop
// --------------------------------------------------------------------------

// ListPush appends the values at the given side of the list, creating the
// key when missing, and returns the new length.
func (db *DB) ListPush(key string, where int, vals ...[]byte) (int, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeList)
	if err != nil {
		return 0, err
	}
	if o == nil {
		o = object.NewListZiplist()
		db.Add(key, o)
	}
	for _, val := range vals {
		db.listTryConversion(o, val)
		if o.Encoding == object.EncZiplist {
			o.SetZiplist(o.Ziplist().Push(val, where))
		} else if where == ListHead {
			o.List().PushHead(object.NewStringFromBytes(val).TryEncoding())
		} else {
			o.List().PushTail(object.NewStringFromBytes(val).TryEncoding())
		}
	}
	db.Recharge(key, o)
	db.srv.AddDirty(int64(len(vals)))
	return db.listLen(o), nil
}

// ListPop removes and returns the element at the given side. Popping the
// last element deletes the key.
func (db *DB) ListPop(key string, where int) ([]byte, bool, error) {
	o, err := db.LookupWriteTyped(key, object.TypeList)
	if err != nil || o == nil {
		return nil, false, err
	}
	var out []byte
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		idx := 0
		if where == ListTail {
			idx = -1
		}
		p := zl.Index(idx)
		if p == -1 {
			return nil, false, nil
		}
		out = entryToBytes(zl, p)
		zl, _ = zl.Delete(p)
		o.SetZiplist(zl)
	} else {
		l := o.List()
		var n *adlist.Node[*object.Object]
		if where == ListHead {
			n = l.First()
		} else {
			n = l.Last()
		}
		if n == nil {
			return nil, false, nil
		}
		out = n.Value.Bytes()
		n.Value.DecrRefCount()
		l.Remove(n)
	}
	db.srv.AddDirty(1)
	if db.listLen(o) == 0 {
		db.Delete(key)
	} else {
		db.Recharge(key, o)
	}
	return out, true, nil
}

// RPopLPush pops the tail of src and pushes it at the head of dst
// atomically, returning the moved value.
func (db *DB) RPopLPush(src, dst string) ([]byte, bool, error) {
	// verify dst type before mutating src
	if _, err := db.LookupWriteTyped(dst, object.TypeList); err != nil {
		return nil, false, err
	}
	val, ok, err := db.ListPop(src, ListTail)
	if err != nil || !ok {
		return nil, false, err
	}
	if _, err := db.ListPush(dst, ListHead, val); err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

func (db *DB) listLen(o *object.Object) int {
	if o.Encoding == object.EncZiplist {
		return o.Ziplist().Len()
	}
	return o.List().Len()
}

// LLen returns the length of the list, 0 for missing keys.
func (db *DB) LLen(key string) (int, error) {
	o, err := db.LookupReadTyped(key, object.TypeList)
	if err != nil || o == nil {
		return 0, err
	}
	return db.listLen(o), nil
}

// LIndex returns the element at the given index. Negative indices count
// from the tail.
func (db *DB) LIndex(key string, index int) ([]byte, bool, error) {
	o, err := db.LookupReadTyped(key, object.TypeList)
	if err != nil || o == nil {
		return nil, false, err
	}
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		p := zl.Index(index)
		if p == -1 {
			return nil, false, nil
		}
		return entryToBytes(zl, p), true, nil
	}
	n := o.List().Index(index)
	if n == nil {
		return nil, false, nil
	}
	return n.Value.Bytes(), true, nil
}

// LRange returns the elements selected by the inclusive index range
// [start, stop]. Negative indices count from the tail.
func (db *DB) LRange(key string, start, stop int) ([][]byte, error) {
	o, err := db.LookupReadTyped(key, object.TypeList)
	if err != nil || o == nil {
		return nil, err
	}
	llen := db.listLen(o)
	if start < 0 {
		start = llen + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = llen + stop
	}
	if start > stop || start >= llen {
		return nil, nil
	}
	if stop >= llen {
		stop = llen - 1
	}
	out := make([][]byte, 0, stop-start+1)
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		for p := zl.Index(start); p != -1 && start <= stop; p = zl.Next(p) {
			out = append(out, entryToBytes(zl, p))
			start++
		}
	} else {
		n := o.List().Index(start)
		for ; n != nil && start <= stop; n = n.Next() {
			out = append(out, n.Value.Bytes())
			start++
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// In-place edits
// --------------------------------------------------------------------------

// LSet replaces the element at the given index. Missing keys return
// ErrNoSuchKey and out of range indices ErrOutOfRange.
func (db *DB) LSet(key string, index int, val []byte) error {
	o, err := db.LookupWriteTyped(key, object.TypeList)
	if err != nil {
		return err
	}
	if o == nil {
		return ErrNoSuchKey
	}
	db.listTryConversion(o, val)
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		p := zl.Index(index)
		if p == -1 {
			return ErrOutOfRange
		}
		zl, next := zl.Delete(p)
		if next != -1 {
			zl = zl.Insert(next, val)
		} else {
			zl = zl.Push(val, ziplist.Tail)
		}
		o.SetZiplist(zl)
	} else {
		n := o.List().Index(index)
		if n == nil {
			return ErrOutOfRange
		}
		n.Value.DecrRefCount()
		n.Value = object.NewStringFromBytes(val).TryEncoding()
	}
	db.Recharge(key, o)
	db.srv.AddDirty(1)
	return nil
}

// LTrim keeps only the elements selected by the inclusive index range
// [start, stop], deleting the key when nothing remains.
func (db *DB) LTrim(key string, start, stop int) error {
	o, err := db.LookupWriteTyped(key, object.TypeList)
	if err != nil || o == nil {
		return err
	}
	llen := db.listLen(o)
	if start < 0 {
		start = llen + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = llen + stop
	}
	var ltrim, rtrim int
	if start > stop || start >= llen {
		ltrim, rtrim = llen, 0
	} else {
		if stop >= llen {
			stop = llen - 1
		}
		ltrim, rtrim = start, llen-stop-1
	}
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		zl = zl.DeleteRange(0, ltrim)
		zl = zl.DeleteRange(-rtrim, rtrim)
		o.SetZiplist(zl)
	} else {
		l := o.List()
		for i := 0; i < ltrim; i++ {
			n := l.First()
			n.Value.DecrRefCount()
			l.Remove(n)
		}
		for i := 0; i < rtrim; i++ {
			n := l.Last()
			n.Value.DecrRefCount()
			l.Remove(n)
		}
	}
	db.srv.AddDirty(1)
	if db.listLen(o) == 0 {
		db.Delete(key)
	} else {
		db.Recharge(key, o)
	}
	return nil
}

// LRem removes up to count occurrences of val: count > 0 scans from the
// head, count < 0 from the tail and count == 0 removes all. It returns the
// number of removed elements.
func (db *DB) LRem(key string, count int, val []byte) (int, error) {
	o, err := db.LookupWriteTyped(key, object.TypeList)
	if err != nil || o == nil {
		return 0, err
	}
	fromTail := count < 0
	if fromTail {
		count = -count
	}
	removed := 0
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		var p int
		if fromTail {
			p = zl.Index(-1)
		} else {
			p = zl.Index(0)
		}
		for p != -1 {
			sv, iv, isStr := zl.Get(p)
			match := false
			if isStr {
				match = bytes.Equal(sv, val)
			} else {
				match = bytes.Equal(object.NewInt(iv).Bytes(), val)
			}
			if match {
				// entries before p keep their offsets across the delete
				prev := zl.Prev(p)
				var repl int
				zl, repl = zl.Delete(p)
				removed++
				if fromTail {
					p = prev
				} else {
					p = repl
				}
				if count > 0 && removed == count {
					break
				}
				continue
			}
			if fromTail {
				p = zl.Prev(p)
			} else {
				p = zl.Next(p)
			}
		}
		o.SetZiplist(zl)
	} else {
		l := o.List()
		n := l.First()
		if fromTail {
			n = l.Last()
		}
		for n != nil {
			next := n.Next()
			if fromTail {
				next = n.Prev()
			}
			if bytes.Equal(n.Value.Bytes(), val) {
				n.Value.DecrRefCount()
				l.Remove(n)
				removed++
				if count > 0 && removed == count {
					break
				}
			}
			n = next
		}
	}
	if removed > 0 {
		db.srv.AddDirty(int64(removed))
		if db.listLen(o) == 0 {
			db.Delete(key)
		} else {
			db.Recharge(key, o)
		}
	}
	return removed, nil
}

// LInsert inserts val before or after the first occurrence of pivot. It
// returns the new length, or -1 when the pivot was not found, or 0 when the
// key does not exist.
func (db *DB) LInsert(key string, before bool, pivot, val []byte) (int, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeList)
	if err != nil {
		return 0, err
	}
	if o == nil {
		return 0, nil
	}
	db.listTryConversion(o, val)
	inserted := false
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		if p := zl.Find(zl.Index(0), pivot, 0); p != -1 {
			if before {
				zl = zl.Insert(p, val)
			} else if next := zl.Next(p); next != -1 {
				zl = zl.Insert(next, val)
			} else {
				zl = zl.Push(val, ziplist.Tail)
			}
			o.SetZiplist(zl)
			inserted = true
		}
	} else {
		l := o.List()
		for n := l.First(); n != nil; n = n.Next() {
			if bytes.Equal(n.Value.Bytes(), pivot) {
				v := object.NewStringFromBytes(val).TryEncoding()
				if before {
					l.InsertBefore(n, v)
				} else {
					l.InsertAfter(n, v)
				}
				inserted = true
				break
			}
		}
	}
	if !inserted {
		return -1, nil
	}
	db.Recharge(key, o)
	db.srv.AddDirty(1)
	return db.listLen(o), nil
}
