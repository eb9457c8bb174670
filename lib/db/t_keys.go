package db

import "github.com/cedarkv/cedar/lib/object"

// Type returns the type name of the value stored under key, or "none".
func (db *DB) Type(key string) string {
	o := db.LookupRead(key)
	if o == nil {
		return "none"
	}
	return o.Type.String()
}

// ObjectEncoding returns the encoding name of the value stored under key.
func (db *DB) ObjectEncoding(key string) (string, error) {
	o := db.LookupRead(key)
	if o == nil {
		return "", ErrNoSuchKey
	}
	return o.Encoding.String(), nil
}

// Del removes the given keys and returns the number that existed.
func (db *DB) Del(keys ...string) int {
	deleted := 0
	for _, k := range keys {
		db.expireIfNeeded(k)
		if db.Delete(k) {
			deleted++
		}
	}
	if deleted > 0 {
		db.srv.AddDirty(int64(deleted))
	}
	return deleted
}

// Rename moves the value and deadline of src under dst, replacing any
// previous value of dst.
func (db *DB) Rename(src, dst string) error {
	o := db.LookupWrite(src)
	if o == nil {
		return ErrNoSuchKey
	}
	o.IncrRefCount()
	at := db.GetExpire(src)
	db.Delete(src)
	db.SetKey(dst, o)
	if at >= 0 {
		db.SetExpire(dst, at)
	}
	db.srv.AddDirty(1)
	return nil
}

// RenameNX is Rename refusing to overwrite an existing dst. It reports
// whether the rename happened.
func (db *DB) RenameNX(src, dst string) (bool, error) {
	if !db.Exists(src) {
		return false, ErrNoSuchKey
	}
	if db.Exists(dst) {
		return false, nil
	}
	return true, db.Rename(src, dst)
}

// Object returns the stored object itself, for the persistence layer.
func (db *DB) Object(key string) *object.Object {
	return db.LookupRead(key)
}
