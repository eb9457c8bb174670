package db

import (
	"sort"
	"strconv"

	"github.com/cedarkv/cedar/lib/object"
)

// --------------------------------------------------------------------------
// Encoding management
// --------------------------------------------------------------------------

// setConvert promotes an intset encoded set to the hashtable encoding.
func setConvert(o *object.Object) {
	d := object.NewSetHashtable().SetDict()
	o.Intset().ForEach(func(v int64) bool {
		d.Add(strconv.FormatInt(v, 10), struct{}{})
		return true
	})
	o.SetPayload(object.EncHashtable, d)
}

func (db *DB) setLen(o *object.Object) int {
	if o.Encoding == object.EncIntset {
		return o.Intset().Len()
	}
	return o.SetDict().Len()
}

func setIsMember(o *object.Object, member []byte) bool {
	if o.Encoding == object.EncIntset {
		v, err := strconv.ParseInt(string(member), 10, 64)
		if err != nil {
			return false
		}
		return o.Intset().Find(v)
	}
	_, ok := o.SetDict().Get(string(member))
	return ok
}

// setForEach walks every member. Intset members are materialized as their
// decimal strings.
func setForEach(o *object.Object, fn func(member []byte) bool) {
	if o.Encoding == object.EncIntset {
		o.Intset().ForEach(func(v int64) bool {
			return fn(strconv.AppendInt(nil, v, 10))
		})
		return
	}
	o.SetDict().ForEach(func(k string, _ struct{}) bool {
		return fn([]byte(k))
	})
}

// setAddMember adds the member to the set object, promoting the encoding
// when needed. It reports whether the member was new.
func (db *DB) setAddMember(o *object.Object, member []byte) bool {
	if o.Encoding == object.EncIntset {
		if v, err := strconv.ParseInt(string(member), 10, 64); err == nil {
			is, added := o.Intset().Add(v)
			o.SetIntset(is)
			if added && is.Len() > db.srv.cfg.SetMaxIntsetEntries {
				setConvert(o)
			}
			return added
		}
		setConvert(o)
	}
	return o.SetDict().Add(string(member), struct{}{})
}

func setRemoveMember(o *object.Object, member []byte) bool {
	if o.Encoding == object.EncIntset {
		v, err := strconv.ParseInt(string(member), 10, 64)
		if err != nil {
			return false
		}
		is, removed := o.Intset().Remove(v)
		o.SetIntset(is)
		return removed
	}
	return o.SetDict().Delete(string(member))
}

// newSetFor picks the narrowest encoding able to hold the first member.
func newSetFor(member []byte) *object.Object {
	if _, err := strconv.ParseInt(string(member), 10, 64); err == nil {
		return object.NewSetIntset()
	}
	return object.NewSetHashtable()
}

// --------------------------------------------------------------------------
// Basic operations
// --------------------------------------------------------------------------

// SAdd adds the members to the set, creating the key when missing, and
// returns the number of newly added members.
func (db *DB) SAdd(key string, members ...[]byte) (int, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	o, err := db.LookupWriteTyped(key, object.TypeSet)
	if err != nil {
		return 0, err
	}
	if o == nil {
		if len(members) == 0 {
			return 0, nil
		}
		o = newSetFor(members[0])
		db.Add(key, o)
	}
	added := 0
	for _, m := range members {
		if db.setAddMember(o, m) {
			added++
		}
	}
	if added > 0 {
		db.Recharge(key, o)
		db.srv.AddDirty(int64(added))
	}
	return added, nil
}

// SRem removes the members from the set, deleting the key when it becomes
// empty, and returns the number of removed members.
func (db *DB) SRem(key string, members ...[]byte) (int, error) {
	o, err := db.LookupWriteTyped(key, object.TypeSet)
	if err != nil || o == nil {
		return 0, err
	}
	removed := 0
	for _, m := range members {
		if setRemoveMember(o, m) {
			removed++
		}
	}
	if removed > 0 {
		db.srv.AddDirty(int64(removed))
		if db.setLen(o) == 0 {
			db.Delete(key)
		} else {
			db.Recharge(key, o)
		}
	}
	return removed, nil
}

// SIsMember reports whether member is in the set.
func (db *DB) SIsMember(key string, member []byte) (bool, error) {
	o, err := db.LookupReadTyped(key, object.TypeSet)
	if err != nil || o == nil {
		return false, err
	}
	return setIsMember(o, member), nil
}

// SCard returns the cardinality of the set, 0 for missing keys.
func (db *DB) SCard(key string) (int, error) {
	o, err := db.LookupReadTyped(key, object.TypeSet)
	if err != nil || o == nil {
		return 0, err
	}
	return db.setLen(o), nil
}

// SMembers returns every member of the set.
func (db *DB) SMembers(key string) ([][]byte, error) {
	o, err := db.LookupReadTyped(key, object.TypeSet)
	if err != nil || o == nil {
		return nil, err
	}
	out := make([][]byte, 0, db.setLen(o))
	setForEach(o, func(m []byte) bool {
		out = append(out, m)
		return true
	})
	return out, nil
}

// SMove moves member from src to dst atomically. It reports whether the
// member was moved.
func (db *DB) SMove(src, dst string, member []byte) (bool, error) {
	srcObj, err := db.LookupWriteTyped(src, object.TypeSet)
	if err != nil {
		return false, err
	}
	if _, err := db.LookupWriteTyped(dst, object.TypeSet); err != nil {
		return false, err
	}
	if srcObj == nil || !setIsMember(srcObj, member) {
		return false, nil
	}
	if _, err := db.SRem(src, member); err != nil {
		return false, err
	}
	if _, err := db.SAdd(dst, member); err != nil {
		return false, err
	}
	return true, nil
}

// --------------------------------------------------------------------------
// Random sampling
// --------------------------------------------------------------------------

func setRandomMember(o *object.Object) []byte {
	if o.Encoding == object.EncIntset {
		return strconv.AppendInt(nil, o.Intset().Random(), 10)
	}
	e := o.SetDict().RandomEntry()
	return []byte(e.Key)
}

// SPop removes and returns a random member, deleting the key when the set
// becomes empty.
func (db *DB) SPop(key string) ([]byte, bool, error) {
	o, err := db.LookupWriteTyped(key, object.TypeSet)
	if err != nil || o == nil {
		return nil, false, err
	}
	m := setRandomMember(o)
	setRemoveMember(o, m)
	db.srv.AddDirty(1)
	if db.setLen(o) == 0 {
		db.Delete(key)
	} else {
		db.Recharge(key, o)
	}
	return m, true, nil
}

// SRandMember returns random members without removing them. A non-negative
// count returns at most count distinct members (the whole set when count
// exceeds the cardinality); a negative count returns exactly -count members
// allowing duplicates.
func (db *DB) SRandMember(key string, count int) ([][]byte, error) {
	o, err := db.LookupReadTyped(key, object.TypeSet)
	if err != nil || o == nil {
		return nil, err
	}
	card := db.setLen(o)
	if count < 0 {
		out := make([][]byte, 0, -count)
		for i := 0; i < -count; i++ {
			out = append(out, setRandomMember(o))
		}
		return out, nil
	}
	if count >= card {
		return db.SMembers(key)
	}
	seen := make(map[string]struct{}, count)
	out := make([][]byte, 0, count)
	for len(out) < count {
		m := setRandomMember(o)
		if _, dup := seen[string(m)]; dup {
			continue
		}
		seen[string(m)] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Set algebra
// --------------------------------------------------------------------------

// lookupSets resolves the given keys, keeping nil placeholders for missing
// keys and failing on wrong types.
func (db *DB) lookupSets(keys []string) ([]*object.Object, error) {
	sets := make([]*object.Object, len(keys))
	for i, k := range keys {
		o, err := db.LookupReadTyped(k, object.TypeSet)
		if err != nil {
			return nil, err
		}
		sets[i] = o
	}
	return sets, nil
}

// SInter returns the intersection of the given sets. The smallest set is
// scanned and each member probed against the others, so the cost is bounded
// by the smallest cardinality.
func (db *DB) SInter(keys ...string) ([][]byte, error) {
	sets, err := db.lookupSets(keys)
	if err != nil {
		return nil, err
	}
	for _, o := range sets {
		if o == nil {
			return nil, nil
		}
	}
	sort.Slice(sets, func(i, j int) bool {
		return db.setLen(sets[i]) < db.setLen(sets[j])
	})
	var out [][]byte
	setForEach(sets[0], func(m []byte) bool {
		for _, other := range sets[1:] {
			if !setIsMember(other, m) {
				return true
			}
		}
		out = append(out, m)
		return true
	})
	return out, nil
}

// SUnion returns the union of the given sets.
func (db *DB) SUnion(keys ...string) ([][]byte, error) {
	sets, err := db.lookupSets(keys)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out [][]byte
	for _, o := range sets {
		if o == nil {
			continue
		}
		setForEach(o, func(m []byte) bool {
			if _, dup := seen[string(m)]; !dup {
				seen[string(m)] = struct{}{}
				out = append(out, m)
			}
			return true
		})
	}
	return out, nil
}

// SDiff returns the members of the first set that are in none of the
// others. Two algorithms are available: probing every member of the first
// set against the other sets costs about |first| * k membership tests,
// while building the full first set and erasing the others' members costs
// the sum of all cardinalities. The cheaper estimate wins, with the probe
// variant preferred since its tests are constant time.
func (db *DB) SDiff(keys ...string) ([][]byte, error) {
	sets, err := db.lookupSets(keys)
	if err != nil {
		return nil, err
	}
	if sets[0] == nil {
		return nil, nil
	}

	probeCost := int64(db.setLen(sets[0])) * int64(len(sets)-1) / 2
	scanCost := int64(0)
	for _, o := range sets {
		if o != nil {
			scanCost += int64(db.setLen(o))
		}
	}

	if probeCost <= scanCost {
		var out [][]byte
		setForEach(sets[0], func(m []byte) bool {
			for _, other := range sets[1:] {
				if other != nil && setIsMember(other, m) {
					return true
				}
			}
			out = append(out, m)
			return true
		})
		return out, nil
	}

	acc := make(map[string]struct{}, db.setLen(sets[0]))
	var order []string
	setForEach(sets[0], func(m []byte) bool {
		acc[string(m)] = struct{}{}
		order = append(order, string(m))
		return true
	})
	for _, other := range sets[1:] {
		if other == nil {
			continue
		}
		setForEach(other, func(m []byte) bool {
			delete(acc, string(m))
			return len(acc) > 0
		})
		if len(acc) == 0 {
			break
		}
	}
	out := make([][]byte, 0, len(acc))
	for _, m := range order {
		if _, ok := acc[m]; ok {
			out = append(out, []byte(m))
		}
	}
	return out, nil
}

// storeSetResult replaces dest with the given members, deleting dest when
// the result is empty. It returns the result cardinality.
func (db *DB) storeSetResult(dest string, members [][]byte) (int, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	db.Delete(dest)
	if len(members) == 0 {
		db.srv.AddDirty(1)
		return 0, nil
	}
	o := newSetFor(members[0])
	db.Add(dest, o)
	for _, m := range members {
		db.setAddMember(o, m)
	}
	db.Recharge(dest, o)
	db.srv.AddDirty(1)
	return db.setLen(o), nil
}

// SInterStore stores the intersection of the given sets under dest.
func (db *DB) SInterStore(dest string, keys ...string) (int, error) {
	members, err := db.SInter(keys...)
	if err != nil {
		return 0, err
	}
	return db.storeSetResult(dest, members)
}

// SUnionStore stores the union of the given sets under dest.
func (db *DB) SUnionStore(dest string, keys ...string) (int, error) {
	members, err := db.SUnion(keys...)
	if err != nil {
		return 0, err
	}
	return db.storeSetResult(dest, members)
}

// SDiffStore stores the difference of the given sets under dest.
func (db *DB) SDiffStore(dest string, keys ...string) (int, error) {
	members, err := db.SDiff(keys...)
	if err != nil {
		return 0, err
	}
	return db.storeSetResult(dest, members)
}
