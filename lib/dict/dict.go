package dict

import (
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// InitialSize is the bucket count of a freshly used table.
	InitialSize = 4

	// forceResizeRatio is the load factor above which the table grows even
	// while resizing is forbidden.
	forceResizeRatio = 5

	// shrinkRatio is the utilization (in percent) below which the table
	// shrinks back towards its used count.
	shrinkRatio = 10
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Type collects the per-key callbacks of a dict. Hash and Equal are
// mandatory; the Dup callbacks may be nil in which case values are stored
// as given.
type Type[K any, V any] struct {
	Hash   func(k K) uint64
	Equal  func(a, b K) bool
	DupKey func(k K) K
	DupVal func(v V) V
}

// Entry is a single key/value pair. Entries hashing to the same bucket are
// chained through next.
type Entry[K any, V any] struct {
	Key  K
	Val  V
	next *Entry[K, V]
}

type table[K any, V any] struct {
	buckets  []*Entry[K, V]
	sizemask uint64
	used     int
}

// Dict is the incremental hash table.
//
// Thread-safety: a Dict is not safe for concurrent use.
type Dict[K any, V any] struct {
	typ       *Type[K, V]
	ht        [2]table[K, V]
	rehashidx int // -1 when no rehash is in progress
	iterators int // running safe iterators
	resizeOff bool
}

// New creates an empty dict with the given type vtable.
func New[K any, V any](typ *Type[K, V]) *Dict[K, V] {
	return &Dict[K, V]{typ: typ, rehashidx: -1}
}

// HashBytes is the byte-string hash used by every byte-keyed dict in the
// store.
func HashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// HashString hashes a Go string without copying it.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Len returns the number of stored entries.
func (d *Dict[K, V]) Len() int {
	return d.ht[0].used + d.ht[1].used
}

// Size returns the combined bucket count of both tables.
func (d *Dict[K, V]) Size() int {
	return len(d.ht[0].buckets) + len(d.ht[1].buckets)
}

// IsRehashing reports whether an incremental rehash is in progress.
func (d *Dict[K, V]) IsRehashing() bool {
	return d.rehashidx != -1
}

// --------------------------------------------------------------------------
// Resizing
// --------------------------------------------------------------------------

// SetResizeForbidden toggles the resize brake. While forbidden the table
// only grows once the load factor exceeds forceResizeRatio; it is engaged
// while a background save holds a logical copy of the data.
func (d *Dict[K, V]) SetResizeForbidden(off bool) {
	d.resizeOff = off
}

func nextPower(n int) int {
	size := InitialSize
	for size < n {
		size *= 2
	}
	return size
}

// expand resizes the dict to hold at least n entries. It is a no-op while a
// rehash is already running or when the target size matches the current one.
func (d *Dict[K, V]) expand(n int) {
	if d.IsRehashing() {
		return
	}
	size := nextPower(n)
	if size == len(d.ht[0].buckets) {
		return
	}
	nt := table[K, V]{
		buckets:  make([]*Entry[K, V], size),
		sizemask: uint64(size - 1),
	}
	if d.ht[0].buckets == nil {
		// first use, no data to migrate
		d.ht[0] = nt
		return
	}
	d.ht[1] = nt
	d.rehashidx = 0
}

// expandIfNeeded applies the growth policy before an insert.
func (d *Dict[K, V]) expandIfNeeded() {
	if d.IsRehashing() {
		return
	}
	if d.ht[0].buckets == nil {
		d.expand(InitialSize)
		return
	}
	size := len(d.ht[0].buckets)
	if d.ht[0].used >= size &&
		(!d.resizeOff || d.ht[0].used/size > forceResizeRatio) {
		d.expand(d.ht[0].used * 2)
	}
}

// ShrinkIfNeeded resizes the table down when utilization fell below 10%.
// Callers invoke it after bulk deletions.
func (d *Dict[K, V]) ShrinkIfNeeded() {
	if d.IsRehashing() || d.resizeOff {
		return
	}
	size := len(d.ht[0].buckets)
	if size > InitialSize && d.ht[0].used*100/size < shrinkRatio {
		n := d.ht[0].used
		if n < InitialSize {
			n = InitialSize
		}
		d.expand(n)
	}
}

// --------------------------------------------------------------------------
// Incremental rehashing
// --------------------------------------------------------------------------

// RehashStep migrates up to n buckets from the old to the new table. To
// bound the work on sparse tables at most n*10 empty buckets are visited.
// It returns false once the rehash is complete.
func (d *Dict[K, V]) RehashStep(n int) bool {
	emptyVisits := n * 10
	if !d.IsRehashing() || d.iterators > 0 {
		return false
	}
	for ; n > 0 && d.ht[0].used != 0; n-- {
		for d.ht[0].buckets[d.rehashidx] == nil {
			d.rehashidx++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}
		e := d.ht[0].buckets[d.rehashidx]
		for e != nil {
			next := e.next
			idx := d.typ.Hash(e.Key) & d.ht[1].sizemask
			e.next = d.ht[1].buckets[idx]
			d.ht[1].buckets[idx] = e
			d.ht[0].used--
			d.ht[1].used++
			e = next
		}
		d.ht[0].buckets[d.rehashidx] = nil
		d.rehashidx++
	}
	if d.ht[0].used == 0 {
		d.ht[0] = d.ht[1]
		d.ht[1] = table[K, V]{}
		d.rehashidx = -1
		return false
	}
	return true
}

// RehashMilliseconds rehashes in bursts of 100 buckets until the given
// number of milliseconds has passed. It returns the number of bursts
// performed.
func (d *Dict[K, V]) RehashMilliseconds(ms int) int {
	start := time.Now()
	bursts := 0
	for d.RehashStep(100) {
		bursts++
		if time.Since(start) >= time.Duration(ms)*time.Millisecond {
			break
		}
	}
	return bursts
}

// stepOnLookup performs a single bucket of rehash work, piggybacked on every
// read and write while no safe iterator is running.
func (d *Dict[K, V]) stepOnLookup() {
	if d.iterators == 0 {
		d.RehashStep(1)
	}
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

func (d *Dict[K, V]) find(k K) *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.stepOnLookup()
	}
	h := d.typ.Hash(k)
	for t := 0; t <= 1; t++ {
		ht := &d.ht[t]
		if ht.buckets == nil {
			break
		}
		e := ht.buckets[h&ht.sizemask]
		for e != nil {
			if d.typ.Equal(k, e.Key) {
				return e
			}
			e = e.next
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil
}

// Get returns the value stored under k.
func (d *Dict[K, V]) Get(k K) (V, bool) {
	if e := d.find(k); e != nil {
		return e.Val, true
	}
	var zero V
	return zero, false
}

// GetEntry returns the entry stored under k, allowing in-place value
// updates.
func (d *Dict[K, V]) GetEntry(k K) *Entry[K, V] {
	return d.find(k)
}

// --------------------------------------------------------------------------
// Insertion and deletion
// --------------------------------------------------------------------------

func (d *Dict[K, V]) dupKey(k K) K {
	if d.typ.DupKey != nil {
		return d.typ.DupKey(k)
	}
	return k
}

func (d *Dict[K, V]) dupVal(v V) V {
	if d.typ.DupVal != nil {
		return d.typ.DupVal(v)
	}
	return v
}

// Add inserts a new entry. It returns false when the key already exists, in
// which case nothing changes.
func (d *Dict[K, V]) Add(k K, v V) bool {
	if d.IsRehashing() {
		d.stepOnLookup()
	}
	if d.find(k) != nil {
		return false
	}
	d.expandIfNeeded()
	t := 0
	if d.IsRehashing() {
		t = 1
	}
	ht := &d.ht[t]
	idx := d.typ.Hash(k) & ht.sizemask
	e := &Entry[K, V]{Key: d.dupKey(k), Val: d.dupVal(v), next: ht.buckets[idx]}
	ht.buckets[idx] = e
	ht.used++
	return true
}

// Set stores v under k, replacing any previous value. It returns true when
// the key was newly created.
func (d *Dict[K, V]) Set(k K, v V) bool {
	if e := d.find(k); e != nil {
		e.Val = d.dupVal(v)
		return false
	}
	return d.Add(k, v)
}

// Delete removes the entry stored under k. It returns false when the key was
// not present.
func (d *Dict[K, V]) Delete(k K) bool {
	if d.Len() == 0 {
		return false
	}
	if d.IsRehashing() {
		d.stepOnLookup()
	}
	h := d.typ.Hash(k)
	for t := 0; t <= 1; t++ {
		ht := &d.ht[t]
		if ht.buckets == nil {
			break
		}
		idx := h & ht.sizemask
		var prev *Entry[K, V]
		e := ht.buckets[idx]
		for e != nil {
			if d.typ.Equal(k, e.Key) {
				if prev != nil {
					prev.next = e.next
				} else {
					ht.buckets[idx] = e.next
				}
				ht.used--
				return true
			}
			prev = e
			e = e.next
		}
		if !d.IsRehashing() {
			break
		}
	}
	return false
}

// Clear drops every entry and resets the dict to its initial state.
func (d *Dict[K, V]) Clear() {
	d.ht[0] = table[K, V]{}
	d.ht[1] = table[K, V]{}
	d.rehashidx = -1
	d.iterators = 0
}

// --------------------------------------------------------------------------
// Random sampling
// --------------------------------------------------------------------------

// RandomEntry returns a random entry, or nil when the dict is empty. The
// distribution is only approximately uniform: a bucket is picked uniformly
// and then a chain position within it.
func (d *Dict[K, V]) RandomEntry() *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.stepOnLookup()
	}
	var e *Entry[K, V]
	if d.IsRehashing() {
		total := len(d.ht[0].buckets) + len(d.ht[1].buckets)
		for e == nil {
			// buckets below rehashidx are guaranteed empty
			idx := d.rehashidx + rand.Intn(total-d.rehashidx)
			if idx >= len(d.ht[0].buckets) {
				e = d.ht[1].buckets[idx-len(d.ht[0].buckets)]
			} else {
				e = d.ht[0].buckets[idx]
			}
		}
	} else {
		for e == nil {
			e = d.ht[0].buckets[rand.Intn(len(d.ht[0].buckets))]
		}
	}
	// walk a uniformly chosen position in the chain
	n := 0
	for c := e; c != nil; c = c.next {
		n++
	}
	for i := rand.Intn(n); i > 0; i-- {
		e = e.next
	}
	return e
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Iterator walks every entry of the dict. A safe iterator (NewSafeIterator)
// pauses incremental rehashing for its lifetime so entries may be added or
// deleted during the walk. An unsafe iterator tolerates no mutation; a
// fingerprint taken at start and checked at Release panics on misuse.
type Iterator[K any, V any] struct {
	d           *Dict[K, V]
	table       int
	index       int
	safe        bool
	started     bool
	entry       *Entry[K, V]
	nextEntry   *Entry[K, V]
	fingerprint uint64
}

// NewIterator returns an unsafe iterator.
func (d *Dict[K, V]) NewIterator() *Iterator[K, V] {
	return &Iterator[K, V]{d: d, index: -1}
}

// NewSafeIterator returns an iterator that pauses rehashing while it runs.
func (d *Dict[K, V]) NewSafeIterator() *Iterator[K, V] {
	return &Iterator[K, V]{d: d, index: -1, safe: true}
}

// fingerprintNow folds the table pointers and sizes into a single value that
// changes whenever the dict is resized or rehashed.
func (d *Dict[K, V]) fingerprintNow() uint64 {
	mix := func(h, v uint64) uint64 {
		h = (h << 5) + h + v
		h *= 0x9e3779b97f4a7c15
		return h ^ (h >> 31)
	}
	var h uint64
	for t := 0; t <= 1; t++ {
		h = mix(h, uint64(len(d.ht[t].buckets)))
		h = mix(h, uint64(d.ht[t].used))
	}
	h = mix(h, uint64(d.rehashidx)+1)
	return h
}

// Next returns the next entry, or nil when the walk is complete.
func (it *Iterator[K, V]) Next() *Entry[K, V] {
	for {
		if it.entry == nil {
			ht := &it.d.ht[it.table]
			if !it.started {
				it.started = true
				if it.safe {
					it.d.iterators++
				} else {
					it.fingerprint = it.d.fingerprintNow()
				}
			}
			it.index++
			if it.index >= len(ht.buckets) {
				if it.d.IsRehashing() && it.table == 0 {
					it.table = 1
					it.index = 0
					ht = &it.d.ht[1]
				} else {
					return nil
				}
			}
			if len(ht.buckets) == 0 {
				return nil
			}
			it.entry = ht.buckets[it.index]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			// save the successor so the caller may delete the entry
			it.nextEntry = it.entry.next
			return it.entry
		}
	}
}

// Release ends the walk. Unsafe iterators panic here when the dict was
// mutated during iteration.
func (it *Iterator[K, V]) Release() {
	if !it.started {
		return
	}
	if it.safe {
		it.d.iterators--
	} else if it.fingerprint != it.d.fingerprintNow() {
		panic("dict: table modified during unsafe iteration")
	}
}

// ForEach walks every entry with a safe iterator.
func (d *Dict[K, V]) ForEach(fn func(k K, v V) bool) {
	it := d.NewSafeIterator()
	defer it.Release()
	for e := it.Next(); e != nil; e = it.Next() {
		if !fn(e.Key, e.Val) {
			return
		}
	}
}
