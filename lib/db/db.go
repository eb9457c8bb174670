package db

import (
	"math/rand"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/cedarkv/cedar/lib/config"
	"github.com/cedarkv/cedar/lib/dict"
	"github.com/cedarkv/cedar/lib/memory"
	"github.com/cedarkv/cedar/lib/object"
)

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

var (
	statKeyspaceHits   = metrics.NewCounter("cedar_keyspace_hits_total")
	statKeyspaceMisses = metrics.NewCounter("cedar_keyspace_misses_total")
	statExpiredKeys    = metrics.NewCounter("cedar_expired_keys_total")
)

// --------------------------------------------------------------------------
// Dict vtables
// --------------------------------------------------------------------------

// keyspaceType maps key bytes to value objects.
var keyspaceType = &dict.Type[string, *object.Object]{
	Hash:  dict.HashString,
	Equal: func(a, b string) bool { return a == b },
}

// expiresType maps key bytes to unix millisecond deadlines.
var expiresType = &dict.Type[string, int64]{
	Hash:  dict.HashString,
	Equal: func(a, b string) bool { return a == b },
}

// keyOverhead is the bookkeeping charge per keyspace entry on top of the
// value footprint.
const keyOverhead = 64

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// Server is the top level handle: the numbered databases plus the shared
// counters that persistence decisions are based on.
type Server struct {
	cfg *config.Config
	dbs []*DB

	// dirty counts keyspace changes since the last successful save
	dirty *xsync.Counter

	// loading is true while a snapshot restore replaces the keyspace
	loading bool

	// bgsaveDone is non-nil while a background save runs and carries its
	// result
	bgsaveDone  chan error
	bgsaveStart time.Time

	lastSave   time.Time
	lastSaveOK bool

	lg logger.ILogger
}

// NewServer creates the configured number of empty databases.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:   cfg,
		dirty: xsync.NewCounter(),
		lg:    logger.GetLogger("db"),
	}
	s.dbs = make([]*DB, cfg.Databases)
	for i := range s.dbs {
		s.dbs[i] = &DB{
			ID:      i,
			keys:    dict.New(keyspaceType),
			expires: dict.New(expiresType),
			srv:     s,
		}
	}
	return s
}

// Config returns the active configuration.
func (s *Server) Config() *config.Config { return s.cfg }

// SetConfig swaps the active configuration, used by the config watcher.
// Encoding thresholds take effect for subsequent operations; promotions
// already performed are not revisited.
func (s *Server) SetConfig(cfg *config.Config) { s.cfg = cfg }

// NumDatabases returns the database count.
func (s *Server) NumDatabases() int { return len(s.dbs) }

// Select returns the database with the given index.
func (s *Server) Select(idx int) (*DB, error) {
	if idx < 0 || idx >= len(s.dbs) {
		return nil, ErrInvalidDBIndex
	}
	return s.dbs[idx], nil
}

// DBs returns all databases in index order.
func (s *Server) DBs() []*DB { return s.dbs }

// Dirty returns the number of keyspace changes since the last save.
func (s *Server) Dirty() int64 { return s.dirty.Value() }

// AddDirty records n keyspace changes.
func (s *Server) AddDirty(n int64) { s.dirty.Add(n) }

// ResetDirty zeroes the change counter after a successful save.
func (s *Server) ResetDirty() { s.dirty.Reset() }

// Loading reports whether a snapshot restore is in progress.
func (s *Server) Loading() bool { return s.loading }

// CheckMemory returns ErrMemoryLimit when the tracked usage exceeds the
// configured ceiling. Write operations call it before allocating.
func (s *Server) CheckMemory() error {
	if s.cfg.MaxMemory > 0 && memory.Used() > s.cfg.MaxMemory {
		return ErrMemoryLimit
	}
	return nil
}

// FlushAll empties every database.
func (s *Server) FlushAll() {
	for _, db := range s.dbs {
		db.Flush()
	}
}

// Cron performs the periodic maintenance slice: incremental rehashing of
// the keyspace tables and one active expiration cycle.
func (s *Server) Cron() {
	for _, db := range s.dbs {
		if db.keys.IsRehashing() {
			db.keys.RehashMilliseconds(1)
		}
		if db.expires.IsRehashing() {
			db.expires.RehashMilliseconds(1)
		}
	}
	s.ActiveExpireCycle()
	s.ReapBackgroundSave()
	s.MaybeBackgroundSave()
}

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// DB is a single numbered keyspace.
type DB struct {
	ID      int
	keys    *dict.Dict[string, *object.Object]
	expires *dict.Dict[string, int64]
	srv     *Server
}

// Len returns the number of keys.
func (db *DB) Len() int { return db.keys.Len() }

// NumExpires returns the number of keys carrying a deadline.
func (db *DB) NumExpires() int { return db.expires.Len() }

// charge books the footprint of a newly stored object.
func (db *DB) charge(key string, o *object.Object) {
	o.Charged = o.Footprint() + keyOverhead + memory.Round(len(key))
	memory.Track(o.Charged)
}

// uncharge releases the booked footprint.
func (db *DB) uncharge(o *object.Object) {
	memory.Untrack(o.Charged)
	o.Charged = 0
}

// Recharge recomputes the footprint of a mutated value and books the
// difference. Type operations call it after every change to a stored
// object.
func (db *DB) Recharge(key string, o *object.Object) {
	now := o.Footprint() + keyOverhead + memory.Round(len(key))
	memory.Track(now - o.Charged)
	o.Charged = now
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

// LookupRead returns the object stored under key for a read operation,
// deleting it first when it is expired. Hit and miss statistics are
// updated.
func (db *DB) LookupRead(key string) *object.Object {
	db.expireIfNeeded(key)
	if o, ok := db.keys.Get(key); ok {
		statKeyspaceHits.Inc()
		return o
	}
	statKeyspaceMisses.Inc()
	return nil
}

// LookupWrite is LookupRead without the statistics updates, used by write
// paths.
func (db *DB) LookupWrite(key string) *object.Object {
	db.expireIfNeeded(key)
	if o, ok := db.keys.Get(key); ok {
		return o
	}
	return nil
}

// LookupReadTyped looks the key up and enforces its type in one step.
func (db *DB) LookupReadTyped(key string, t object.Type) (*object.Object, error) {
	o := db.LookupRead(key)
	if o == nil {
		return nil, nil
	}
	if o.Type != t {
		return nil, ErrWrongType
	}
	return o, nil
}

// LookupWriteTyped is LookupReadTyped for write paths.
func (db *DB) LookupWriteTyped(key string, t object.Type) (*object.Object, error) {
	o := db.LookupWrite(key)
	if o == nil {
		return nil, nil
	}
	if o.Type != t {
		return nil, ErrWrongType
	}
	return o, nil
}

// Exists reports whether the key exists and is not expired.
func (db *DB) Exists(key string) bool {
	db.expireIfNeeded(key)
	_, ok := db.keys.Get(key)
	return ok
}

// --------------------------------------------------------------------------
// Mutation
// --------------------------------------------------------------------------

// Add stores a new key. The key must not exist.
func (db *DB) Add(key string, o *object.Object) {
	if !db.keys.Add(key, o) {
		panic("db: Add on existing key " + key)
	}
	db.charge(key, o)
}

// Overwrite replaces the value of an existing key, keeping its deadline.
func (db *DB) Overwrite(key string, o *object.Object) {
	old, ok := db.keys.Get(key)
	if !ok {
		panic("db: Overwrite on missing key " + key)
	}
	db.uncharge(old)
	old.DecrRefCount()
	db.keys.Set(key, o)
	db.charge(key, o)
}

// SetKey stores the value under the key regardless of a previous value and
// clears any deadline, the semantics of a plain SET.
func (db *DB) SetKey(key string, o *object.Object) {
	if db.Exists(key) {
		db.Overwrite(key, o)
	} else {
		db.Add(key, o)
	}
	db.RemoveExpire(key)
}

// Delete removes the key and its deadline. It returns false when the key
// did not exist.
func (db *DB) Delete(key string) bool {
	db.expires.Delete(key)
	o, ok := db.keys.Get(key)
	if !ok {
		return false
	}
	db.uncharge(o)
	o.DecrRefCount()
	db.keys.Delete(key)
	db.keys.ShrinkIfNeeded()
	return true
}

// Flush drops every key of the database.
func (db *DB) Flush() {
	db.keys.ForEach(func(_ string, o *object.Object) bool {
		db.uncharge(o)
		o.DecrRefCount()
		return true
	})
	db.keys.Clear()
	db.expires.Clear()
}

// --------------------------------------------------------------------------
// Keyspace queries
// --------------------------------------------------------------------------

// RandomKey returns a uniformly random non-expired key, or ok=false when
// the database is empty.
func (db *DB) RandomKey() (string, bool) {
	for {
		e := db.keys.RandomEntry()
		if e == nil {
			return "", false
		}
		if db.expireIfNeeded(e.Key) {
			continue
		}
		return e.Key, true
	}
}

// Keys returns every non-expired key matching the glob pattern.
func (db *DB) Keys(pattern string) []string {
	all := pattern == "*"
	var out []string
	it := db.keys.NewSafeIterator()
	defer it.Release()
	for e := it.Next(); e != nil; e = it.Next() {
		if db.expireIfNeeded(e.Key) {
			continue
		}
		if all || globMatch(pattern, e.Key) {
			out = append(out, e.Key)
		}
	}
	return out
}

// ForEach walks every non-expired key with a safe iterator.
func (db *DB) ForEach(fn func(key string, o *object.Object) bool) {
	it := db.keys.NewSafeIterator()
	defer it.Release()
	for e := it.Next(); e != nil; e = it.Next() {
		if db.isExpired(e.Key) {
			continue
		}
		if !fn(e.Key, e.Val) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Helpers shared by the type operation layer
// --------------------------------------------------------------------------

// srand is the randomness source of the sampling operations. Tests may
// reseed it for determinism.
var srand = rand.New(rand.NewSource(rand.Int63()))
