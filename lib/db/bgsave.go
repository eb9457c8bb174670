package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cedarkv/cedar/lib/intset"
	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/rdb"
	"github.com/cedarkv/cedar/lib/sds"
	"github.com/cedarkv/cedar/lib/ziplist"
)

// Persistence takes a logical copy of every database up front, so the
// serializing goroutine never touches live data. While the copy is being
// written out the keyspace tables keep their size, avoiding a rehash of
// tables whose contents were just duplicated.

// --------------------------------------------------------------------------
// Snapshot construction
// --------------------------------------------------------------------------

// SnapshotPath returns the configured dump file location.
func (s *Server) SnapshotPath() string {
	return filepath.Join(s.cfg.Dir, s.cfg.DBFilename)
}

// BuildSnapshot copies every database into a serializable model. Values are
// deeply copied so later mutations of the live data do not show through.
func (s *Server) BuildSnapshot() *rdb.Snapshot {
	snap := &rdb.Snapshot{}
	for _, db := range s.dbs {
		if db.keys.Len() == 0 {
			continue
		}
		dump := rdb.DBDump{Index: db.ID}
		db.ForEach(func(key string, o *object.Object) bool {
			dump.Entries = append(dump.Entries, rdb.Entry{
				Key:      key,
				Value:    dupObject(o),
				ExpireAt: db.GetExpire(key),
			})
			return true
		})
		snap.DBs = append(snap.DBs, dump)
	}
	return snap
}

// dupObject deep copies a stored value. Immutable string elements are shared
// by reference count instead of copied.
func dupObject(o *object.Object) *object.Object {
	switch o.Type {
	case object.TypeString:
		return o.Dup()

	case object.TypeList:
		if o.Encoding == object.EncZiplist {
			c := object.NewListZiplist()
			c.SetZiplist(append(ziplist.Ziplist(nil), o.Ziplist()...))
			return c
		}
		c := object.NewListLinked()
		dst := c.List()
		o.List().ForEach(func(v *object.Object) bool {
			dst.PushTail(v.IncrRefCount())
			return true
		})
		return c

	case object.TypeSet:
		if o.Encoding == object.EncIntset {
			c := object.NewSetIntset()
			c.SetIntset(append(intset.Intset(nil), o.Intset()...))
			return c
		}
		c := object.NewSetHashtable()
		dst := c.SetDict()
		o.SetDict().ForEach(func(k string, _ struct{}) bool {
			dst.Add(k, struct{}{})
			return true
		})
		return c

	case object.TypeHash:
		if o.Encoding == object.EncZiplist {
			c := object.NewHashZiplist()
			c.SetZiplist(append(ziplist.Ziplist(nil), o.Ziplist()...))
			return c
		}
		c := object.NewHashHashtable()
		dst := c.HashDict()
		o.HashDict().ForEach(func(k string, v sds.S) bool {
			dst.Set(k, sds.Dup(v))
			return true
		})
		return c

	case object.TypeZSet:
		if o.Encoding == object.EncZiplist {
			c := object.NewZSetZiplist()
			c.SetZiplist(append(ziplist.Ziplist(nil), o.Ziplist()...))
			return c
		}
		c := object.NewZSetSkiplist()
		zs := c.ZSet()
		for n := o.ZSet().Sl.First(); n != nil; n = n.Next() {
			member := append([]byte(nil), n.Member...)
			zs.Dict.Set(string(member), n.Score)
			zs.Sl.Insert(n.Score, member)
		}
		return c
	}
	panic("db: unknown object type")
}

// --------------------------------------------------------------------------
// Saving
// --------------------------------------------------------------------------

// rdbOptions derives the codec options from the configuration.
func (s *Server) rdbOptions() rdb.Options {
	return rdb.Options{
		Compression: s.cfg.RDBCompression,
		Checksum:    s.cfg.RDBChecksum,
	}
}

// writeSnapshot renders the snapshot into a temporary file next to path and
// renames it into place, so readers only ever see complete dumps.
func writeSnapshot(path string, snap *rdb.Snapshot, opts rdb.Options) error {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf("temp-%d.rdb", os.Getpid()))
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := rdb.Save(f, snap, opts); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Save writes the dataset to path synchronously.
func (s *Server) Save(path string) error {
	start := time.Now()
	if err := writeSnapshot(path, s.BuildSnapshot(), s.rdbOptions()); err != nil {
		s.lastSaveOK = false
		s.lg.Errorf("save to %s failed: %v", path, err)
		return err
	}
	s.ResetDirty()
	s.lastSave = time.Now()
	s.lastSaveOK = true
	s.lg.Infof("dataset saved to %s in %s", path, time.Since(start).Round(time.Millisecond))
	return nil
}

// BackgroundSave copies the dataset synchronously and serializes the copy to
// path on a separate goroutine. Only one background save runs at a time.
func (s *Server) BackgroundSave(path string) error {
	if s.bgsaveDone != nil {
		return ErrSaveInProgress
	}
	s.setResizeForbidden(true)
	snap := s.BuildSnapshot()
	opts := s.rdbOptions()
	done := make(chan error, 1)
	s.bgsaveDone = done
	s.bgsaveStart = time.Now()
	s.lg.Infof("background save to %s started", path)
	go func() {
		done <- writeSnapshot(path, snap, opts)
	}()
	return nil
}

// BackgroundSaveInProgress reports whether a background save is running.
func (s *Server) BackgroundSaveInProgress() bool {
	return s.bgsaveDone != nil
}

// ReapBackgroundSave collects a finished background save without blocking.
// The cron loop calls it every tick.
func (s *Server) ReapBackgroundSave() {
	if s.bgsaveDone == nil {
		return
	}
	select {
	case err := <-s.bgsaveDone:
		s.bgsaveDone = nil
		s.setResizeForbidden(false)
		if err != nil {
			s.lastSaveOK = false
			s.lg.Errorf("background save failed: %v", err)
			return
		}
		s.ResetDirty()
		s.lastSave = time.Now()
		s.lastSaveOK = true
		s.lg.Infof("background save finished in %s",
			time.Since(s.bgsaveStart).Round(time.Millisecond))
	default:
	}
}

// LastSave returns the time of the last successful save and whether the most
// recent save attempt succeeded.
func (s *Server) LastSave() (time.Time, bool) {
	return s.lastSave, s.lastSaveOK
}

// MaybeBackgroundSave starts a background save when the configured change
// and interval thresholds are both met.
func (s *Server) MaybeBackgroundSave() {
	if s.bgsaveDone != nil || s.cfg.SaveAfterChanges <= 0 {
		return
	}
	if s.Dirty() < int64(s.cfg.SaveAfterChanges) {
		return
	}
	if time.Since(s.lastSave) < time.Duration(s.cfg.SaveAfterSeconds)*time.Second {
		return
	}
	if err := s.BackgroundSave(s.SnapshotPath()); err != nil {
		s.lg.Errorf("scheduled background save failed to start: %v", err)
	}
}

// setResizeForbidden toggles the resize brake on every keyspace table.
func (s *Server) setResizeForbidden(off bool) {
	for _, db := range s.dbs {
		db.keys.SetResizeForbidden(off)
		db.expires.SetResizeForbidden(off)
	}
}

// --------------------------------------------------------------------------
// Loading
// --------------------------------------------------------------------------

// Load replaces the dataset with the contents of the snapshot at path. Keys
// whose deadline already passed are dropped during the restore.
func (s *Server) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	s.loading = true
	defer func() { s.loading = false }()

	snap, err := rdb.Load(f, s.cfg.RDBChecksum)
	if err != nil {
		return err
	}

	s.FlushAll()
	now := nowMillis()
	keys, expired := 0, 0
	for _, dump := range snap.DBs {
		db, err := s.Select(dump.Index)
		if err != nil {
			return fmt.Errorf("rdb: snapshot selects database %d, only %d configured",
				dump.Index, len(s.dbs))
		}
		for _, entry := range dump.Entries {
			if entry.ExpireAt >= 0 && entry.ExpireAt <= now {
				expired++
				continue
			}
			s.promoteLoaded(entry.Value)
			db.SetKey(entry.Key, entry.Value)
			if entry.ExpireAt >= 0 {
				db.SetExpire(entry.Key, entry.ExpireAt)
			}
			keys++
		}
	}
	s.lg.Infof("dataset loaded from %s: %d keys, %d already expired, took %s",
		path, keys, expired, time.Since(start).Round(time.Millisecond))
	return nil
}

// promoteLoaded upgrades a packed value that exceeds the configured
// thresholds, which may be stricter than those of the writer.
func (s *Server) promoteLoaded(o *object.Object) {
	switch o.Type {
	case object.TypeList:
		if o.Encoding != object.EncZiplist {
			return
		}
		zl := o.Ziplist()
		if zl.Len() > s.cfg.ListMaxZiplistEntries ||
			longestZiplistEntry(zl) > s.cfg.ListMaxZiplistValue {
			listConvert(o)
		}

	case object.TypeHash:
		if o.Encoding != object.EncZiplist {
			return
		}
		zl := o.Ziplist()
		if zl.Len() > s.cfg.HashMaxZiplistEntries*2 ||
			longestZiplistEntry(zl) > s.cfg.HashMaxZiplistValue {
			hashConvert(o)
		}

	case object.TypeZSet:
		if o.Encoding != object.EncZiplist {
			return
		}
		zl := o.Ziplist()
		if zl.Len() > s.cfg.ZSetMaxZiplistEntries*2 ||
			longestZiplistMember(zl) > s.cfg.ZSetMaxZiplistValue {
			zsetConvert(o)
		}

	case object.TypeSet:
		if o.Encoding != object.EncIntset {
			return
		}
		if o.Intset().Len() > s.cfg.SetMaxIntsetEntries {
			setConvert(o)
		}
	}
}

// longestZiplistEntry returns the longest string payload in the list.
// Integer entries render to at most 20 bytes and never exceed the default
// thresholds on their own.
func longestZiplistEntry(zl ziplist.Ziplist) int {
	longest := 0
	for p := zl.Index(0); p != -1; p = zl.Next(p) {
		if b, _, isStr := zl.Get(p); isStr && len(b) > longest {
			longest = len(b)
		}
	}
	return longest
}

// longestZiplistMember is longestZiplistEntry over the even positions only,
// the member halves of a member/score layout.
func longestZiplistMember(zl ziplist.Ziplist) int {
	longest := 0
	i := 0
	for p := zl.Index(0); p != -1; p = zl.Next(p) {
		if i%2 == 0 {
			if b, _, isStr := zl.Get(p); isStr && len(b) > longest {
				longest = len(b)
			}
		}
		i++
	}
	return longest
}
