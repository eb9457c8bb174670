package rdb

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/sds"
	"github.com/cedarkv/cedar/lib/ziplist"
)

// roundTrip serializes snap and parses it back.
func roundTrip(t *testing.T, snap *Snapshot, opts Options) *Snapshot {
	t.Helper()
	var buf bytes.Buffer
	if err := Save(&buf, snap, opts); err != nil {
		t.Fatalf("Save: %v", err)
	}
	re, err := Load(&buf, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return re
}

// findEntry returns the entry with the given key from the first database.
func findEntry(t *testing.T, snap *Snapshot, key string) Entry {
	t.Helper()
	for _, e := range snap.DBs[0].Entries {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("key %q not in snapshot", key)
	return Entry{}
}

// TestEmptySnapshot tests a dataset with no keys
func TestEmptySnapshot(t *testing.T) {
	re := roundTrip(t, &Snapshot{}, Options{Checksum: true})
	if len(re.DBs) != 0 {
		t.Errorf("empty snapshot came back with %d databases", len(re.DBs))
	}
}

// TestStringRoundTrip tests raw, integer and long strings
func TestStringRoundTrip(t *testing.T) {
	long := strings.Repeat("the quick brown fox ", 50)
	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "raw", Value: object.NewStringFromBytes([]byte("hello")), ExpireAt: -1},
		{Key: "int", Value: object.NewInt(-12345), ExpireAt: -1},
		{Key: "big", Value: object.NewInt(math.MaxInt64), ExpireAt: -1},
		{Key: "long", Value: object.NewStringFromBytes([]byte(long)), ExpireAt: -1},
	}}}}

	for _, compress := range []bool{true, false} {
		re := roundTrip(t, snap, Options{Compression: compress, Checksum: true})
		if got := findEntry(t, re, "raw").Value.Bytes(); string(got) != "hello" {
			t.Errorf("raw = %q", got)
		}
		if v, ok := findEntry(t, re, "int").Value.AsInt64(); !ok || v != -12345 {
			t.Errorf("int = %d, %v", v, ok)
		}
		if got := findEntry(t, re, "big").Value.Bytes(); string(got) != "9223372036854775807" {
			t.Errorf("big = %q", got)
		}
		if got := findEntry(t, re, "long").Value.Bytes(); string(got) != long {
			t.Errorf("long string corrupted with compress=%v", compress)
		}
	}
}

// TestCompressionShrinks tests that compressible payloads actually compress
func TestCompressionShrinks(t *testing.T) {
	long := strings.Repeat("a", 10000)
	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "k", Value: object.NewStringFromBytes([]byte(long)), ExpireAt: -1},
	}}}}

	var packed, plain bytes.Buffer
	if err := Save(&packed, snap, Options{Compression: true, Checksum: true}); err != nil {
		t.Fatal(err)
	}
	if err := Save(&plain, snap, Options{Compression: false, Checksum: true}); err != nil {
		t.Fatal(err)
	}
	if packed.Len() >= plain.Len() {
		t.Errorf("compressed file is not smaller: %d vs %d", packed.Len(), plain.Len())
	}
}

// TestExpireRoundTrip tests the millisecond deadline record
func TestExpireRoundTrip(t *testing.T) {
	deadline := int64(1700000000123)
	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "temp", Value: object.NewStringFromBytes([]byte("v")), ExpireAt: deadline},
		{Key: "perm", Value: object.NewStringFromBytes([]byte("v")), ExpireAt: -1},
	}}}}

	re := roundTrip(t, snap, Options{Checksum: true})
	if got := findEntry(t, re, "temp").ExpireAt; got != deadline {
		t.Errorf("deadline = %d, want %d", got, deadline)
	}
	if got := findEntry(t, re, "perm").ExpireAt; got != -1 {
		t.Errorf("permanent key has deadline %d", got)
	}
}

// TestMultipleDatabases tests the database select records
func TestMultipleDatabases(t *testing.T) {
	snap := &Snapshot{DBs: []DBDump{
		{Index: 0, Entries: []Entry{{Key: "a", Value: object.NewInt(1), ExpireAt: -1}}},
		{Index: 3, Entries: nil}, // empty databases are not written
		{Index: 7, Entries: []Entry{{Key: "b", Value: object.NewInt(2), ExpireAt: -1}}},
	}}

	re := roundTrip(t, snap, Options{Checksum: true})
	if len(re.DBs) != 2 {
		t.Fatalf("got %d databases, want 2", len(re.DBs))
	}
	if re.DBs[0].Index != 0 || re.DBs[1].Index != 7 {
		t.Errorf("database indexes = %d, %d", re.DBs[0].Index, re.DBs[1].Index)
	}
}

// TestCollectionRoundTrip tests the unpacked collection encodings
func TestCollectionRoundTrip(t *testing.T) {
	list := object.NewListLinked()
	for _, v := range []string{"one", "two", "three"} {
		list.List().PushTail(object.NewStringFromBytes([]byte(v)))
	}

	set := object.NewSetHashtable()
	for _, v := range []string{"x", "y", "z"} {
		set.SetDict().Add(v, struct{}{})
	}

	hash := object.NewHashHashtable()
	hash.HashDict().Set("f1", sds.New([]byte("v1")))
	hash.HashDict().Set("f2", sds.New([]byte("v2")))

	zset := object.NewZSetSkiplist()
	for i, m := range []string{"a", "b", "c"} {
		zset.ZSet().Dict.Set(m, float64(i))
		zset.ZSet().Sl.Insert(float64(i), []byte(m))
	}

	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "list", Value: list, ExpireAt: -1},
		{Key: "set", Value: set, ExpireAt: -1},
		{Key: "hash", Value: hash, ExpireAt: -1},
		{Key: "zset", Value: zset, ExpireAt: -1},
	}}}}

	re := roundTrip(t, snap, Options{Compression: true, Checksum: true})

	l := findEntry(t, re, "list").Value
	if l.Type != object.TypeList || l.List().Len() != 3 {
		t.Errorf("list came back as %s with %d elements", l.Type, l.List().Len())
	}
	if string(l.List().First().Value.Bytes()) != "one" {
		t.Error("list order lost")
	}

	s := findEntry(t, re, "set").Value
	if s.Type != object.TypeSet || s.SetDict().Len() != 3 {
		t.Errorf("set came back wrong")
	}
	if _, ok := s.SetDict().Get("y"); !ok {
		t.Error("set member lost")
	}

	h := findEntry(t, re, "hash").Value
	if v, ok := h.HashDict().Get("f2"); !ok || v.String() != "v2" {
		t.Errorf("hash field = %q, %v", v, ok)
	}

	z := findEntry(t, re, "zset").Value
	if sc, ok := z.ZSet().Dict.Get("b"); !ok || sc != 1 {
		t.Errorf("zset score = %f, %v", sc, ok)
	}
	if string(z.ZSet().Sl.First().Member) != "a" {
		t.Error("zset order lost")
	}
}

// TestPackedRoundTrip tests the blob backed encodings
func TestPackedRoundTrip(t *testing.T) {
	lz := object.NewListZiplist()
	zl := lz.Ziplist()
	for _, v := range []string{"a", "b", "42"} {
		zl = zl.Push([]byte(v), ziplist.Tail)
	}
	lz.SetZiplist(zl)

	is := object.NewSetIntset()
	iset := is.Intset()
	for _, v := range []int64{3, 1, 100000} {
		iset, _ = iset.Add(v)
	}
	is.SetIntset(iset)

	hz := object.NewHashZiplist()
	zl = hz.Ziplist()
	for _, v := range []string{"f", "v"} {
		zl = zl.Push([]byte(v), ziplist.Tail)
	}
	hz.SetZiplist(zl)

	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "list", Value: lz, ExpireAt: -1},
		{Key: "iset", Value: is, ExpireAt: -1},
		{Key: "hash", Value: hz, ExpireAt: -1},
	}}}}

	re := roundTrip(t, snap, Options{Compression: true, Checksum: true})

	l := findEntry(t, re, "list").Value
	if l.Encoding != object.EncZiplist || l.Ziplist().Len() != 3 {
		t.Errorf("packed list came back as %s", l.Encoding)
	}
	p := l.Ziplist().Index(2)
	if _, v, isStr := l.Ziplist().Get(p); isStr || v != 42 {
		t.Error("packed integer entry lost")
	}

	i := findEntry(t, re, "iset").Value
	if i.Encoding != object.EncIntset || i.Intset().Len() != 3 {
		t.Errorf("intset came back as %s", i.Encoding)
	}
	if !i.Intset().Find(100000) {
		t.Error("intset member lost")
	}

	h := findEntry(t, re, "hash").Value
	if h.Encoding != object.EncZiplist || h.Ziplist().Len() != 2 {
		t.Errorf("packed hash came back as %s", h.Encoding)
	}
}

// TestSpecialDoubles tests the non-finite score markers
func TestSpecialDoubles(t *testing.T) {
	zset := object.NewZSetSkiplist()
	for m, sc := range map[string]float64{
		"pos": math.Inf(1), "neg": math.Inf(-1), "half": 0.5, "whole": 3,
	} {
		zset.ZSet().Dict.Set(m, sc)
		zset.ZSet().Sl.Insert(sc, []byte(m))
	}
	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "z", Value: zset, ExpireAt: -1},
	}}}}

	re := roundTrip(t, snap, Options{Checksum: true})
	d := findEntry(t, re, "z").Value.ZSet().Dict
	if v, _ := d.Get("pos"); !math.IsInf(v, 1) {
		t.Errorf("pos = %f", v)
	}
	if v, _ := d.Get("neg"); !math.IsInf(v, -1) {
		t.Errorf("neg = %f", v)
	}
	if v, _ := d.Get("half"); v != 0.5 {
		t.Errorf("half = %f", v)
	}
	if v, _ := d.Get("whole"); v != 3 {
		t.Errorf("whole = %f", v)
	}
}

// TestChecksumDetectsCorruption tests the CRC trailer
func TestChecksumDetectsCorruption(t *testing.T) {
	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "k", Value: object.NewStringFromBytes([]byte("value")), ExpireAt: -1},
	}}}}
	var buf bytes.Buffer
	if err := Save(&buf, snap, Options{Checksum: true}); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	data[15] ^= 0xFF

	_, err := Load(bytes.NewReader(data), true)
	if !errors.Is(err, ErrChecksum) {
		t.Errorf("Load on a corrupted file = %v, want ErrChecksum", err)
	}

	// with verification off the damaged payload is accepted
	if _, err := Load(bytes.NewReader(data), false); errors.Is(err, ErrChecksum) {
		t.Error("Load reported a checksum error with verification off")
	}
}

// TestZeroTrailerAccepted tests files written without checksumming
func TestZeroTrailerAccepted(t *testing.T) {
	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "k", Value: object.NewStringFromBytes([]byte("v")), ExpireAt: -1},
	}}}}
	var buf bytes.Buffer
	if err := Save(&buf, snap, Options{Checksum: false}); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(&buf, true); err != nil {
		t.Errorf("Load rejected a zero trailer: %v", err)
	}
}

// TestBadHeader tests signature and version rejection
func TestBadHeader(t *testing.T) {
	if _, err := Load(strings.NewReader("GARBAGE12"), true); !errors.Is(err, ErrBadMagic) {
		t.Errorf("bad signature = %v, want ErrBadMagic", err)
	}
	if _, err := Load(strings.NewReader("REDIS9999"), true); !errors.Is(err, ErrVersion) {
		t.Errorf("future version = %v, want ErrVersion", err)
	}
	if _, err := Load(strings.NewReader("REDIS00xy"), true); !errors.Is(err, ErrBadMagic) {
		t.Errorf("garbled version = %v, want ErrBadMagic", err)
	}
}

// TestTruncatedFile tests that a cut-off stream fails cleanly
func TestTruncatedFile(t *testing.T) {
	snap := &Snapshot{DBs: []DBDump{{Index: 0, Entries: []Entry{
		{Key: "key", Value: object.NewStringFromBytes([]byte("some value here")), ExpireAt: -1},
	}}}}
	var buf bytes.Buffer
	if err := Save(&buf, snap, Options{Checksum: true}); err != nil {
		t.Fatal(err)
	}

	cut := buf.Bytes()[:buf.Len()/2]
	if _, err := Load(bytes.NewReader(cut), true); err == nil {
		t.Error("Load accepted a truncated file")
	}
}
