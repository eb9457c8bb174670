package db

import (
	"errors"
	"math"
	"testing"

	"github.com/cedarkv/cedar/lib/config"
)

// zaddAll stores member/score pairs one by one.
func zaddAll(t *testing.T, db *DB, key string, entries ...ZEntry) {
	t.Helper()
	for _, e := range entries {
		if _, err := db.ZAdd(key, e); err != nil {
			t.Fatalf("ZAdd(%q, %q): %v", key, e.Member, err)
		}
	}
}

// zmembers projects a range result onto its member strings.
func zmembers(entries []ZEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Member)
	}
	return out
}

// TestZAdd tests insertion and score updates
func TestZAdd(t *testing.T) {
	db := testDB(t)

	n, err := db.ZAdd("z",
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2})
	if err != nil || n != 2 {
		t.Fatalf("ZAdd = %d, %v", n, err)
	}

	// updating a score adds nothing
	n, err = db.ZAdd("z",
		ZEntry{Member: []byte("a"), Score: 5},
		ZEntry{Member: []byte("c"), Score: 3})
	if err != nil || n != 1 {
		t.Errorf("ZAdd update = %d, %v", n, err)
	}
	if s, ok, _ := db.ZScore("z", []byte("a")); !ok || s != 5 {
		t.Errorf("score after update = %f, %v", s, ok)
	}
	if n, _ := db.ZCard("z"); n != 3 {
		t.Errorf("ZCard = %d", n)
	}

	if _, err := db.ZAdd("z", ZEntry{Member: []byte("x"), Score: math.NaN()}); !errors.Is(err, ErrNaN) {
		t.Errorf("ZAdd NaN = %v", err)
	}
	if _, ok, _ := db.ZScore("z", []byte("x")); ok {
		t.Error("rejected entry was stored")
	}

	db.Set("str", []byte("x"))
	if _, err := db.ZAdd("str", ZEntry{Member: []byte("a"), Score: 1}); !errors.Is(err, ErrWrongType) {
		t.Errorf("ZAdd on a string = %v", err)
	}
}

// TestZScoreZCard tests the point queries
func TestZScoreZCard(t *testing.T) {
	db := testDB(t)
	zaddAll(t, db, "z", ZEntry{Member: []byte("a"), Score: 1.5})

	if s, ok, err := db.ZScore("z", []byte("a")); err != nil || !ok || s != 1.5 {
		t.Errorf("ZScore = %f, %v, %v", s, ok, err)
	}
	if _, ok, _ := db.ZScore("z", []byte("nope")); ok {
		t.Error("ZScore found a missing member")
	}
	if _, ok, err := db.ZScore("missing", []byte("a")); ok || err != nil {
		t.Errorf("ZScore on missing key = %v, %v", ok, err)
	}
	if n, err := db.ZCard("missing"); n != 0 || err != nil {
		t.Errorf("ZCard on missing key = %d, %v", n, err)
	}
}

// TestZIncrBy tests the score arithmetic
func TestZIncrBy(t *testing.T) {
	db := testDB(t)

	if s, err := db.ZIncrBy("z", []byte("m"), 2.5); err != nil || s != 2.5 {
		t.Errorf("ZIncrBy on missing member = %f, %v", s, err)
	}
	if s, err := db.ZIncrBy("z", []byte("m"), -1); err != nil || s != 1.5 {
		t.Errorf("ZIncrBy = %f, %v", s, err)
	}

	db.ZIncrBy("z", []byte("inf"), math.Inf(1))
	if _, err := db.ZIncrBy("z", []byte("inf"), math.Inf(-1)); !errors.Is(err, ErrNaN) {
		t.Errorf("ZIncrBy to NaN = %v", err)
	}
}

// TestZRem tests member removal and key cleanup
func TestZRem(t *testing.T) {
	db := testDB(t)
	zaddAll(t, db, "z",
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2})

	if n, err := db.ZRem("z", []byte("a"), []byte("nope")); err != nil || n != 1 {
		t.Errorf("ZRem = %d, %v", n, err)
	}
	db.ZRem("z", []byte("b"))
	if db.Exists("z") {
		t.Error("empty sorted set key survived")
	}
	if n, err := db.ZRem("missing", []byte("x")); n != 0 || err != nil {
		t.Errorf("ZRem on missing key = %d, %v", n, err)
	}
}

// TestZRanks tests both rank directions
func TestZRanks(t *testing.T) {
	db := testDB(t)
	zaddAll(t, db, "z",
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2},
		ZEntry{Member: []byte("c"), Score: 3})

	if r, ok, err := db.ZRank("z", []byte("a")); err != nil || !ok || r != 0 {
		t.Errorf("ZRank(a) = %d, %v, %v", r, ok, err)
	}
	if r, _, _ := db.ZRank("z", []byte("c")); r != 2 {
		t.Errorf("ZRank(c) = %d", r)
	}
	if r, ok, _ := db.ZRevRank("z", []byte("c")); !ok || r != 0 {
		t.Errorf("ZRevRank(c) = %d, %v", r, ok)
	}
	if r, _, _ := db.ZRevRank("z", []byte("a")); r != 2 {
		t.Errorf("ZRevRank(a) = %d", r)
	}
	if _, ok, _ := db.ZRank("z", []byte("nope")); ok {
		t.Error("ZRank found a missing member")
	}
}

// TestZRange tests rank range reads in both orders
func TestZRange(t *testing.T) {
	db := testDB(t)
	zaddAll(t, db, "z",
		ZEntry{Member: []byte("c"), Score: 3},
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2})

	entries, err := db.ZRange("z", 0, -1, false)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if got := zmembers(entries); !equalStrings(got, []string{"a", "b", "c"}) {
		t.Errorf("ZRange = %v", got)
	}
	if entries[0].Score != 1 || entries[2].Score != 3 {
		t.Errorf("scores = %v", entries)
	}

	rev, _ := db.ZRange("z", 0, -1, true)
	if got := zmembers(rev); !equalStrings(got, []string{"c", "b", "a"}) {
		t.Errorf("reverse ZRange = %v", got)
	}

	mid, _ := db.ZRange("z", 1, 1, false)
	if got := zmembers(mid); !equalStrings(got, []string{"b"}) {
		t.Errorf("ZRange(1, 1) = %v", got)
	}
	if out, _ := db.ZRange("z", 5, 10, false); out != nil {
		t.Errorf("out of range ZRange = %v", out)
	}

	// equal scores order by member bytes
	zaddAll(t, db, "ties",
		ZEntry{Member: []byte("bb"), Score: 1},
		ZEntry{Member: []byte("aa"), Score: 1},
		ZEntry{Member: []byte("cc"), Score: 1})
	tied, _ := db.ZRange("ties", 0, -1, false)
	if got := zmembers(tied); !equalStrings(got, []string{"aa", "bb", "cc"}) {
		t.Errorf("tie order = %v", got)
	}
}

// TestZRangeByScore tests score interval reads
func TestZRangeByScore(t *testing.T) {
	db := testDB(t)
	zaddAll(t, db, "z",
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2},
		ZEntry{Member: []byte("c"), Score: 3},
		ZEntry{Member: []byte("d"), Score: 4})

	got, err := db.ZRangeByScore("z", &ZRangeSpec{Min: 2, Max: 3}, false)
	if err != nil {
		t.Fatalf("ZRangeByScore: %v", err)
	}
	if m := zmembers(got); !equalStrings(m, []string{"b", "c"}) {
		t.Errorf("inclusive range = %v", m)
	}

	excl, _ := db.ZRangeByScore("z", &ZRangeSpec{Min: 2, Max: 3, MinEx: true, MaxEx: true}, false)
	if len(excl) != 0 {
		t.Errorf("exclusive range = %v", zmembers(excl))
	}

	all, _ := db.ZRangeByScore("z",
		&ZRangeSpec{Min: math.Inf(-1), Max: math.Inf(1)}, true)
	if m := zmembers(all); !equalStrings(m, []string{"d", "c", "b", "a"}) {
		t.Errorf("reverse full range = %v", m)
	}

	if n, _ := db.ZCount("z", &ZRangeSpec{Min: 1, Max: 2}); n != 2 {
		t.Errorf("ZCount = %d", n)
	}
}

// TestZRemRangeByScore tests score interval deletion
func TestZRemRangeByScore(t *testing.T) {
	db := testDB(t)
	zaddAll(t, db, "z",
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2},
		ZEntry{Member: []byte("c"), Score: 3})

	if n, err := db.ZRemRangeByScore("z", &ZRangeSpec{Min: 1, Max: 2}); err != nil || n != 2 {
		t.Fatalf("ZRemRangeByScore = %d, %v", n, err)
	}
	left, _ := db.ZRange("z", 0, -1, false)
	if got := zmembers(left); !equalStrings(got, []string{"c"}) {
		t.Errorf("remaining = %v", got)
	}

	db.ZRemRangeByScore("z", &ZRangeSpec{Min: math.Inf(-1), Max: math.Inf(1)})
	if db.Exists("z") {
		t.Error("emptied key survived")
	}
}

// TestZRemRangeByRank tests rank interval deletion
func TestZRemRangeByRank(t *testing.T) {
	db := testDB(t)
	zaddAll(t, db, "z",
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2},
		ZEntry{Member: []byte("c"), Score: 3},
		ZEntry{Member: []byte("d"), Score: 4})

	if n, err := db.ZRemRangeByRank("z", 1, 2); err != nil || n != 2 {
		t.Fatalf("ZRemRangeByRank = %d, %v", n, err)
	}
	left, _ := db.ZRange("z", 0, -1, false)
	if got := zmembers(left); !equalStrings(got, []string{"a", "d"}) {
		t.Errorf("remaining = %v", got)
	}

	// negative indices select from the top
	if n, _ := db.ZRemRangeByRank("z", -1, -1); n != 1 {
		t.Error("negative rank removal failed")
	}
	left, _ = db.ZRange("z", 0, -1, false)
	if got := zmembers(left); !equalStrings(got, []string{"a"}) {
		t.Errorf("remaining = %v", got)
	}

	if n, _ := db.ZRemRangeByRank("z", 5, 9); n != 0 {
		t.Errorf("out of range removal = %d", n)
	}
}

// TestZSetEncodingPromotion tests the switch to the skiplist encoding
func TestZSetEncodingPromotion(t *testing.T) {
	s := testServer(func(c *config.Config) {
		c.ZSetMaxZiplistEntries = 3
		c.ZSetMaxZiplistValue = 8
	})
	db, _ := s.Select(0)

	zaddAll(t, db, "bycount",
		ZEntry{Member: []byte("a"), Score: 1},
		ZEntry{Member: []byte("b"), Score: 2},
		ZEntry{Member: []byte("c"), Score: 3})
	if enc, _ := db.ObjectEncoding("bycount"); enc != "ziplist" {
		t.Fatalf("encoding at the limit = %q", enc)
	}
	zaddAll(t, db, "bycount", ZEntry{Member: []byte("d"), Score: 4})
	if enc, _ := db.ObjectEncoding("bycount"); enc != "skiplist" {
		t.Errorf("encoding past the entry limit = %q", enc)
	}
	all, _ := db.ZRange("bycount", 0, -1, false)
	if got := zmembers(all); !equalStrings(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("content after promotion = %v", got)
	}
	if s, ok, _ := db.ZScore("bycount", []byte("b")); !ok || s != 2 {
		t.Errorf("score after promotion = %f, %v", s, ok)
	}

	zaddAll(t, db, "bysize", ZEntry{Member: []byte("a member past limit"), Score: 1})
	if enc, _ := db.ObjectEncoding("bysize"); enc != "skiplist" {
		t.Errorf("encoding past the member limit = %q", enc)
	}

	// updates keep working after the promotion
	zaddAll(t, db, "bycount", ZEntry{Member: []byte("a"), Score: 10})
	if r, _, _ := db.ZRank("bycount", []byte("a")); r != 3 {
		t.Errorf("rank after skiplist update = %d", r)
	}
}
