package ziplist

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"
)

// entryString decodes the entry at p as a string regardless of its storage
// format.
func entryString(t *testing.T, zl Ziplist, p int) string {
	t.Helper()
	b, v, isStr := zl.Get(p)
	if isStr {
		return string(b)
	}
	return strconv.FormatInt(v, 10)
}

// collect returns all entries as strings.
func collect(t *testing.T, zl Ziplist) []string {
	t.Helper()
	var out []string
	for p := zl.Index(0); p != -1; p = zl.Next(p) {
		out = append(out, entryString(t, zl, p))
	}
	return out
}

// TestNewIsEmpty tests the empty list
func TestNewIsEmpty(t *testing.T) {
	zl := New()
	if zl.Len() != 0 {
		t.Errorf("Len = %d, want 0", zl.Len())
	}
	if zl.Index(0) != -1 {
		t.Error("Index(0) on empty list should be -1")
	}
	if zl.Index(-1) != -1 {
		t.Error("Index(-1) on empty list should be -1")
	}
}

// TestPushTailAndIterate tests appending and forward traversal
func TestPushTailAndIterate(t *testing.T) {
	zl := New()
	want := []string{"one", "two", "three"}
	for _, s := range want {
		zl = zl.Push([]byte(s), Tail)
	}

	if zl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", zl.Len())
	}
	got := collect(t, zl)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestPushHead tests prepending
func TestPushHead(t *testing.T) {
	zl := New()
	zl = zl.Push([]byte("b"), Tail)
	zl = zl.Push([]byte("a"), Head)
	zl = zl.Push([]byte("c"), Tail)

	got := collect(t, zl)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestIntegerEncoding tests that decimal strings are stored as integers and
// decode back to the same value
func TestIntegerEncoding(t *testing.T) {
	values := []string{
		"0", "1", "12", "13", "127", "-128", // immediates and int8
		"32767", "-32768", // int16
		"8388607", "-8388608", // int24
		"2147483647", "-2147483648", // int32
		"9223372036854775807", "-9223372036854775808", // int64
	}
	zl := New()
	for _, v := range values {
		zl = zl.Push([]byte(v), Tail)
	}

	p := zl.Index(0)
	for i, want := range values {
		b, v, isStr := zl.Get(p)
		if isStr {
			t.Errorf("value %q stored as string %q", want, b)
		} else if strconv.FormatInt(v, 10) != want {
			t.Errorf("entry %d = %d, want %s", i, v, want)
		}
		p = zl.Next(p)
	}
}

// TestNonIntegerStaysString tests that lookalike values stay strings
func TestNonIntegerStaysString(t *testing.T) {
	zl := New()
	for _, v := range []string{"007", "+1", "1.5", "", "99999999999999999999"} {
		zl = zl.Push([]byte(v), Tail)
	}
	for p := zl.Index(0); p != -1; p = zl.Next(p) {
		if _, _, isStr := zl.Get(p); !isStr {
			t.Errorf("entry at %d stored as integer", p)
		}
	}
}

// TestIndexNegative tests tail-relative indexing
func TestIndexNegative(t *testing.T) {
	zl := New()
	for i := 0; i < 5; i++ {
		zl = zl.Push([]byte(fmt.Sprintf("e%d", i)), Tail)
	}

	if got := entryString(t, zl, zl.Index(-1)); got != "e4" {
		t.Errorf("Index(-1) = %q, want e4", got)
	}
	if got := entryString(t, zl, zl.Index(-5)); got != "e0" {
		t.Errorf("Index(-5) = %q, want e0", got)
	}
	if zl.Index(-6) != -1 {
		t.Error("Index(-6) should be -1")
	}
	if zl.Index(5) != -1 {
		t.Error("Index(5) should be -1")
	}
}

// TestPrev tests backward traversal
func TestPrev(t *testing.T) {
	zl := New()
	for i := 0; i < 4; i++ {
		zl = zl.Push([]byte(fmt.Sprintf("e%d", i)), Tail)
	}

	var got []string
	for p := zl.Index(-1); p != -1; p = zl.Prev(p) {
		got = append(got, entryString(t, zl, p))
	}
	want := []string{"e3", "e2", "e1", "e0"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("backward entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestInsertMiddle tests insertion before an interior entry
func TestInsertMiddle(t *testing.T) {
	zl := New()
	zl = zl.Push([]byte("a"), Tail)
	zl = zl.Push([]byte("c"), Tail)

	p := zl.Index(1)
	zl = zl.Insert(p, []byte("b"))

	got := collect(t, zl)
	want := []string{"a", "b", "c"}
	if len(got) != 3 {
		t.Fatalf("Len = %d, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestDelete tests single entry removal and the replacement offset
func TestDelete(t *testing.T) {
	zl := New()
	for _, s := range []string{"a", "b", "c"} {
		zl = zl.Push([]byte(s), Tail)
	}

	p := zl.Index(1)
	zl, p = zl.Delete(p)
	if got := entryString(t, zl, p); got != "c" {
		t.Errorf("replacement entry = %q, want c", got)
	}

	// deleting the last entry yields -1
	zl, p = zl.Delete(p)
	if p != -1 {
		t.Errorf("deleting the tail returned offset %d, want -1", p)
	}
	if zl.Len() != 1 {
		t.Errorf("Len = %d, want 1", zl.Len())
	}
	if got := entryString(t, zl, zl.Index(0)); got != "a" {
		t.Errorf("remaining entry = %q, want a", got)
	}
}

// TestDeleteRange tests bulk removal
func TestDeleteRange(t *testing.T) {
	zl := New()
	for i := 0; i < 6; i++ {
		zl = zl.Push([]byte(fmt.Sprintf("e%d", i)), Tail)
	}

	zl = zl.DeleteRange(1, 3)
	got := collect(t, zl)
	want := []string{"e0", "e4", "e5"}
	if len(got) != len(want) {
		t.Fatalf("Len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}

	// deleting past the end clamps
	zl = zl.DeleteRange(1, 100)
	if zl.Len() != 1 {
		t.Errorf("Len = %d, want 1", zl.Len())
	}
}

// TestFind tests the search with skip stride
func TestFind(t *testing.T) {
	zl := New()
	for _, s := range []string{"f1", "v1", "f2", "v2", "f3", "100"} {
		zl = zl.Push([]byte(s), Tail)
	}

	p := zl.Find(zl.Index(0), []byte("f2"), 1)
	if got := entryString(t, zl, p); got != "f2" {
		t.Errorf("Find(f2) landed on %q", got)
	}

	// with skip 1, values at odd positions are never inspected
	if zl.Find(zl.Index(0), []byte("v2"), 1) != -1 {
		t.Error("Find with skip 1 matched a skipped position")
	}

	// integer targets match integer encoded entries
	p = zl.Find(zl.Index(0), []byte("100"), 0)
	if p == -1 {
		t.Fatal("Find(100) found nothing")
	}
	if _, v, isStr := zl.Get(p); isStr || v != 100 {
		t.Error("Find(100) did not land on the integer entry")
	}

	if zl.Find(zl.Index(0), []byte("missing"), 0) != -1 {
		t.Error("Find matched a missing entry")
	}
}

// TestLongStrings tests entries that need wide length headers
func TestLongStrings(t *testing.T) {
	long := bytes.Repeat([]byte("x"), 100)
	huge := bytes.Repeat([]byte("y"), 20000)

	zl := New()
	zl = zl.Push([]byte("short"), Tail)
	zl = zl.Push(long, Tail)
	zl = zl.Push(huge, Tail)

	b, _, isStr := zl.Get(zl.Index(1))
	if !isStr || !bytes.Equal(b, long) {
		t.Error("100 byte entry corrupted")
	}
	b, _, isStr = zl.Get(zl.Index(2))
	if !isStr || !bytes.Equal(b, huge) {
		t.Error("20000 byte entry corrupted")
	}

	// traversal across the large prevlen field
	if got := entryString(t, zl, zl.Prev(zl.Index(2))); !bytes.Equal([]byte(got), long) {
		t.Error("Prev across large entry corrupted")
	}
}

// TestCascadeUpdate tests the prevlen ripple when an insert grows a
// following entry's header
func TestCascadeUpdate(t *testing.T) {
	// entries of exactly 250 bytes keep their prevlen field at one byte;
	// inserting a 254+ byte entry in front forces the next header to grow
	mid := bytes.Repeat([]byte("a"), 250)
	zl := New()
	for i := 0; i < 4; i++ {
		zl = zl.Push(mid, Tail)
	}

	big := bytes.Repeat([]byte("b"), 300)
	zl = zl.Push(big, Head)

	want := 5
	if zl.Len() != want {
		t.Fatalf("Len = %d, want %d", zl.Len(), want)
	}
	got := collect(t, zl)
	if !bytes.Equal([]byte(got[0]), big) {
		t.Error("head entry corrupted after cascade")
	}
	for i := 1; i < want; i++ {
		if !bytes.Equal([]byte(got[i]), mid) {
			t.Errorf("entry %d corrupted after cascade", i)
		}
	}

	// and backwards
	var back []string
	for p := zl.Index(-1); p != -1; p = zl.Prev(p) {
		back = append(back, entryString(t, zl, p))
	}
	if len(back) != want {
		t.Errorf("backward traversal found %d entries, want %d", len(back), want)
	}
}

// TestBlobRoundTrip tests that a serialized ziplist can be reattached
func TestBlobRoundTrip(t *testing.T) {
	zl := New()
	for _, s := range []string{"a", "12345", "hello world"} {
		zl = zl.Push([]byte(s), Tail)
	}

	blob := make([]byte, zl.BlobLen())
	copy(blob, zl)

	re := FromBlob(blob)
	if re.Len() != 3 {
		t.Fatalf("reattached Len = %d, want 3", re.Len())
	}
	got := collect(t, re)
	want := []string{"a", "12345", "hello world"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}
