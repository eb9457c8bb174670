package sds

import (
	"bytes"
	"testing"
)

// TestNewAndLen tests basic construction
func TestNewAndLen(t *testing.T) {
	s := New([]byte("hello"))
	if Len(s) != 5 {
		t.Errorf("Len = %d, want 5", Len(s))
	}
	if s.String() != "hello" {
		t.Errorf("String = %q, want %q", s.String(), "hello")
	}

	e := Empty()
	if Len(e) != 0 {
		t.Errorf("empty string has length %d", Len(e))
	}
}

// TestFromInt64 tests the integer constructor
func TestFromInt64(t *testing.T) {
	for _, tc := range []struct {
		v    int64
		want string
	}{
		{0, "0"},
		{-1, "-1"},
		{9223372036854775807, "9223372036854775807"},
		{-9223372036854775808, "-9223372036854775808"},
	} {
		if got := FromInt64(tc.v).String(); got != tc.want {
			t.Errorf("FromInt64(%d) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

// TestMakeRoomFor tests the preallocation growth policy
func TestMakeRoomFor(t *testing.T) {
	s := New([]byte("abc"))
	s = MakeRoomFor(s, 10)

	if Len(s) != 3 {
		t.Errorf("MakeRoomFor changed the length to %d", Len(s))
	}
	if Avail(s) < 10 {
		t.Errorf("Avail = %d, want at least 10", Avail(s))
	}

	// small strings double their required size
	if AllocSize(s) < 2*(3+10) {
		t.Errorf("AllocSize = %d, want at least %d", AllocSize(s), 2*(3+10))
	}
}

// TestMakeRoomForLarge tests that large strings grow linearly
func TestMakeRoomForLarge(t *testing.T) {
	s := NewLen(2 * 1024 * 1024)
	s = MakeRoomFor(s, 100)
	if AllocSize(s) >= 2*(2*1024*1024+100) {
		t.Errorf("large string doubled its allocation: %d", AllocSize(s))
	}
	if Avail(s) < 100 {
		t.Errorf("Avail = %d, want at least 100", Avail(s))
	}
}

// TestCat tests concatenation
func TestCat(t *testing.T) {
	s := Empty()
	s = Cat(s, []byte("foo"))
	s = CatString(s, "bar")
	s = CatS(s, New([]byte("baz")))
	if s.String() != "foobarbaz" {
		t.Errorf("Cat chain = %q", s.String())
	}

	s = CatPrintf(s, "-%d", 42)
	if s.String() != "foobarbaz-42" {
		t.Errorf("CatPrintf = %q", s.String())
	}
}

// TestCopyAndClear tests content replacement
func TestCopyAndClear(t *testing.T) {
	s := New([]byte("old content"))
	s = Copy(s, []byte("new"))
	if s.String() != "new" {
		t.Errorf("Copy = %q", s.String())
	}

	s = Clear(s)
	if Len(s) != 0 {
		t.Errorf("Clear left length %d", Len(s))
	}
}

// TestGrowZero tests zero padding
func TestGrowZero(t *testing.T) {
	s := New([]byte("ab"))
	s = GrowZero(s, 5)
	if !bytes.Equal(s, []byte{'a', 'b', 0, 0, 0}) {
		t.Errorf("GrowZero = %v", []byte(s))
	}

	// shrinking is a no-op
	s = GrowZero(s, 2)
	if Len(s) != 5 {
		t.Errorf("GrowZero shrank the string to %d", Len(s))
	}
}

// TestTrim tests trimming a character set from both ends
func TestTrim(t *testing.T) {
	for _, tc := range []struct {
		in, cset, want string
	}{
		{"  hello  ", " ", "hello"},
		{"xxhelloxx", "x", "hello"},
		{"xyxhello", "xy", "hello"},
		{"aaaa", "a", ""},
		{"hello", "x", "hello"},
	} {
		if got := Trim(New([]byte(tc.in)), tc.cset).String(); got != tc.want {
			t.Errorf("Trim(%q, %q) = %q, want %q", tc.in, tc.cset, got, tc.want)
		}
	}
}

// TestRange tests the substring operation with negative indices
func TestRange(t *testing.T) {
	for _, tc := range []struct {
		start, end int
		want       string
	}{
		{0, 4, "hello"},
		{0, -1, "hello"},
		{1, 3, "ell"},
		{-3, -1, "llo"},
		{0, 100, "hello"},
		{3, 1, ""},
		{-100, 0, "h"},
	} {
		got := Range(New([]byte("hello")), tc.start, tc.end).String()
		if got != tc.want {
			t.Errorf("Range(%d, %d) = %q, want %q", tc.start, tc.end, got, tc.want)
		}
	}
}

// TestCase tests in-place case conversion
func TestCase(t *testing.T) {
	s := New([]byte("Hello-123"))
	ToLower(s)
	if s.String() != "hello-123" {
		t.Errorf("ToLower = %q", s.String())
	}
	ToUpper(s)
	if s.String() != "HELLO-123" {
		t.Errorf("ToUpper = %q", s.String())
	}
}

// TestCompareEqual tests the ordering helpers
func TestCompareEqual(t *testing.T) {
	if Compare(New([]byte("a")), New([]byte("b"))) >= 0 {
		t.Error("a should sort before b")
	}
	if !Equal(New([]byte("same")), New([]byte("same"))) {
		t.Error("identical strings compare unequal")
	}
	if Equal(New([]byte("a")), New([]byte("ab"))) {
		t.Error("different strings compare equal")
	}
}

// TestSplitJoin tests tokenizing and joining
func TestSplitJoin(t *testing.T) {
	tokens := SplitLen(New([]byte("a,b,,c")), []byte(","))
	if len(tokens) != 4 {
		t.Fatalf("SplitLen returned %d tokens", len(tokens))
	}
	if tokens[2].String() != "" {
		t.Errorf("empty token lost: %q", tokens[2].String())
	}

	joined := Join(tokens, []byte(","))
	if joined.String() != "a,b,,c" {
		t.Errorf("Join = %q", joined.String())
	}
}

// TestSplitArgs tests the command line tokenizer
func TestSplitArgs(t *testing.T) {
	for _, tc := range []struct {
		line string
		want []string
		ok   bool
	}{
		{`set key value`, []string{"set", "key", "value"}, true},
		{`set "hello world" x`, []string{"set", "hello world", "x"}, true},
		{`get 'single quoted'`, []string{"get", "single quoted"}, true},
		{`echo "\x41\x42"`, []string{"echo", "AB"}, true},
		{`echo "a\nb"`, []string{"echo", "a\nb"}, true},
		{`echo 'it\'s'`, []string{"echo", "it's"}, true},
		{`echo 'a'x`, nil, false},
		{``, []string{}, true},
		{`unbalanced "quote`, nil, false},
		{`trailing'`, nil, false},
	} {
		args, ok := SplitArgs(tc.line)
		if ok != tc.ok {
			t.Errorf("SplitArgs(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if len(args) != len(tc.want) {
			t.Errorf("SplitArgs(%q) = %d tokens, want %d", tc.line, len(args), len(tc.want))
			continue
		}
		for i := range args {
			if args[i].String() != tc.want[i] {
				t.Errorf("SplitArgs(%q)[%d] = %q, want %q", tc.line, i, args[i].String(), tc.want[i])
			}
		}
	}
}
