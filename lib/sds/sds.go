package sds

import (
	"bytes"
	"fmt"
	"strconv"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// MaxPrealloc is the ceiling for the doubling growth policy. Buffers
	// larger than this grow by MaxPrealloc bytes per reallocation.
	MaxPrealloc = 1024 * 1024
)

// --------------------------------------------------------------------------
// Core type
// --------------------------------------------------------------------------

// S is a dynamic byte string. The slice length is the string length and the
// slice capacity is the allocated size, so Avail() bytes can be appended
// without reallocating. The zero value is an empty string.
//
// Thread-safety: an S is not safe for concurrent mutation.
type S []byte

// New creates a string from the given bytes. The input is copied.
func New(b []byte) S {
	s := make(S, len(b))
	copy(s, b)
	return s
}

// NewString creates a string from a Go string.
func NewString(str string) S {
	return S(str)
}

// NewLen creates a string of the given length with unspecified content.
// It is used by readers that fill the buffer afterwards.
func NewLen(length int) S {
	return make(S, length)
}

// Empty returns a new empty string.
func Empty() S {
	return S{}
}

// FromInt64 creates a string holding the decimal representation of v.
func FromInt64(v int64) S {
	return S(strconv.AppendInt(nil, v, 10))
}

// Dup returns an independent copy of s.
func Dup(s S) S {
	d := make(S, len(s), cap(s))
	copy(d, s)
	return d
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Len returns the length in bytes.
func Len(s S) int { return len(s) }

// Avail returns the number of bytes that can be appended without growing.
func Avail(s S) int { return cap(s) - len(s) }

// AllocSize returns the total allocated size in bytes.
func AllocSize(s S) int { return cap(s) }

// String returns the content as a Go string. The content is copied.
func (s S) String() string { return string(s) }

// --------------------------------------------------------------------------
// Growth
// --------------------------------------------------------------------------

// MakeRoomFor grows the allocation so that at least addlen bytes can be
// appended without further reallocation. The length is unchanged.
func MakeRoomFor(s S, addlen int) S {
	if Avail(s) >= addlen {
		return s
	}
	newlen := len(s) + addlen
	if newlen < MaxPrealloc {
		newlen *= 2
	} else {
		newlen += MaxPrealloc
	}
	grown := make(S, len(s), newlen)
	copy(grown, s)
	return grown
}

// RemoveFreeSpace reallocates s so that no trailing free space is kept.
func RemoveFreeSpace(s S) S {
	if Avail(s) == 0 {
		return s
	}
	exact := make(S, len(s))
	copy(exact, s)
	return exact
}

// GrowZero grows the string to the given length, padding with zero bytes.
// If length is smaller than the current length, nothing happens.
func GrowZero(s S, length int) S {
	if length <= len(s) {
		return s
	}
	s = MakeRoomFor(s, length-len(s))
	pad := s[len(s):length]
	for i := range pad {
		pad[i] = 0
	}
	return s[:length]
}

// --------------------------------------------------------------------------
// Mutation
// --------------------------------------------------------------------------

// Cat appends the given bytes to s and returns the new handle.
func Cat(s S, b []byte) S {
	s = MakeRoomFor(s, len(b))
	n := len(s)
	s = s[:n+len(b)]
	copy(s[n:], b)
	return s
}

// CatString appends a Go string.
func CatString(s S, str string) S {
	return Cat(s, []byte(str))
}

// CatS appends another dynamic string.
func CatS(s, t S) S {
	return Cat(s, t)
}

// CatPrintf appends printf-style formatted output to s.
func CatPrintf(s S, format string, args ...interface{}) S {
	return Cat(s, []byte(fmt.Sprintf(format, args...)))
}

// Copy replaces the content of s with the given bytes.
func Copy(s S, b []byte) S {
	s = s[:0]
	return Cat(s, b)
}

// Clear truncates s to the empty string, keeping the allocation.
func Clear(s S) S {
	return s[:0]
}

// Trim removes from both ends of s every byte that appears in cset.
func Trim(s S, cset string) S {
	start, end := 0, len(s)
	for start < end && bytes.IndexByte([]byte(cset), s[start]) >= 0 {
		start++
	}
	for end > start && bytes.IndexByte([]byte(cset), s[end-1]) >= 0 {
		end--
	}
	n := copy(s, s[start:end])
	return s[:n]
}

// Range trims s in place to the substring selected by the inclusive index
// range [start, end]. Negative indices count from the end of the string, so
// Range(s, -1, -1) keeps only the last byte. An empty selection yields the
// empty string.
func Range(s S, start, end int) S {
	n := len(s)
	if n == 0 {
		return s
	}
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end = n + end
		if end < 0 {
			end = 0
		}
	}
	if start > end || start >= n {
		return s[:0]
	}
	if end >= n {
		end = n - 1
	}
	m := copy(s, s[start:end+1])
	return s[:m]
}

// ToLower folds every ASCII upper-case byte in place.
func ToLower(s S) {
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			s[i] = c + ('a' - 'A')
		}
	}
}

// ToUpper folds every ASCII lower-case byte in place.
func ToUpper(s S) {
	for i, c := range s {
		if c >= 'a' && c <= 'z' {
			s[i] = c - ('a' - 'A')
		}
	}
}

// --------------------------------------------------------------------------
// Comparison
// --------------------------------------------------------------------------

// Compare compares two strings as opaque byte sequences. The return value is
// negative, zero or positive as in bytes.Compare. When one string is a prefix
// of the other, the shorter string is considered smaller.
func Compare(a, b S) int {
	return bytes.Compare(a, b)
}

// Equal reports whether a and b hold the same bytes.
func Equal(a, b S) bool {
	return bytes.Equal(a, b)
}

// --------------------------------------------------------------------------
// Splitting and joining
// --------------------------------------------------------------------------

// SplitLen splits s by the given multi-byte separator. An empty separator or
// empty input yields nil.
func SplitLen(s S, sep []byte) []S {
	if len(s) == 0 || len(sep) == 0 {
		return nil
	}
	var tokens []S
	start := 0
	for start <= len(s)-len(sep) {
		idx := bytes.Index(s[start:], sep)
		if idx < 0 {
			break
		}
		tokens = append(tokens, New(s[start:start+idx]))
		start += idx + len(sep)
	}
	tokens = append(tokens, New(s[start:]))
	return tokens
}

// Join concatenates the given strings with the separator between them.
func Join(tokens []S, sep []byte) S {
	out := Empty()
	for i, tok := range tokens {
		if i > 0 {
			out = Cat(out, sep)
		}
		out = CatS(out, tok)
	}
	return out
}

// --------------------------------------------------------------------------
// Tokenizer
// --------------------------------------------------------------------------

// SplitArgs parses a line into tokens following shell-like rules: tokens are
// separated by whitespace, double quotes support \xNN hex escapes and the
// usual backslash escapes, single quotes are literal except for \'.
// On a parse error (unbalanced quotes, trailing garbage after a closing
// quote) the tokens built so far are discarded and nil, false is returned.
func SplitArgs(line string) ([]S, bool) {
	var tokens []S
	i := 0
	for {
		// skip separating whitespace
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			return tokens, true
		}
		var (
			current = Empty()
			inq     = false // double quotes
			insq    = false // single quotes
			done    = false
			failed  = false
		)
		for !done {
			if i >= len(line) {
				if inq || insq {
					failed = true
				}
				done = true
				break
			}
			c := line[i]
			switch {
			case inq:
				if c == '\\' && i+3 < len(line) && line[i+1] == 'x' &&
					isHexDigit(line[i+2]) && isHexDigit(line[i+3]) {
					current = Cat(current, []byte{hexDigitToInt(line[i+2])*16 + hexDigitToInt(line[i+3])})
					i += 3
				} else if c == '\\' && i+1 < len(line) {
					i++
					var b byte
					switch line[i] {
					case 'n':
						b = '\n'
					case 'r':
						b = '\r'
					case 't':
						b = '\t'
					case 'b':
						b = '\b'
					case 'a':
						b = '\a'
					default:
						b = line[i]
					}
					current = Cat(current, []byte{b})
				} else if c == '"' {
					// closing quote must be followed by a separator
					if i+1 < len(line) && !isSpace(line[i+1]) {
						failed = true
						done = true
						break
					}
					inq = false
					done = true
				} else {
					current = Cat(current, []byte{c})
				}
			case insq:
				if c == '\\' && i+1 < len(line) && line[i+1] == '\'' {
					i++
					current = Cat(current, []byte{'\''})
				} else if c == '\'' {
					if i+1 < len(line) && !isSpace(line[i+1]) {
						failed = true
						done = true
						break
					}
					insq = false
					done = true
				} else {
					current = Cat(current, []byte{c})
				}
			default:
				switch c {
				case ' ', '\n', '\r', '\t', 0:
					done = true
				case '"':
					inq = true
				case '\'':
					insq = true
				default:
					current = Cat(current, []byte{c})
				}
			}
			if !done {
				i++
			}
		}
		if failed {
			// release only the tokens built so far
			tokens = nil
			return nil, false
		}
		if done && i < len(line) && (line[i] == '"' || line[i] == '\'') {
			i++
		}
		tokens = append(tokens, current)
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexDigitToInt(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
