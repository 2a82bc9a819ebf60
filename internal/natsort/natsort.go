// Package natsort orders filenames so that embedded numbers compare by value
// ("tile_2" before "tile_10") and text compares case-insensitively.
package natsort

import (
	"sort"
	"strings"
)

// Segment is one element of a sort key. Keys alternate text and number
// segments, always starting with text (possibly empty), so two keys hold the
// same kind of segment at every shared position.
type Segment struct {
	Text    string
	Digits  string // decimal digits with leading zeros removed; "0" for zero
	Numeric bool
}

// Key is the derived comparison key of a filename.
type Key []Segment

// KeyOf splits name on maximal runs of ASCII digits. Digit runs become numeric
// segments, everything between them becomes lowercased text segments.
func KeyOf(name string) Key {
	key := make(Key, 0, 4)
	start := 0
	inDigits := false

	flush := func(end int) {
		part := name[start:end]
		if inDigits {
			key = append(key, Segment{Digits: trimZeros(part), Numeric: true})
		} else {
			key = append(key, Segment{Text: strings.ToLower(part)})
		}
	}

	for i := 0; i < len(name); i++ {
		digit := isDigit(name[i])
		if digit == inDigits {
			continue
		}
		flush(i)
		start = i
		inDigits = digit
	}
	flush(len(name))

	// Trailing number: close with an empty text segment to keep the
	// text/number alternation stable.
	if inDigits {
		key = append(key, Segment{})
	}
	return key
}

// Compare returns -1, 0 or +1. Segments are compared pairwise; when one key is
// a prefix of the other the shorter key sorts first.
func (k Key) Compare(other Key) int {
	n := min(len(k), len(other))
	for i := 0; i < n; i++ {
		if c := compareSegment(k[i], other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(other):
		return -1
	case len(k) > len(other):
		return 1
	}
	return 0
}

// Less reports whether a sorts before b in natural order. Names whose keys are
// equal ("a01" and "a1", "A.jpg" and "a.jpg") fall back to plain byte order so
// the ordering is total.
func Less(a, b string) bool {
	return compare(a, b, KeyOf(a), KeyOf(b)) < 0
}

// Sort sorts names in place in natural order.
func Sort(names []string) {
	keys := make(map[string]Key, len(names))
	for _, n := range names {
		keys[n] = KeyOf(n)
	}
	sort.SliceStable(names, func(i, j int) bool {
		a, b := names[i], names[j]
		return compare(a, b, keys[a], keys[b]) < 0
	})
}

// compare orders a and b by their keys ka and kb, then by raw bytes.
func compare(a, b string, ka, kb Key) int {
	if c := ka.Compare(kb); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func compareSegment(a, b Segment) int {
	// Kinds never differ at a shared position, but keep the order total anyway:
	// numbers before text, matching byte order of '0'-'9' against letters.
	if a.Numeric != b.Numeric {
		if a.Numeric {
			return -1
		}
		return 1
	}
	if a.Numeric {
		if len(a.Digits) != len(b.Digits) {
			if len(a.Digits) < len(b.Digits) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Digits, b.Digits)
	}
	return strings.Compare(a.Text, b.Text)
}

func trimZeros(digits string) string {
	t := strings.TrimLeft(digits, "0")
	if t == "" {
		return "0"
	}
	return t
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
