package natsort

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name string
		want Key
	}{
		{
			name: "10.jpg",
			want: Key{{Text: ""}, {Digits: "10", Numeric: true}, {Text: ".jpg"}},
		},
		{
			name: "Tile_007.PNG",
			want: Key{{Text: "tile_"}, {Digits: "7", Numeric: true}, {Text: ".png"}},
		},
		{
			name: "a1",
			want: Key{{Text: "a"}, {Digits: "1", Numeric: true}, {Text: ""}},
		},
		{
			name: "note.txt",
			want: Key{{Text: "note.txt"}},
		},
		{
			name: "000",
			want: Key{{Text: ""}, {Digits: "0", Numeric: true}, {Text: ""}},
		},
		{
			name: "",
			want: Key{{Text: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyOf(tt.name))
		})
	}
}

func TestLessNumericValue(t *testing.T) {
	assert.True(t, Less("tile_2.x", "tile_10.x"))
	assert.False(t, Less("tile_10.x", "tile_2.x"))
	assert.True(t, Less("img9.png", "img10.png"))
	assert.True(t, Less("2.jpg", "10.jpg"))
}

func TestLessHugeNumbers(t *testing.T) {
	assert.True(t, Less("f99999999999999999999999.jpg", "f100000000000000000000000.jpg"))
}

func TestLessCaseInsensitive(t *testing.T) {
	assert.True(t, Less("apple.jpg", "Banana.jpg"))
	assert.True(t, Less("Apple.jpg", "banana.jpg"))
}

func TestLessShapeTieBreak(t *testing.T) {
	// prefix shapes: shorter first
	assert.True(t, Less("a1b", "a1b2"))
	assert.False(t, Less("a1b2", "a1b"))
	// equal keys fall back to byte order
	assert.True(t, Less("a01", "a1"))
	assert.True(t, Less("A.jpg", "a.jpg"))
	assert.False(t, Less("a.jpg", "a.jpg"))
}

func TestSort(t *testing.T) {
	names := []string{"tile_10.jpg", "a.png", "tile_2.jpg", "10.jpg", "2.jpg", "tile_1.jpg", "B.bmp"}

	Sort(names)

	assert.Equal(t, []string{"2.jpg", "10.jpg", "a.png", "B.bmp", "tile_1.jpg", "tile_2.jpg", "tile_10.jpg"}, names)
}

func TestSortMatchesLess(t *testing.T) {
	names := []string{"x10y2", "x10y10", "x9", "X9", "x09", "x", "x10", "y"}
	byLess := append([]string(nil), names...)

	Sort(names)
	sort.SliceStable(byLess, func(i, j int) bool { return Less(byLess[i], byLess[j]) })

	assert.Equal(t, byLess, names)
	assert.True(t, sort.SliceIsSorted(names, func(i, j int) bool { return Less(names[i], names[j]) }))
}

func TestCompareFallsBackToBytes(t *testing.T) {
	assert.Equal(t, -1, compare("a01", "a1", KeyOf("a01"), KeyOf("a1")))
	assert.Equal(t, 1, compare("a.jpg", "A.jpg", KeyOf("a.jpg"), KeyOf("A.jpg")))
	assert.Equal(t, 0, compare("x", "x", KeyOf("x"), KeyOf("x")))
	assert.Equal(t, -1, compare("2.jpg", "10.jpg", KeyOf("2.jpg"), KeyOf("10.jpg")))
}
