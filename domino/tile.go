// domino/tile.go
package domino

import (
	"fmt"
)

const (
	// MaxPip is the highest pip value in a double-six set.
	MaxPip = 6
	// SetSize is the number of unique tiles in a double-six set.
	SetSize = 28
)

// Tile is an undirected pair of pip values.
type Tile struct {
	A int `json:"a"`
	B int `json:"b"`
}

// NewTile returns the tile a|b.
func NewTile(a, b int) Tile {
	return Tile{A: a, B: b}
}

// Valid reports whether both pip values are within 0..MaxPip.
func (t Tile) Valid() bool {
	return t.A >= 0 && t.A <= MaxPip && t.B >= 0 && t.B <= MaxPip
}

// IsDouble reports whether both halves carry the same value.
func (t Tile) IsDouble() bool {
	return t.A == t.B
}

// Points is the sum of both pip values.
func (t Tile) Points() int {
	return t.A + t.B
}

// Has reports whether either half carries v.
func (t Tile) Has(v int) bool {
	return t.A == v || t.B == v
}

// Other returns the pip value opposite v. The caller must ensure Has(v).
func (t Tile) Other(v int) int {
	if t.A == v {
		return t.B
	}
	return t.A
}

// Same compares two tiles as unordered pairs.
func (t Tile) Same(o Tile) bool {
	return (t.A == o.A && t.B == o.B) || (t.A == o.B && t.B == o.A)
}

// Normalize returns the tile with the lower value first.
func (t Tile) Normalize() Tile {
	if t.A > t.B {
		return Tile{A: t.B, B: t.A}
	}
	return t
}

func (t Tile) String() string {
	return fmt.Sprintf("[%d|%d]", t.A, t.B)
}

// FullSet returns the 28 tiles of a double-six set in canonical order.
func FullSet() []Tile {
	tiles := make([]Tile, 0, SetSize)
	for i := 0; i <= MaxPip; i++ {
		for j := i; j <= MaxPip; j++ {
			tiles = append(tiles, Tile{A: i, B: j})
		}
	}
	return tiles
}

// Rand is the subset of *math/rand.Rand used for shuffling.
type Rand interface {
	Intn(n int) int
}

// Shuffle permutes tiles in place (Fisher-Yates).
func Shuffle(tiles []Tile, rng Rand) {
	for i := len(tiles) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}
}

// ShuffledSet returns a freshly shuffled full set.
func ShuffledSet(rng Rand) []Tile {
	tiles := FullSet()
	Shuffle(tiles, rng)
	return tiles
}

// IndexOf returns the position of t in tiles, comparing as unordered pairs, or -1.
func IndexOf(tiles []Tile, t Tile) int {
	for i, held := range tiles {
		if held.Same(t) {
			return i
		}
	}
	return -1
}
