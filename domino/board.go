// domino/board.go
package domino

import (
	"errors"
	"fmt"
	"math"
)

// Board coordinates are measured in half tile lengths: a tile is 2 units
// long and 1 unit wide. X grows to the right and Y grows downward.

var (
	ErrUnknownEnd = errors.New("open end not found")
	ErrNoMatch    = errors.New("tile does not match the open end")
	ErrBlocked    = errors.New("no room to place the tile at that end")
)

const eps = 1e-9

// Direction is a cardinal orientation in degrees, clockwise from the +X axis.
type Direction int

const (
	Right Direction = 0
	Down  Direction = 90
	Left  Direction = 180
	Up    Direction = 270
)

// Turn rotates d clockwise by deg degrees.
func (d Direction) Turn(deg int) Direction {
	return Direction(((int(d)+deg)%360 + 360) % 360)
}

func (d Direction) horizontal() bool {
	return d == Right || d == Left
}

func (d Direction) vector() (float64, float64) {
	switch d {
	case Right:
		return 1, 0
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	default:
		return 0, -1
	}
}

// Bounds is the layout area the chain tries to stay inside. A zero Width or
// Height disables the boundary rule.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Margin float64 `json:"margin"`
}

// DefaultBounds matches a 23x14 unit table with a one unit margin.
func DefaultBounds() Bounds {
	return Bounds{Width: 23, Height: 14, Margin: 1}
}

func (b Bounds) contains(r rect) bool {
	if b.Width <= 0 || b.Height <= 0 {
		return true
	}
	maxX := b.Width/2 - b.Margin
	maxY := b.Height/2 - b.Margin
	return r.cx-r.hw >= -maxX-eps && r.cx+r.hw <= maxX+eps &&
		r.cy-r.hh >= -maxY-eps && r.cy+r.hh <= maxY+eps
}

// PlacedTile is a tile fixed on the board. Rotation is the direction from
// the A half to the B half.
type PlacedTile struct {
	Tile     Tile      `json:"piece"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Rotation Direction `json:"rotation"`
	Spinner  bool      `json:"isSpinner,omitempty"`
}

func (p PlacedTile) footprint() rect {
	if p.Rotation.horizontal() {
		return rect{cx: p.X, cy: p.Y, hw: 1, hh: 0.5}
	}
	return rect{cx: p.X, cy: p.Y, hw: 0.5, hh: 1}
}

// OpenEnd is a point on the layout perimeter where a tile carrying Value may
// attach, extending in Direction.
type OpenEnd struct {
	ID        string    `json:"id"`
	Value     int       `json:"value"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Direction Direction `json:"attachDirection"`
	Source    int       `json:"source"`
}

// Placement is the outcome of laying one tile, computed without touching the board.
type Placement struct {
	Placed   PlacedTile `json:"placed"`
	Consumed string     `json:"consumed,omitempty"`
	NewEnds  []OpenEnd  `json:"newEnds"`
}

// Board is the layout: placed tiles in play order plus the open ends.
type Board struct {
	Tiles   []PlacedTile `json:"tiles"`
	Ends    []OpenEnd    `json:"ends"`
	NextEnd int          `json:"nextEnd"`
	// OriginArms counts the consumed horizontal ends of an opening double.
	OriginArms int `json:"originArms"`
}

type rect struct {
	cx, cy, hw, hh float64
}

func (r rect) overlaps(o rect) bool {
	return math.Abs(r.cx-o.cx) < r.hw+o.hw-eps && math.Abs(r.cy-o.cy) < r.hh+o.hh-eps
}

// Empty reports whether no tile has been played yet.
func (b *Board) Empty() bool {
	return len(b.Tiles) == 0
}

// End looks up an open end by id.
func (b *Board) End(id string) (OpenEnd, bool) {
	for _, e := range b.Ends {
		if e.ID == id {
			return e, true
		}
	}
	return OpenEnd{}, false
}

// Occupied reports whether the point lies strictly inside a placed tile.
func (b *Board) Occupied(x, y float64) bool {
	point := rect{cx: x, cy: y}
	for _, p := range b.Tiles {
		if point.overlaps(p.footprint()) {
			return true
		}
	}
	return false
}

// Matching returns the ends whose value appears on t, ignoring geometry.
func (b *Board) Matching(t Tile) []OpenEnd {
	var out []OpenEnd
	for _, e := range b.Ends {
		if t.Has(e.Value) {
			out = append(out, e)
		}
	}
	return out
}

// LegalEnds returns the ends where t can be laid: the value matches and the
// tile fits without overlapping the layout. On an empty board there are no
// ends and any tile may open the game.
func (b *Board) LegalEnds(t Tile, bounds Bounds) []OpenEnd {
	var out []OpenEnd
	for _, e := range b.Matching(t) {
		if _, _, ok := b.fit(t, e, bounds); ok {
			out = append(out, e)
		}
	}
	return out
}

// Plan computes where t goes when attached at endID. endID is ignored on an
// empty board.
func (b *Board) Plan(t Tile, endID string, bounds Bounds) (Placement, error) {
	if b.Empty() {
		return b.planOpening(t), nil
	}

	e, ok := b.End(endID)
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrUnknownEnd, endID)
	}
	if !t.Has(e.Value) {
		return Placement{}, fmt.Errorf("%w: %s at %s needs %d", ErrNoMatch, t, e.ID, e.Value)
	}

	placed, seeds, ok := b.fit(t, e, bounds)
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s at %s", ErrBlocked, t, e.ID)
	}

	if b.opensOriginSpinner(e) {
		origin := b.Tiles[0]
		seeds = append(seeds,
			OpenEnd{Value: origin.Tile.A, X: origin.X, Y: origin.Y - 1, Direction: Up, Source: 0},
			OpenEnd{Value: origin.Tile.A, X: origin.X, Y: origin.Y + 1, Direction: Down, Source: 0},
		)
	}

	return Placement{
		Placed:   placed,
		Consumed: e.ID,
		NewEnds:  b.label(seeds),
	}, nil
}

// Apply lays a planned placement and drops any end that no tile could use.
func (b *Board) Apply(p Placement) {
	index := len(b.Tiles)
	b.Tiles = append(b.Tiles, p.Placed)

	if p.Consumed != "" {
		if e, ok := b.End(p.Consumed); ok && e.Source == 0 && b.Tiles[0].Tile.IsDouble() && b.OriginArms < 2 {
			b.OriginArms++
		}
		kept := make([]OpenEnd, 0, len(b.Ends))
		for _, e := range b.Ends {
			if e.ID != p.Consumed {
				kept = append(kept, e)
			}
		}
		b.Ends = kept
	}

	for _, e := range p.NewEnds {
		if e.Source < 0 {
			e.Source = index
		}
		b.Ends = append(b.Ends, e)
	}
	b.NextEnd += len(p.NewEnds)

	live := make([]OpenEnd, 0, len(b.Ends))
	for _, e := range b.Ends {
		if b.reachable(e) {
			live = append(live, e)
		}
	}
	b.Ends = live
}

// Clone returns a deep copy.
func (b Board) Clone() Board {
	out := b
	if b.Tiles != nil {
		out.Tiles = make([]PlacedTile, len(b.Tiles))
		copy(out.Tiles, b.Tiles)
	}
	if b.Ends != nil {
		out.Ends = make([]OpenEnd, len(b.Ends))
		copy(out.Ends, b.Ends)
	}
	return out
}

func (b *Board) planOpening(t Tile) Placement {
	if t.IsDouble() {
		return Placement{
			Placed: PlacedTile{Tile: t, Rotation: Down, Spinner: true},
			NewEnds: b.label([]OpenEnd{
				{Value: t.A, X: -0.5, Direction: Left, Source: -1},
				{Value: t.A, X: 0.5, Direction: Right, Source: -1},
			}),
		}
	}
	return Placement{
		Placed: PlacedTile{Tile: t, Rotation: Right},
		NewEnds: b.label([]OpenEnd{
			{Value: t.A, X: -1, Direction: Left, Source: -1},
			{Value: t.B, X: 1, Direction: Right, Source: -1},
		}),
	}
}

func (b *Board) opensOriginSpinner(e OpenEnd) bool {
	return e.Source == 0 && b.Tiles[0].Tile.IsDouble() && b.OriginArms == 1 && e.Direction.horizontal()
}

func (b *Board) label(seeds []OpenEnd) []OpenEnd {
	for i := range seeds {
		seeds[i].ID = fmt.Sprintf("e%d", b.NextEnd+i)
	}
	return seeds
}

// fit tries the end's own direction first. A tile approaching the boundary
// turns 90 degrees clockwise (left to up, right to down), then
// counter-clockwise. If nothing fits inside the bounds the first candidate
// that does not overlap the layout is used.
func (b *Board) fit(t Tile, e OpenEnd, bounds Bounds) (PlacedTile, []OpenEnd, bool) {
	dirs := []Direction{e.Direction, e.Direction.Turn(90), e.Direction.Turn(270)}

	var (
		fallback      PlacedTile
		fallbackSeeds []OpenEnd
		haveFallback  bool
	)
	for _, d := range dirs {
		placed, seeds := layout(t, e, d)
		fp := placed.footprint()
		if b.collides(fp) {
			continue
		}
		if bounds.contains(fp) {
			return placed, seeds, true
		}
		if !haveFallback {
			fallback, fallbackSeeds, haveFallback = placed, seeds, true
		}
	}
	return fallback, fallbackSeeds, haveFallback
}

func (b *Board) collides(r rect) bool {
	for _, p := range b.Tiles {
		if r.overlaps(p.footprint()) {
			return true
		}
	}
	return false
}

// reachable reports whether any tile carrying the end's value could still be
// laid there.
func (b *Board) reachable(e OpenEnd) bool {
	candidates := []Tile{
		{A: e.Value, B: (e.Value + 1) % (MaxPip + 1)},
		{A: e.Value, B: e.Value},
	}
	for _, t := range candidates {
		if _, _, ok := b.fit(t, e, Bounds{}); ok {
			return true
		}
	}
	return false
}

// layout places t against end e travelling in d. When d differs from the
// end's direction the tile turns the corner so that its matching half sits
// just past the end.
func layout(t Tile, e OpenEnd, d Direction) (PlacedTile, []OpenEnd) {
	ax, ay := e.X, e.Y

	if t.IsDouble() && d != e.Direction {
		return turnedDouble(t, e, d)
	}
	if t.IsDouble() {
		dx, dy := d.vector()
		cx, cy := ax+0.5*dx, ay+0.5*dy
		left, right := d.Turn(270), d.Turn(90)
		lx, ly := left.vector()
		rx, ry := right.vector()
		return PlacedTile{Tile: t, X: cx, Y: cy, Rotation: d.Turn(90), Spinner: true},
			[]OpenEnd{
				{Value: t.A, X: ax + dx, Y: ay + dy, Direction: d, Source: -1},
				{Value: t.A, X: cx + rx, Y: cy + ry, Direction: right, Source: -1},
				{Value: t.A, X: cx + lx, Y: cy + ly, Direction: left, Source: -1},
			}
	}

	if d != e.Direction {
		ex, ey := e.Direction.vector()
		tx, ty := d.vector()
		ax, ay = ax+0.5*ex-0.5*tx, ay+0.5*ey-0.5*ty
	}
	dx, dy := d.vector()
	rotation := d
	if t.A != e.Value {
		rotation = d.Turn(180)
	}
	return PlacedTile{Tile: t, X: ax + dx, Y: ay + dy, Rotation: rotation},
		[]OpenEnd{
			{Value: t.Other(e.Value), X: ax + 2*dx, Y: ay + 2*dy, Direction: d, Source: -1},
		}
}

// turnedDouble lays a double in line with the incoming chain, so it lies
// across the new direction d and stays as narrow as the chain.
func turnedDouble(t Tile, e OpenEnd, d Direction) (PlacedTile, []OpenEnd) {
	ex, ey := e.Direction.vector()
	cx, cy := e.X+ex, e.Y+ey
	tx, ty := d.vector()
	return PlacedTile{Tile: t, X: cx, Y: cy, Rotation: e.Direction, Spinner: true},
		[]OpenEnd{
			{Value: t.A, X: cx + 0.5*tx, Y: cy + 0.5*ty, Direction: d, Source: -1},
			{Value: t.A, X: cx + ex, Y: cy + ey, Direction: e.Direction, Source: -1},
			{Value: t.A, X: cx - 0.5*tx, Y: cy - 0.5*ty, Direction: d.Turn(180), Source: -1},
		}
}
