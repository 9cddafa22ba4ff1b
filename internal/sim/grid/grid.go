// Package grid holds the 2-D population of byte programs and produces the
// per-epoch spatial pairing.
package grid

import (
	"math/rand/v2"

	"bff.life/internal/vm"
)

// Grid is a row-major array of fixed-length byte programs. Cell (x, y) lives
// at flat index y*W + x.
type Grid struct {
	W, H, L int
	cells   [][]byte
}

func New(w, h, l int) *Grid {
	cells := make([][]byte, w*h)
	for i := range cells {
		cells[i] = make([]byte, l)
	}
	return &Grid{W: w, H: h, L: l, cells: cells}
}

// InitRandom fills every cell with uniform random bytes drawn from rng.
func (g *Grid) InitRandom(rng *rand.Rand) {
	for _, p := range g.cells {
		for i := range p {
			p[i] = byte(rng.IntN(256))
		}
	}
}

func (g *Grid) Index(x, y int) int { return y*g.W + x }

// At returns the program at (x, y). The slice is the live cell storage.
func (g *Grid) At(x, y int) []byte { return g.cells[g.Index(x, y)] }

// AtIndex returns the program at a flat index.
func (g *Grid) AtIndex(i int) []byte { return g.cells[i] }

func (g *Grid) Set(x, y int, p []byte)   { g.cells[g.Index(x, y)] = p }
func (g *Grid) SetIndex(i int, p []byte) { g.cells[i] = p }

func (g *Grid) Cells() int { return g.W * g.H }

// Snapshot copies every program into a fresh slice-of-slices. The driver
// reads from the snapshot while executions are in flight so in-place cell
// writes cannot alias a running pair.
func (g *Grid) Snapshot() [][]byte {
	out := make([][]byte, len(g.cells))
	for i, p := range g.cells {
		cp := make([]byte, len(p))
		copy(cp, p)
		out[i] = cp
	}
	return out
}

// Replace swaps in a full population. len(cells) must equal W*H.
func (g *Grid) Replace(cells [][]byte) {
	g.cells = cells
}

// Flatten concatenates the whole population in row-major order.
func (g *Grid) Flatten() []byte {
	out := make([]byte, 0, g.Cells()*g.L)
	for _, p := range g.cells {
		out = append(out, p...)
	}
	return out
}

// TokenGrid is the provenance-tracking variant: every cell is a vector of
// tokens instead of raw bytes.
type TokenGrid struct {
	W, H, L int
	cells   [][]vm.Token
}

func NewTokenGrid(w, h, l int) *TokenGrid {
	cells := make([][]vm.Token, w*h)
	for i := range cells {
		cells[i] = make([]vm.Token, l)
	}
	return &TokenGrid{W: w, H: h, L: l, cells: cells}
}

// InitRandom fills every cell with random bytes tagged epoch 0 and
// origin = index-in-program.
func (g *TokenGrid) InitRandom(rng *rand.Rand) {
	for _, p := range g.cells {
		for i := range p {
			p[i] = vm.NewToken(0, uint16(i), byte(rng.IntN(256)))
		}
	}
}

func (g *TokenGrid) Index(x, y int) int { return y*g.W + x }

func (g *TokenGrid) At(x, y int) []vm.Token       { return g.cells[g.Index(x, y)] }
func (g *TokenGrid) AtIndex(i int) []vm.Token     { return g.cells[i] }
func (g *TokenGrid) Set(x, y int, p []vm.Token)   { g.cells[g.Index(x, y)] = p }
func (g *TokenGrid) SetIndex(i int, p []vm.Token) { g.cells[i] = p }
func (g *TokenGrid) Cells() int                   { return g.W * g.H }
func (g *TokenGrid) BytesAt(x, y int) []byte      { return vm.TokenBytes(g.At(x, y)) }

func (g *TokenGrid) Snapshot() [][]vm.Token {
	out := make([][]vm.Token, len(g.cells))
	for i, p := range g.cells {
		cp := make([]vm.Token, len(p))
		copy(cp, p)
		out[i] = cp
	}
	return out
}

func (g *TokenGrid) Replace(cells [][]vm.Token) {
	g.cells = cells
}

// FlattenBytes concatenates the byte projection of the whole population.
func (g *TokenGrid) FlattenBytes() []byte {
	out := make([]byte, 0, g.Cells()*g.L)
	for _, p := range g.cells {
		out = append(out, vm.TokenBytes(p)...)
	}
	return out
}
