package grid

import (
	"math/rand/v2"

	"bff.life/internal/sim/logic/mathx"
)

// DefaultRadius is the pairing neighborhood radius used by the drivers.
const DefaultRadius = 2

// Pair records one cell's fate for an epoch. A is the visited cell; B is the
// chosen partner, or -1 when no untaken neighbor was available and the cell
// only mutates.
type Pair struct {
	A, B int
}

func (p Pair) MutationOnly() bool { return p.B < 0 }

// VonNeumann returns the in-bounds cells at Manhattan distance 1..r from
// (x, y), the cell itself excluded.
func VonNeumann(x, y, w, h, r int) [][2]int {
	var out [][2]int
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d := mathx.AbsInt(dx) + mathx.AbsInt(dy)
			if d == 0 || d > r {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			out = append(out, [2]int{nx, ny})
		}
	}
	return out
}

// Pairing produces a disjoint matching over the grid for one epoch. Cells are
// visited in a random permutation; each untaken cell grabs a uniformly random
// untaken Von-Neumann-r neighbor, or falls back to a mutation-only record.
// Every cell appears in exactly one record. Determinism follows the rng.
func (g *Grid) Pairing(r int, rng *rand.Rand) []Pair {
	return pairing(g.W, g.H, r, rng)
}

// Pairing on a token grid uses the identical procedure.
func (g *TokenGrid) Pairing(r int, rng *rand.Rand) []Pair {
	return pairing(g.W, g.H, r, rng)
}

func pairing(w, h, r int, rng *rand.Rand) []Pair {
	n := w * h
	perm := rng.Perm(n)
	taken := make([]bool, n)
	pairs := make([]Pair, 0, n)

	free := make([]int, 0, 4*r)
	for _, c := range perm {
		if taken[c] {
			continue
		}
		x, y := c%w, c/w
		free = free[:0]
		for _, nb := range VonNeumann(x, y, w, h, r) {
			idx := nb[1]*w + nb[0]
			if !taken[idx] {
				free = append(free, idx)
			}
		}
		if len(free) == 0 {
			taken[c] = true
			pairs = append(pairs, Pair{A: c, B: -1})
			continue
		}
		chosen := free[rng.IntN(len(free))]
		taken[c] = true
		taken[chosen] = true
		pairs = append(pairs, Pair{A: c, B: chosen})
	}
	return pairs
}
