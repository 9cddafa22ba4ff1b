package sim

import (
	"math/rand/v2"

	"bff.life/internal/vm"
)

// MutateSingle applies the single-position policy: with probability rate,
// one uniformly chosen byte is replaced by a uniform random byte, in place.
// Reports whether a mutation happened.
func MutateSingle(p []byte, rate float64, rng *rand.Rand) bool {
	if rate <= 0 || len(p) == 0 {
		return false
	}
	if rng.Float64() >= rate {
		return false
	}
	p[rng.IntN(len(p))] = byte(rng.IntN(256))
	return true
}

// MutateTokenSingle is the single-position policy on a token program: the
// replacement is a fresh token tagged with the given epoch and the mutation
// site. At most one new lineage marker per program per epoch.
func MutateTokenSingle(p []vm.Token, epoch uint64, rate float64, rng *rand.Rand) bool {
	if rate <= 0 || len(p) == 0 {
		return false
	}
	if rng.Float64() >= rate {
		return false
	}
	pos := rng.IntN(len(p))
	p[pos] = vm.NewToken(epoch, uint16(pos), byte(rng.IntN(256)))
	return true
}

// MutateSweep applies an independent Bernoulli trial per byte, in place, and
// returns the number of mutated positions. Used only by the soup driver:
// running it on token programs would rewrite lineage wholesale.
func MutateSweep(p []byte, rate float64, rng *rand.Rand) int {
	if rate <= 0 {
		return 0
	}
	n := 0
	for i := range p {
		if rng.Float64() < rate {
			p[i] = byte(rng.IntN(256))
			n++
		}
	}
	return n
}
