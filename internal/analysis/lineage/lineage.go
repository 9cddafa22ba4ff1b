// Package lineage reconstructs replicator families from persisted
// snapshots: starting from a known replicator location, it forward-chases a
// similarity-bounded frontier epoch by epoch and verifies every candidate
// with the self-replication test.
package lineage

import (
	"sort"
	"sync"

	"bff.life/internal/vm"
)

// ReplicatorMaxIter is the iteration ceiling for the self-replication test.
const ReplicatorMaxIter = 1024

// DefaultThreshold is the similarity bound for frontier candidates.
const DefaultThreshold = 0.9

// Location is one verified replicator occurrence.
type Location struct {
	Epoch   int
	X, Y    int
	Program string
}

// CheckReplicator reports whether p, run against a '0'-filled partner with
// head0 at the start and head1 at the partner, copies itself: the test
// passes iff both tape halves are byte-identical afterwards. The program is
// cleaned before the run.
func CheckReplicator(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	cleaned := vm.Clean(p)
	tape := make([]byte, 0, 2*len(cleaned))
	tape = append(tape, cleaned...)
	for range cleaned {
		tape = append(tape, vm.Zero)
	}

	res := vm.Exec(tape, 0, len(cleaned), 0, ReplicatorMaxIter)

	mid := len(res.Tape) / 2
	for i := 0; i < mid; i++ {
		if res.Tape[i] != res.Tape[mid+i] {
			return false
		}
	}
	return true
}

// Similarity is the fraction of positions where a and b hold equal bytes.
// Programs of different lengths score zero.
func Similarity(a, b []byte) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

// ExpandedNeighborhood is the 13-cell candidate set around a replicator:
// the cell itself, the four axis cells at distance 1 and 2, and the four
// diagonals. Bounds are not checked here.
func ExpandedNeighborhood(x, y int) [][2]int {
	return [][2]int{
		{x, y},
		{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1},
		{x - 2, y}, {x + 2, y}, {x, y - 2}, {x, y + 2},
		{x - 1, y - 1}, {x + 1, y + 1}, {x + 1, y - 1}, {x - 1, y + 1},
	}
}

// memo caches the self-replication verdict per program bytes, shared across
// verification workers. Repeated programs across cells and epochs cost one
// check.
type memo struct {
	mu    sync.Mutex
	cache map[string]bool
}

func newMemo() *memo {
	return &memo{cache: make(map[string]bool)}
}

func (m *memo) get(program string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache[program]
	return v, ok
}

func (m *memo) put(program string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[program] = v
}

func (m *memo) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// sortLocations orders a replicator set deterministically.
func sortLocations(locs []Location) {
	sort.Slice(locs, func(i, j int) bool {
		a, b := locs[i], locs[j]
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Program < b.Program
	})
}
