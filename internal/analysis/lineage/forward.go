package lineage

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	"bff.life/internal/persistence/snapshot"
	"bff.life/internal/vm"
)

// Options configures a forward pass.
type Options struct {
	SnapshotDir string
	StartEpoch  int
	StartX      int
	StartY      int
	EndEpoch    int
	GridWidth   int
	GridHeight  int

	// Threshold is the minimum similarity for a frontier candidate;
	// defaults to DefaultThreshold.
	Threshold float64

	// Workers bounds concurrent candidate verifications; defaults to the
	// hardware.
	Workers int

	Log *log.Logger
}

// Finder runs the forward pass.
type Finder struct {
	opts Options
	memo *memo
	log  *log.Logger
}

func NewFinder(opts Options) *Finder {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers()
	}
	logger := opts.Log
	if logger == nil {
		logger = log.New(os.Stderr, "[lineage] ", log.LstdFlags)
	}
	return &Finder{opts: opts, memo: newMemo(), log: logger}
}

// epochCells is one loaded snapshot normalized to the analyzer's view: a
// program per coordinate, with pair-partner pointers when the source format
// carries them.
type epochCells struct {
	hasPairing bool
	cells      map[[2]int]snapshot.PairingCell
}

// loadEpoch prefers the pairing snapshot; token snapshots are the fallback
// (partner pointers absent).
func (f *Finder) loadEpoch(epoch int) (*epochCells, error) {
	pairPath := snapshot.PairingsPath(f.opts.SnapshotDir, epoch)
	if _, err := os.Stat(pairPath); err == nil {
		snap, err := snapshot.ReadPairings(pairPath)
		if err != nil {
			return nil, err
		}
		return &epochCells{hasPairing: true, cells: snap.Cells}, nil
	}

	tokPath := snapshot.TokensPath(f.opts.SnapshotDir, epoch)
	snap, err := snapshot.ReadTokens(tokPath)
	if err != nil {
		return nil, err
	}
	cells := make(map[[2]int]snapshot.PairingCell, len(snap.Programs))
	for key, prog := range snap.Programs {
		cells[key] = snapshot.PairingCell{
			Program:   vm.Clean(prog),
			CombinedX: -1,
			CombinedY: -1,
		}
	}
	return &epochCells{hasPairing: false, cells: cells}, nil
}

func (f *Finder) inBounds(x, y int) bool {
	return x >= 0 && x < f.opts.GridWidth && y >= 0 && y < f.opts.GridHeight
}

// Run executes the forward pass and returns every verified replicator
// location per epoch. A missing or unreadable snapshot ends the pass early
// with whatever has been collected.
func (f *Finder) Run() (map[int][]Location, error) {
	start, err := f.loadEpoch(f.opts.StartEpoch)
	if err != nil {
		return nil, fmt.Errorf("load start epoch %d: %w", f.opts.StartEpoch, err)
	}
	cell, ok := start.cells[[2]int{f.opts.StartX, f.opts.StartY}]
	if !ok {
		return nil, fmt.Errorf("no program at (%d, %d) in epoch %d",
			f.opts.StartX, f.opts.StartY, f.opts.StartEpoch)
	}

	initial := string(cell.Program)
	isRep := CheckReplicator([]byte(initial))
	f.memo.put(initial, isRep)
	if !isRep {
		f.log.Printf("warning: start program at (%d, %d) is not a self-replicator",
			f.opts.StartX, f.opts.StartY)
	}

	found := map[int][]Location{
		f.opts.StartEpoch: {{
			Epoch:   f.opts.StartEpoch,
			X:       f.opts.StartX,
			Y:       f.opts.StartY,
			Program: initial,
		}},
	}

	for epoch := f.opts.StartEpoch; epoch < f.opts.EndEpoch; epoch++ {
		frontier := found[epoch]
		f.log.Printf("epoch %d -> %d: frontier %d", epoch, epoch+1, len(frontier))
		if len(frontier) == 0 {
			continue
		}

		next, err := f.loadEpoch(epoch + 1)
		if err != nil {
			f.log.Printf("epoch %d: %v; stopping", epoch+1, err)
			break
		}

		candidates := f.collectCandidates(epoch, frontier, next)
		verified := f.verify(candidates)
		if len(verified) > 0 {
			sortLocations(verified)
			found[epoch+1] = verified
		}
		f.log.Printf("epoch %d: %d candidates, %d replicators, cache %d",
			epoch+1, len(candidates), len(verified), f.memo.size())
	}

	return found, nil
}

// collectCandidates walks each frontier replicator's expanded neighborhood
// in the next snapshot and gathers the similarity-passing descendants.
func (f *Finder) collectCandidates(epoch int, frontier []Location, next *epochCells) []Location {
	seen := make(map[Location]struct{})
	var out []Location
	add := func(loc Location) {
		if _, ok := seen[loc]; !ok {
			seen[loc] = struct{}{}
			out = append(out, loc)
		}
	}

	threshold := f.opts.Threshold
	for _, rep := range frontier {
		repProg := []byte(rep.Program)
		for _, nb := range ExpandedNeighborhood(rep.X, rep.Y) {
			nx, ny := nb[0], nb[1]
			if !f.inBounds(nx, ny) {
				continue
			}
			cell, ok := next.cells[[2]int{nx, ny}]
			if !ok {
				continue
			}

			if !next.hasPairing {
				// Token snapshots carry no partner pointers; every
				// sufficiently similar neighbor is a candidate.
				if Similarity(repProg, cell.Program) >= threshold {
					add(Location{Epoch: epoch + 1, X: nx, Y: ny, Program: string(cell.Program)})
				}
				continue
			}

			// Paired with the replicator's cell: both ends of the pair
			// descend from it.
			if cell.CombinedX == rep.X && cell.CombinedY == rep.Y {
				if Similarity(repProg, cell.Program) >= threshold {
					add(Location{Epoch: epoch + 1, X: nx, Y: ny, Program: string(cell.Program)})
				}
				if own, ok := next.cells[[2]int{rep.X, rep.Y}]; ok {
					if Similarity(repProg, own.Program) >= threshold {
						add(Location{Epoch: epoch + 1, X: rep.X, Y: rep.Y, Program: string(own.Program)})
					}
				}
			}

			// Mutation-only at the replicator's own cell.
			if cell.CombinedX == -1 && cell.CombinedY == -1 && nx == rep.X && ny == rep.Y {
				if Similarity(repProg, cell.Program) >= threshold {
					add(Location{Epoch: epoch + 1, X: nx, Y: ny, Program: string(cell.Program)})
				}
			}
		}
	}
	return out
}

// verify runs the self-replication test for each candidate on a bounded
// worker pool, memoized by program bytes.
func (f *Finder) verify(candidates []Location) []Location {
	var (
		mu       sync.Mutex
		verified []Location
	)
	sem := make(chan struct{}, f.opts.Workers)
	var wg sync.WaitGroup

	for _, cand := range candidates {
		if v, ok := f.memo.get(cand.Program); ok {
			if v {
				verified = append(verified, cand)
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(cand Location) {
			defer wg.Done()
			defer func() { <-sem }()
			isRep := CheckReplicator([]byte(cand.Program))
			f.memo.put(cand.Program, isRep)
			if isRep {
				mu.Lock()
				verified = append(verified, cand)
				mu.Unlock()
			}
		}(cand)
	}
	wg.Wait()
	return verified
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n <= 0 {
		n = 4
	}
	return n
}
