package lineage

import (
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"bff.life/internal/persistence/snapshot"
	"bff.life/internal/sim/grid"
	"bff.life/internal/vm"
)

const testW, testH, testL = 8, 8, 64

func junkCells() [][]byte {
	cells := make([][]byte, testW*testH)
	for i := range cells {
		cells[i] = []byte(strings.Repeat("a", testL))
	}
	return cells
}

func writeEpoch(t *testing.T, dir string, epoch int, cells [][]byte, pairs []grid.Pair) {
	t.Helper()
	path := snapshot.PairingsPath(dir, epoch)
	if err := snapshot.WritePairings(path, cells, testW, testH, epoch, pairs); err != nil {
		t.Fatalf("write epoch %d: %v", epoch, err)
	}
}

func quietFinder(opts Options) *Finder {
	opts.Log = log.New(io.Discard, "", 0)
	return NewFinder(opts)
}

func TestForwardPass_PairingSnapshots(t *testing.T) {
	dir := t.TempDir()
	rep := replicatorProgram(testL)
	// A close mutant: the tail ops never execute, so it still replicates.
	mutant := "[.>}]<>" + strings.Repeat(" ", testL-7)

	idx := func(x, y int) int { return y*testW + x }

	// Epoch 5: the seed replicator sits at (3, 3).
	cells5 := junkCells()
	cells5[idx(3, 3)] = []byte(rep)
	writeEpoch(t, dir, 5, cells5, nil)

	// Epoch 6: (3, 3) paired with (4, 3); the replicator copied across.
	cells6 := junkCells()
	cells6[idx(3, 3)] = []byte(rep)
	cells6[idx(4, 3)] = []byte(rep)
	writeEpoch(t, dir, 6, cells6, []grid.Pair{{A: idx(3, 3), B: idx(4, 3)}})

	// Epoch 7: both descendants survive mutation-only; (4, 3) drifted into
	// the mutant strain.
	cells7 := junkCells()
	cells7[idx(3, 3)] = []byte(rep)
	cells7[idx(4, 3)] = []byte(mutant)
	writeEpoch(t, dir, 7, cells7, []grid.Pair{{A: idx(3, 3), B: -1}, {A: idx(4, 3), B: -1}})

	f := quietFinder(Options{
		SnapshotDir: dir,
		StartEpoch:  5,
		StartX:      3,
		StartY:      3,
		EndEpoch:    7,
		GridWidth:   testW,
		GridHeight:  testH,
	})
	found, err := f.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(found[5]) != 1 {
		t.Fatalf("epoch 5: %d locations, want 1", len(found[5]))
	}
	if len(found[6]) != 2 {
		t.Fatalf("epoch 6: %d locations, want 2 (both pair ends)", len(found[6]))
	}
	if len(found[7]) != 2 {
		t.Fatalf("epoch 7: %d locations, want 2", len(found[7]))
	}

	var sawMutant bool
	cleanRep := string(vm.Clean([]byte(rep)))
	for _, loc := range found[7] {
		if loc.Program != cleanRep {
			sawMutant = true
			if Similarity([]byte(loc.Program), []byte(cleanRep)) < 0.9 {
				t.Fatalf("mutant similarity below threshold: %q", loc.Program)
			}
			if !CheckReplicator([]byte(loc.Program)) {
				t.Fatalf("verified location is not a replicator: %q", loc.Program)
			}
		}
	}
	if !sawMutant {
		t.Fatal("mutant strain not tracked into epoch 7")
	}
}

func TestForwardPass_StopsOnMissingSnapshot(t *testing.T) {
	dir := t.TempDir()
	rep := replicatorProgram(testL)
	cells := junkCells()
	cells[3*testW+3] = []byte(rep)
	writeEpoch(t, dir, 0, cells, nil)
	// Epoch 1 snapshot intentionally absent.

	f := quietFinder(Options{
		SnapshotDir: dir,
		StartEpoch:  0,
		StartX:      3,
		StartY:      3,
		EndEpoch:    5,
		GridWidth:   testW,
		GridHeight:  testH,
	})
	found, err := f.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(found) != 1 || len(found[0]) != 1 {
		t.Fatalf("expected only the seed epoch, got %d epochs", len(found))
	}
}

func TestForwardPass_TokenFallback(t *testing.T) {
	dir := t.TempDir()
	rep := replicatorProgram(testL)

	mkTokenGrid := func(programs map[[2]int]string) *grid.TokenGrid {
		g := grid.NewTokenGrid(testW, testH, testL)
		for y := 0; y < testH; y++ {
			for x := 0; x < testW; x++ {
				p := strings.Repeat("a", testL)
				if s, ok := programs[[2]int{x, y}]; ok {
					p = s
				}
				g.Set(x, y, vm.InitTokens([]byte(p), 0))
			}
		}
		return g
	}

	g0 := mkTokenGrid(map[[2]int]string{{2, 2}: rep})
	if err := snapshot.WriteTokens(snapshot.TokensPath(dir, 0), g0, 0); err != nil {
		t.Fatalf("write tokens: %v", err)
	}
	// The replicator spread to a diagonal neighbor.
	g1 := mkTokenGrid(map[[2]int]string{{2, 2}: rep, {3, 3}: rep})
	if err := snapshot.WriteTokens(snapshot.TokensPath(dir, 1), g1, 1); err != nil {
		t.Fatalf("write tokens: %v", err)
	}

	f := quietFinder(Options{
		SnapshotDir: dir,
		StartEpoch:  0,
		StartX:      2,
		StartY:      2,
		EndEpoch:    1,
		GridWidth:   testW,
		GridHeight:  testH,
	})
	found, err := f.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(found[1]) != 2 {
		t.Fatalf("epoch 1: %d locations, want 2 (self + diagonal)", len(found[1]))
	}
}

func TestBuildGraph(t *testing.T) {
	rep := replicatorProgram(testL)
	mutant := "[.>}]<>" + strings.Repeat(" ", testL-7)
	found := map[int][]Location{
		5: {{Epoch: 5, X: 3, Y: 3, Program: rep}},
		6: {
			{Epoch: 6, X: 3, Y: 3, Program: rep},
			{Epoch: 6, X: 4, Y: 3, Program: mutant},
		},
	}

	g := BuildGraph(found)
	if len(g.Labels) != 2 {
		t.Fatalf("labels = %d, want 2 unique programs", len(g.Labels))
	}
	if g.Labels[rep] != 0 {
		t.Fatalf("first program label = %d, want 0", g.Labels[rep])
	}
	if g.Labels[mutant] != 1 {
		t.Fatalf("second program label = %d, want 1", g.Labels[mutant])
	}
	// (3,3)->(3,3) and (3,3)->(4,3) are both inside the expanded
	// neighborhood: edges 0->0 and 0->1.
	if len(g.Edges) != 2 {
		t.Fatalf("edges = %v, want 2", g.Edges)
	}
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	found := map[int][]Location{
		2: {{Epoch: 2, X: 1, Y: 0, Program: "[.>}]"}},
	}
	path := dir + "/forward_pass_results.csv"
	if err := WriteCSV(path, found); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "epoch,grid_x,grid_y,program\n2,1,0,\"[.>}]\"\n"
	if string(raw) != want {
		t.Fatalf("csv = %q, want %q", raw, want)
	}
}
