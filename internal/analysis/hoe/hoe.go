// Package hoe recomputes the higher-order-entropy metric over local
// neighborhoods of persisted token snapshots, one value per grid cell.
package hoe

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"bff.life/internal/metrics"
	"bff.life/internal/persistence/snapshot"
	"bff.life/internal/sim/grid"
)

// DefaultRadius is the Von Neumann radius used when none is given.
const DefaultRadius = 10

// Result is one cell's neighborhood HOE.
type Result struct {
	Epoch            int
	X, Y             int
	HOE              float64
	NeighborhoodSize int
	TotalBytes       int
}

// AnalyzeSnapshot computes the HOE of every cell's program concatenated
// with its Von-Neumann-radius neighborhood. Cells are processed in
// parallel; the output is ordered by (epoch, y, x).
func AnalyzeSnapshot(snap *snapshot.TokenSnapshot, radius, workers int) []Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers <= 0 {
			workers = 4
		}
	}

	total := snap.W * snap.H
	results := make([]Result, total)

	var wg sync.WaitGroup
	per := (total + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * per
		hi := lo + per
		if lo >= total {
			break
		}
		if hi > total {
			hi = total
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for idx := lo; idx < hi; idx++ {
				x, y := idx%snap.W, idx/snap.W
				results[idx] = analyzeCell(snap, x, y, radius)
			}
		}(lo, hi)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return results
}

func analyzeCell(snap *snapshot.TokenSnapshot, x, y, radius int) Result {
	neighbors := grid.VonNeumann(x, y, snap.W, snap.H, radius)

	var bytes []byte
	if p, ok := snap.Programs[[2]int{x, y}]; ok {
		bytes = append(bytes, p...)
	}
	for _, nb := range neighbors {
		if p, ok := snap.Programs[[2]int{nb[0], nb[1]}]; ok {
			bytes = append(bytes, p...)
		}
	}

	return Result{
		Epoch:            snap.Epoch,
		X:                x,
		Y:                y,
		HOE:              metrics.HigherOrderEntropy(bytes),
		NeighborhoodSize: len(neighbors) + 1,
		TotalBytes:       len(bytes),
	}
}

// AnalyzeDir runs the analysis over every token snapshot in dir, in epoch
// order, logging per-epoch summary statistics.
func AnalyzeDir(dir string, radius, workers int, logger *log.Logger) ([]Result, error) {
	files, err := filepath.Glob(filepath.Join(dir, "tokens_epoch_*.csv*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no token snapshots in %s", dir)
	}

	var all []Result
	for _, file := range files {
		snap, err := snapshot.ReadTokens(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		results := AnalyzeSnapshot(snap, radius, workers)
		if len(results) == 0 {
			logger.Printf("%s: no cells", file)
			continue
		}
		all = append(all, results...)

		minV, maxV, sum := results[0].HOE, results[0].HOE, 0.0
		for _, r := range results {
			if r.HOE < minV {
				minV = r.HOE
			}
			if r.HOE > maxV {
				maxV = r.HOE
			}
			sum += r.HOE
		}
		logger.Printf("epoch %d: %d cells, hoe range [%.4f, %.4f], mean %.4f",
			snap.Epoch, len(results), minV, maxV, sum/float64(len(results)))
	}
	return all, nil
}

// WriteCSV persists the analysis results.
func WriteCSV(path string, results []Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "epoch,grid_x,grid_y,hoe,neighborhood_size,total_bytes")
	for _, r := range results {
		fmt.Fprintf(w, "%d,%d,%d,%.10f,%d,%d\n",
			r.Epoch, r.X, r.Y, r.HOE, r.NeighborhoodSize, r.TotalBytes)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
