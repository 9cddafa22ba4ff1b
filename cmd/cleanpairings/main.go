// cleanpairings rewrites legacy pairing snapshots whose program fields
// contain raw bytes: every non-instruction byte is replaced by a space so
// the files parse cleanly everywhere.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bff.life/internal/persistence/snapshot"
	"bff.life/internal/sim/grid"
)

func main() {
	var (
		in  = flag.String("in", "data/pairings", "input directory of pairing CSVs")
		out = flag.String("out", "", "output directory (default <in>/cleaned)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[cleanpairings] ", log.LstdFlags)

	outDir := *out
	if outDir == "" {
		outDir = filepath.Join(*in, "cleaned")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join(*in, "pairings_epoch_*.csv*"))
	if err != nil || len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no pairing CSVs in %s\n", *in)
		os.Exit(1)
	}
	sort.Strings(files)

	for _, file := range files {
		snap, err := snapshot.ReadPairings(file)
		if err != nil {
			logger.Printf("skip %s: %v", file, err)
			continue
		}

		cells := make([][]byte, snap.W*snap.H)
		var pairs []grid.Pair
		for y := 0; y < snap.H; y++ {
			for x := 0; x < snap.W; x++ {
				cell := snap.Cells[[2]int{x, y}]
				cells[y*snap.W+x] = cell.Program
				if cell.CombinedX < 0 {
					pairs = append(pairs, grid.Pair{A: y*snap.W + x, B: -1})
				} else if partner := cell.CombinedY*snap.W + cell.CombinedX; y*snap.W+x < partner {
					pairs = append(pairs, grid.Pair{A: y*snap.W + x, B: partner})
				}
			}
		}

		dst := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(file), ".zst"))
		if err := snapshot.WritePairings(dst, cells, snap.W, snap.H, snap.Epoch, pairs); err != nil {
			logger.Printf("write %s: %v", dst, err)
			continue
		}
		logger.Printf("cleaned %s -> %s", filepath.Base(file), dst)
	}
}
