// The lineage analyzer: forward-chase a replicator family through persisted
// snapshots and emit the verified locations and strain graph.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"bff.life/internal/analysis/lineage"
	"bff.life/internal/persistence/indexdb"
)

func main() {
	var (
		dir       = flag.String("snapshots", "data/pairings", "snapshot directory")
		start     = flag.Int("start_epoch", 0, "epoch of the seed replicator")
		x         = flag.Int("x", 0, "seed grid x")
		y         = flag.Int("y", 0, "seed grid y")
		end       = flag.Int("end_epoch", 0, "last epoch to chase into")
		width     = flag.Int("width", 64, "grid width")
		height    = flag.Int("height", 64, "grid height")
		threshold = flag.Float64("threshold", lineage.DefaultThreshold, "similarity threshold")
		workers   = flag.Int("workers", 0, "verification workers (0 = hardware)")
		out       = flag.String("out", "", "output csv (default <snapshots>/forward_pass_results.csv)")
		dbPath    = flag.String("db", "", "optional sqlite run index to record replicators into")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[lineage] ", log.LstdFlags)

	f := lineage.NewFinder(lineage.Options{
		SnapshotDir: *dir,
		StartEpoch:  *start,
		StartX:      *x,
		StartY:      *y,
		EndEpoch:    *end,
		GridWidth:   *width,
		GridHeight:  *height,
		Threshold:   *threshold,
		Workers:     *workers,
		Log:         logger,
	})

	found, err := f.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forward pass: %v\n", err)
		os.Exit(1)
	}

	epochs := make([]int, 0, len(found))
	total := 0
	unique := make(map[string]lineage.Location)
	for e, locs := range found {
		epochs = append(epochs, e)
		total += len(locs)
		for _, loc := range locs {
			if _, ok := unique[loc.Program]; !ok {
				unique[loc.Program] = loc
			}
		}
	}
	sort.Ints(epochs)
	for _, e := range epochs {
		logger.Printf("epoch %d: %d replicators", e, len(found[e]))
	}
	logger.Printf("total replicator locations: %d", total)
	logger.Printf("unique replicator programs: %d", len(unique))

	graph := lineage.BuildGraph(found)
	logger.Printf("strain graph: %d vertices, %d edges", len(graph.Labels), len(graph.Edges))

	outPath := *out
	if outPath == "" {
		outPath = filepath.Join(*dir, "forward_pass_results.csv")
	}
	if err := lineage.WriteCSV(outPath, found); err != nil {
		fmt.Fprintf(os.Stderr, "write results: %v\n", err)
		os.Exit(1)
	}
	logger.Printf("results saved to %s", outPath)

	if *dbPath != "" {
		idx, err := indexdb.Open(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open run index: %v\n", err)
			os.Exit(1)
		}
		runID := idx.StartRun(0, *width, *height, 0)
		for _, e := range epochs {
			for _, loc := range found[e] {
				idx.RecordReplicator(indexdb.ReplicatorRow{
					RunID:   runID,
					Epoch:   loc.Epoch,
					X:       loc.X,
					Y:       loc.Y,
					Program: loc.Program,
				})
			}
		}
		idx.Flush()
		_ = idx.Close()
		logger.Printf("recorded %d replicator rows under run %s in %s", total, runID, *dbPath)
	}
}
