// The neighborhood HOE analyzer: recompute the higher-order-entropy metric
// over local neighborhoods of persisted token snapshots.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"bff.life/internal/analysis/hoe"
)

func main() {
	var (
		dir     = flag.String("tokens", "data/tokens", "token snapshot directory")
		radius  = flag.Int("radius", hoe.DefaultRadius, "Von Neumann radius")
		workers = flag.Int("workers", 0, "analysis workers (0 = hardware)")
		out     = flag.String("out", "", "output csv (default <tokens>/neighborhood_hoe_analysis.csv)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[hoe] ", log.LstdFlags)
	logger.Printf("radius %d, directory %s", *radius, *dir)

	results, err := hoe.AnalyzeDir(*dir, *radius, *workers, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}

	outPath := *out
	if outPath == "" {
		outPath = filepath.Join(*dir, "neighborhood_hoe_analysis.csv")
	}
	if err := hoe.WriteCSV(outPath, results); err != nil {
		fmt.Fprintf(os.Stderr, "write results: %v\n", err)
		os.Exit(1)
	}
	logger.Printf("saved %d rows to %s", len(results), outPath)
}
