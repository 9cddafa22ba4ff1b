// The barrier experiment: two grids evolve in isolation until the barrier
// epoch, then merge side by side and compete under a shared config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bff.life/internal/sim"
	"bff.life/internal/sim/config"
	"bff.life/internal/sim/grid"
	"bff.life/internal/transport/ws"
	"bff.life/internal/viz"
)

func main() {
	var (
		configPath = flag.String("config", "configs/darwin_config.yaml", "darwin config path")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		addr       = flag.String("addr", ":8080", "live push listen address (empty to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[darwin] ", log.LstdFlags)

	dc, err := config.LoadDarwin(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load darwin config: %v\n", err)
		os.Exit(1)
	}

	loadPhase := func(path string, w int) config.Config {
		c, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		// The experiment geometry overrides the phase configs.
		c.GridWidth = w
		c.GridHeight = dc.GridHeight
		c.ProgramSize = dc.ProgramSize
		c.UseGrid = true
		c.SoupSize = w * dc.GridHeight
		return c
	}

	left := sim.NewDriver(loadPhase(dc.LeftConfig, dc.GridWidth), logger)
	right := sim.NewDriver(loadPhase(dc.RightConfig, dc.GridWidth), logger)
	mergedCfg := loadPhase(dc.MergedConfig, 2*dc.GridWidth)

	var live *ws.Server
	if *addr != "" {
		live = ws.NewServer(logger, func(string) {})
		mux := http.NewServeMux()
		mux.Handle("/v1/ws", live.Handler())
		srv := &http.Server{Addr: *addr, Handler: mux}
		go func() {
			logger.Printf("live push on ws://%s/v1/ws", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("live push server: %v", err)
			}
		}()
		defer srv.Close()
	}

	vizDir := filepath.Join(*dataDir, "visualizations", "darwin")
	_ = os.MkdirAll(vizDir, 0o755)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("phase 1: independent evolution, epochs 0-%d, two %dx%d grids",
		dc.BarrierRemovalEpoch, dc.GridWidth, dc.GridHeight)

	for epoch := 0; epoch < dc.BarrierRemovalEpoch; epoch++ {
		if ctx.Err() != nil {
			logger.Fatalf("interrupted at epoch %d", epoch)
		}
		leftStats, _ := left.Step(epoch)
		rightStats, _ := right.Step(epoch)

		if dc.EvalInterval > 0 && epoch%dc.EvalInterval == 0 {
			logger.Printf("epoch %d left:  hoe=%.3f avg_iters=%.3f finished=%.3f",
				epoch, leftStats.HOE, leftStats.AvgIters, leftStats.FinishedRatio)
			logger.Printf("epoch %d right: hoe=%.3f avg_iters=%.3f finished=%.3f",
				epoch, rightStats.HOE, rightStats.AvgIters, rightStats.FinishedRatio)
		}
	}

	logger.Printf("barrier removed at epoch %d", dc.BarrierRemovalEpoch)

	// Merge: left occupies columns [0, W), right [W, 2W).
	mg := grid.New(2*dc.GridWidth, dc.GridHeight, dc.ProgramSize)
	for y := 0; y < dc.GridHeight; y++ {
		for x := 0; x < dc.GridWidth; x++ {
			mg.Set(x, y, left.Grid().At(x, y))
			mg.Set(x+dc.GridWidth, y, right.Grid().At(x, y))
		}
	}
	merged := sim.NewDriverWithGrid(mergedCfg, mg, logger)

	logger.Printf("phase 2: merged evolution, epochs %d-%d, %dx%d grid",
		dc.BarrierRemovalEpoch, dc.FinalEpoch, 2*dc.GridWidth, dc.GridHeight)

	for epoch := dc.BarrierRemovalEpoch; epoch < dc.FinalEpoch; epoch++ {
		if ctx.Err() != nil {
			logger.Fatalf("interrupted at epoch %d", epoch)
		}
		stats, _ := merged.Step(epoch)

		if live != nil {
			live.BroadcastFrame(merged.Frame(epoch, stats))
		}
		if dc.EvalInterval > 0 && epoch%dc.EvalInterval == 0 {
			logger.Printf("epoch %d merged: hoe=%.3f avg_iters=%.3f finished=%.3f",
				epoch, stats.HOE, stats.AvgIters, stats.FinishedRatio)
		}
		if dc.VisualizationInterval > 0 && (epoch+1)%dc.VisualizationInterval == 0 {
			path := filepath.Join(vizDir, fmt.Sprintf("merged_epoch_%04d.ppm", epoch+1))
			if err := viz.WritePPM(path, merged.Grid().Snapshot(), 2*dc.GridWidth, dc.GridHeight); err != nil {
				logger.Printf("epoch %d: write ppm: %v", epoch, err)
			}
		}
	}

	logger.Printf("darwin experiment complete")
}
