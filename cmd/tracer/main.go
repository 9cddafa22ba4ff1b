// The tokenized grid driver: identical population dynamics to cmd/grid, but
// every byte carries a provenance token, and token snapshots are persisted
// for lineage analysis.
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

	"bff.life/internal/persistence/indexdb"
	"bff.life/internal/sim"
	"bff.life/internal/sim/config"
	"bff.life/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "configs/grid_config.yaml", "run config path")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		addr       = flag.String("addr", ":8080", "live push listen address (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[tracer] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.UseGrid {
		fmt.Fprintf(os.Stderr, "config %s does not enable grid mode\n", *configPath)
		os.Exit(1)
	}

	d := sim.NewTracerDriver(cfg, logger)
	d.SetSnapshotDir(filepath.Join(*dataDir, "tokens"))

	if !*disableDB {
		idx, err := indexdb.Open(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open run index: %v", err)
		}
		defer idx.Close()
		runID := d.SetIndex(idx)
		logger.Printf("run %s", runID)
	}

	if *addr != "" {
		live := ws.NewServer(logger, d.HandleCommand)
		d.SetLive(live)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("grid %dx%d with token tracking, program size %d, mutation rate %g, %d epochs",
		cfg.GridWidth, cfg.GridHeight, cfg.ProgramSize, cfg.MutationRate, cfg.Epochs)

	if err := d.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("simulation complete")
}
