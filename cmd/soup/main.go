// The soup driver: a fully-connected population with shuffle pairing and a
// per-byte mutation sweep, reporting metrics on stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bff.life/internal/sim"
	"bff.life/internal/sim/config"
)

func main() {
	configPath := flag.String("config", "configs/small_config.yaml", "run config path")
	flag.Parse()

	logger := log.New(os.Stdout, "[soup] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.UseGrid {
		fmt.Fprintf(os.Stderr, "config %s enables grid mode; use the grid driver\n", *configPath)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("soup of %d programs, program size %d, mutation rate %g, %d epochs",
		cfg.SoupSize, cfg.ProgramSize, cfg.MutationRate, cfg.Epochs)

	s := sim.NewSoup(cfg, logger)
	if err := s.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("simulation complete")
}
