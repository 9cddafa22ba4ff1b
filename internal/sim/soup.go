package sim

import (
	"context"
	"log"
	"math/rand/v2"
	"os"
	"sync"

	"bff.life/internal/metrics"
	"bff.life/internal/sim/config"
	"bff.life/internal/vm"
)

// Soup is the fully-connected (non-spatial) driver: each epoch shuffles the
// population and pairs consecutive entries of the permutation, with a
// per-byte Bernoulli mutation sweep on the results.
type Soup struct {
	cfg      config.Config
	programs [][]byte
	log      *log.Logger

	pairRNG *rand.Rand
	mutRNG  *rand.Rand

	workers int
}

func NewSoup(cfg config.Config, logger *log.Logger) *Soup {
	initRNG := streamRNG(cfg.RandomSeed, streamInit)
	programs := make([][]byte, cfg.SoupSize)
	for i := range programs {
		p := make([]byte, cfg.ProgramSize)
		for j := range p {
			p[j] = byte(initRNG.IntN(256))
		}
		programs[i] = p
	}
	return &Soup{
		cfg:      cfg,
		programs: programs,
		log:      logger,
		pairRNG:  streamRNG(cfg.RandomSeed, streamPairing),
		mutRNG:   streamRNG(cfg.RandomSeed, streamMutation),
		workers:  workerCount(),
	}
}

func (s *Soup) Programs() [][]byte { return s.programs }

// Step advances the soup one epoch.
func (s *Soup) Step() EpochStats {
	n := len(s.programs)
	perm := s.pairRNG.Perm(n)

	results := make([]vm.Result, n/2)
	head0 := s.cfg.ReadHeadPosition
	head1 := s.cfg.ProgramSize + s.cfg.WriteHeadPosition
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i := 0; i < n/2; i++ {
		a, b := perm[2*i], perm[2*i+1]
		wg.Add(1)
		sem <- struct{}{}
		go func(i, a, b int) {
			defer wg.Done()
			defer func() { <-sem }()
			tape := make([]byte, 0, 2*s.cfg.ProgramSize)
			tape = append(tape, s.programs[a]...)
			tape = append(tape, s.programs[b]...)
			results[i] = vm.Exec(tape, head0, head1, 0, vm.DefaultMaxIter)
		}(i, a, b)
	}
	wg.Wait()

	var stats EpochStats
	l := s.cfg.ProgramSize
	for i := 0; i < n/2; i++ {
		a, b := perm[2*i], perm[2*i+1]
		res := results[i]
		copy(s.programs[a], res.Tape[:l])
		copy(s.programs[b], res.Tape[l:])
		MutateSweep(s.programs[a], s.cfg.MutationRate, s.mutRNG)
		MutateSweep(s.programs[b], s.cfg.MutationRate, s.mutRNG)
		stats.add(res.Iterations, res.Skipped, res.State)
	}
	stats.finalize()

	flat := make([]byte, 0, n*l)
	for _, p := range s.programs {
		flat = append(flat, p...)
	}
	stats.HOE = metrics.HigherOrderEntropy(flat)
	return stats
}

// Run executes the configured number of epochs, reporting at the eval
// interval and dumping the leading programs when the population develops
// structure.
func (s *Soup) Run(ctx context.Context) error {
	for epoch := 0; epoch < s.cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stats := s.Step()

		if s.cfg.EvalInterval > 0 && epoch%s.cfg.EvalInterval == 0 {
			s.log.Printf("epoch %d: hoe=%.3f avg_iters=%.3f avg_skips=%.3f finished=%.3f terminated=%.3f",
				epoch, stats.HOE, stats.AvgIters, stats.AvgSkipped, stats.FinishedRatio, stats.TerminatedRatio)

			if stats.HOE > 1.0 && s.cfg.NumPrintPrograms > 0 {
				s.log.Printf("the first %d programs:", s.cfg.NumPrintPrograms)
				for i := 0; i < s.cfg.NumPrintPrograms && i < len(s.programs); i++ {
					vm.FprintTape(os.Stdout, s.programs[i], -1, -1, -1, false)
				}
			}
		}
	}
	return nil
}
