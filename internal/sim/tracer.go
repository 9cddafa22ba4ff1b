package sim

import (
	"context"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"bff.life/internal/metrics"
	"bff.life/internal/persistence/indexdb"
	"bff.life/internal/persistence/snapshot"
	"bff.life/internal/protocol"
	"bff.life/internal/sim/config"
	"bff.life/internal/sim/grid"
	"bff.life/internal/transport/ws"
	"bff.life/internal/viz"
	"bff.life/internal/vm"
)

// TracerDriver advances a token grid. Semantics match Driver except that
// every byte carries provenance: copies move whole tokens and a mutation
// mints a fresh token tagged with the epoch it enters.
type TracerDriver struct {
	cfg config.Config
	g   *grid.TokenGrid
	log *log.Logger

	pairRNG *rand.Rand
	mutRNG  *rand.Rand

	workers int
	paused  atomic.Bool

	runID   string
	snapDir string
	live    *ws.Server
	index   *indexdb.SQLiteIndex
}

func NewTracerDriver(cfg config.Config, logger *log.Logger) *TracerDriver {
	g := grid.NewTokenGrid(cfg.GridWidth, cfg.GridHeight, cfg.ProgramSize)
	g.InitRandom(streamRNG(cfg.RandomSeed, streamInit))
	return &TracerDriver{
		cfg:     cfg,
		g:       g,
		log:     logger,
		pairRNG: streamRNG(cfg.RandomSeed, streamPairing),
		mutRNG:  streamRNG(cfg.RandomSeed, streamMutation),
		workers: workerCount(),
	}
}

func (d *TracerDriver) Grid() *grid.TokenGrid { return d.g }

// SetSnapshotDir enables token snapshots at the visualization interval and
// pairing snapshots every epoch.
func (d *TracerDriver) SetSnapshotDir(dir string) { d.snapDir = dir }

func (d *TracerDriver) SetLive(s *ws.Server) { d.live = s }

func (d *TracerDriver) SetIndex(idx *indexdb.SQLiteIndex) string {
	d.index = idx
	d.runID = idx.StartRun(d.cfg.RandomSeed, d.cfg.GridWidth, d.cfg.GridHeight, d.cfg.ProgramSize)
	return d.runID
}

func (d *TracerDriver) HandleCommand(cmd string) {
	switch cmd {
	case protocol.CmdPause:
		d.paused.Store(true)
	case protocol.CmdPlay:
		d.paused.Store(false)
	}
}

func (d *TracerDriver) Paused() bool { return d.paused.Load() }

// Step advances the token population one epoch. Mutations introduced during
// the epoch->epoch+1 transition are tagged epoch+1, the epoch whose
// population they join.
func (d *TracerDriver) Step(epoch int) (EpochStats, []grid.Pair) {
	soup := d.g.Snapshot()
	pairs := d.g.Pairing(grid.DefaultRadius, d.pairRNG)

	type job struct{ a, b int }
	jobs := make([]job, 0, len(pairs))
	for _, p := range pairs {
		if !p.MutationOnly() {
			jobs = append(jobs, job{p.A, p.B})
		}
	}

	results := make([]vm.TokenResult, len(jobs))
	head0 := d.cfg.ReadHeadPosition
	head1 := d.cfg.ProgramSize + d.cfg.WriteHeadPosition
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			tape := make([]vm.Token, 0, 2*d.cfg.ProgramSize)
			tape = append(tape, soup[j.a]...)
			tape = append(tape, soup[j.b]...)
			results[i] = vm.ExecTokens(tape, head0, head1, 0, vm.DefaultMaxIter)
		}(i, j)
	}
	wg.Wait()

	var stats EpochStats
	l := d.cfg.ProgramSize
	mutEpoch := uint64(epoch + 1)
	ji := 0
	for _, p := range pairs {
		if p.MutationOnly() {
			MutateTokenSingle(soup[p.A], mutEpoch, d.cfg.MutationRate, d.mutRNG)
			continue
		}
		res := results[ji]
		ji++
		copy(soup[p.A], res.Tape[:l])
		copy(soup[p.B], res.Tape[l:])
		MutateTokenSingle(soup[p.A], mutEpoch, d.cfg.MutationRate, d.mutRNG)
		MutateTokenSingle(soup[p.B], mutEpoch, d.cfg.MutationRate, d.mutRNG)
		stats.add(res.Iterations, res.Skipped, res.State)
	}
	stats.finalize()

	d.g.Replace(soup)
	stats.HOE = metrics.HigherOrderEntropy(d.g.FlattenBytes())
	return stats, pairs
}

func (d *TracerDriver) waitWhilePaused(ctx context.Context) error {
	for d.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pauseCheckInterval):
		}
	}
	return nil
}

// Run executes the configured number of epochs.
func (d *TracerDriver) Run(ctx context.Context) error {
	if d.snapDir != "" {
		if err := snapshot.WriteTokens(snapshot.TokensPath(d.snapDir, 0), d.g, 0); err != nil {
			return err
		}
		if err := snapshot.WritePairings(snapshot.PairingsPath(d.snapDir, 0),
			d.bytesSnapshot(), d.cfg.GridWidth, d.cfg.GridHeight, 0, nil); err != nil {
			return err
		}
	}

	for epoch := 0; epoch < d.cfg.Epochs; epoch++ {
		if err := d.waitWhilePaused(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stats, pairs := d.Step(epoch)
		d.observe(epoch, stats, pairs)
	}
	return nil
}

func (d *TracerDriver) bytesSnapshot() [][]byte {
	out := make([][]byte, d.g.Cells())
	for i := 0; i < d.g.Cells(); i++ {
		out[i] = vm.TokenBytes(d.g.AtIndex(i))
	}
	return out
}

func (d *TracerDriver) observe(epoch int, stats EpochStats, pairs []grid.Pair) {
	if d.cfg.EvalInterval > 0 && epoch%d.cfg.EvalInterval == 0 {
		d.log.Printf("epoch %d: hoe=%.3f avg_iters=%.3f avg_skips=%.3f finished=%.3f terminated=%.3f",
			epoch, stats.HOE, stats.AvgIters, stats.AvgSkipped, stats.FinishedRatio, stats.TerminatedRatio)
	}

	if d.snapDir != "" {
		path := snapshot.PairingsPath(d.snapDir, epoch+1)
		if err := snapshot.WritePairings(path, d.bytesSnapshot(),
			d.cfg.GridWidth, d.cfg.GridHeight, epoch+1, pairs); err != nil {
			d.log.Printf("epoch %d: write pairings: %v", epoch, err)
		} else {
			d.index.RecordSnapshot(indexdb.SnapshotRow{RunID: d.runID, Epoch: epoch + 1, Kind: "pairings", Path: path})
		}

		tokensDue := d.cfg.VisualizationInterval > 0 && (epoch+1)%d.cfg.VisualizationInterval == 0
		if tokensDue || epoch+1 == d.cfg.Epochs {
			path := snapshot.TokensPath(d.snapDir, epoch+1)
			if err := snapshot.WriteTokens(path, d.g, epoch+1); err != nil {
				d.log.Printf("epoch %d: write tokens: %v", epoch, err)
			} else {
				d.index.RecordSnapshot(indexdb.SnapshotRow{RunID: d.runID, Epoch: epoch + 1, Kind: "tokens", Path: path})
			}
		}
	}

	if d.live != nil {
		d.live.BroadcastFrame(d.Frame(epoch, stats))
	}

	d.index.RecordEpoch(indexdb.EpochRow{
		RunID:           d.runID,
		Epoch:           epoch,
		HOE:             stats.HOE,
		AvgIters:        stats.AvgIters,
		AvgSkipped:      stats.AvgSkipped,
		FinishedRatio:   stats.FinishedRatio,
		TerminatedRatio: stats.TerminatedRatio,
	})
}

func (d *TracerDriver) Frame(epoch int, stats EpochStats) protocol.FrameMsg {
	w, h := d.cfg.GridWidth, d.cfg.GridHeight
	gridColors := make([][][3]int, h)
	for y := 0; y < h; y++ {
		row := make([][3]int, w)
		for x := 0; x < w; x++ {
			c := viz.ProgramColor(d.g.BytesAt(x, y))
			row[x] = [3]int{int(c.R), int(c.G), int(c.B)}
		}
		gridColors[y] = row
	}
	return protocol.FrameMsg{
		RunID:           d.runID,
		Epoch:           epoch,
		Width:           w,
		Height:          h,
		Entropy:         stats.HOE,
		AvgIters:        stats.AvgIters,
		FinishedRatio:   stats.FinishedRatio,
		TerminatedRatio: stats.TerminatedRatio,
		Grid:            gridColors,
	}
}
