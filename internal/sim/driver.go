// Package sim contains the epoch drivers: the per-epoch pairing, dispatch,
// split, mutate, observe cycle over a population of byte programs.
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
	"bff.life/internal/sim/logic/mathx"
	"bff.life/internal/transport/ws"
	"bff.life/internal/viz"
	"bff.life/internal/vm"
)

// RNG stream ids. Each logically separate consumer of randomness gets its
// own handle so a change in one stream cannot shift another.
const (
	streamInit = iota + 1
	streamPairing
	streamMutation
)

func streamRNG(seed int64, stream int) *rand.Rand {
	return rand.New(rand.NewPCG(
		mathx.StreamSeed(seed, 2*stream),
		mathx.StreamSeed(seed, 2*stream+1),
	))
}

const pauseCheckInterval = 100 * time.Millisecond

// Driver advances a plain (untokenized) grid population epoch by epoch. All
// grid state is owned by the Run goroutine; workers only see the per-epoch
// soup copy.
type Driver struct {
	cfg config.Config
	g   *grid.Grid
	log *log.Logger

	pairRNG *rand.Rand
	mutRNG  *rand.Rand

	workers int
	paused  atomic.Bool

	runID   string
	snapDir string
	vizDir  string
	live    *ws.Server
	index   *indexdb.SQLiteIndex
}

// NewDriver builds a driver and randomly initializes its grid from the
// config seed.
func NewDriver(cfg config.Config, logger *log.Logger) *Driver {
	g := grid.New(cfg.GridWidth, cfg.GridHeight, cfg.ProgramSize)
	g.InitRandom(streamRNG(cfg.RandomSeed, streamInit))
	return NewDriverWithGrid(cfg, g, logger)
}

// NewDriverWithGrid builds a driver over an existing population. The grid
// dimensions in cfg must match g. Used by the barrier experiment, where the
// merged population is assembled from two evolved halves.
func NewDriverWithGrid(cfg config.Config, g *grid.Grid, logger *log.Logger) *Driver {
	return &Driver{
		cfg:     cfg,
		g:       g,
		log:     logger,
		pairRNG: streamRNG(cfg.RandomSeed, streamPairing),
		mutRNG:  streamRNG(cfg.RandomSeed, streamMutation),
		workers: workerCount(),
	}
}

func (d *Driver) Grid() *grid.Grid { return d.g }

// SetSnapshotDir enables per-epoch pairing snapshots.
func (d *Driver) SetSnapshotDir(dir string) { d.snapDir = dir }

// SetVizDir enables PPM/HTML images at the visualization interval.
func (d *Driver) SetVizDir(dir string) { d.vizDir = dir }

// SetLive attaches a push server; a frame is broadcast every epoch.
func (d *Driver) SetLive(s *ws.Server) { d.live = s }

// SetIndex attaches the run index. Returns the minted run id.
func (d *Driver) SetIndex(idx *indexdb.SQLiteIndex) string {
	d.index = idx
	d.runID = idx.StartRun(d.cfg.RandomSeed, d.cfg.GridWidth, d.cfg.GridHeight, d.cfg.ProgramSize)
	return d.runID
}

// HandleCommand applies an inbound live-push command.
func (d *Driver) HandleCommand(cmd string) {
	switch cmd {
	case protocol.CmdPause:
		d.paused.Store(true)
	case protocol.CmdPlay:
		d.paused.Store(false)
	}
}

func (d *Driver) Paused() bool { return d.paused.Load() }

// waitWhilePaused blocks between epochs while the pause flag is set. No
// state changes while paused.
func (d *Driver) waitWhilePaused(ctx context.Context) error {
	for d.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pauseCheckInterval):
		}
	}
	return nil
}

// Step advances the population one epoch and returns the stats and the
// pairing that produced it. epoch is the index of the transition; the
// resulting population belongs to epoch+1.
func (d *Driver) Step(epoch int) (EpochStats, []grid.Pair) {
	soup := d.g.Snapshot()
	pairs := d.g.Pairing(grid.DefaultRadius, d.pairRNG)

	type job struct{ a, b int }
	jobs := make([]job, 0, len(pairs))
	for _, p := range pairs {
		if !p.MutationOnly() {
			jobs = append(jobs, job{p.A, p.B})
		}
	}

	// Workers read the soup copy and write disjoint result slots; cell
	// writes happen only after the join.
	results := make([]vm.Result, len(jobs))
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
			tape := make([]byte, 0, 2*d.cfg.ProgramSize)
			tape = append(tape, soup[j.a]...)
			tape = append(tape, soup[j.b]...)
			results[i] = vm.Exec(tape, head0, head1, 0, vm.DefaultMaxIter)
		}(i, j)
	}
	wg.Wait()

	var stats EpochStats
	l := d.cfg.ProgramSize
	ji := 0
	for _, p := range pairs {
		if p.MutationOnly() {
			MutateSingle(soup[p.A], d.cfg.MutationRate, d.mutRNG)
			continue
		}
		res := results[ji]
		ji++
		copy(soup[p.A], res.Tape[:l])
		copy(soup[p.B], res.Tape[l:])
		MutateSingle(soup[p.A], d.cfg.MutationRate, d.mutRNG)
		MutateSingle(soup[p.B], d.cfg.MutationRate, d.mutRNG)
		stats.add(res.Iterations, res.Skipped, res.State)
	}
	stats.finalize()

	d.g.Replace(soup)
	stats.HOE = metrics.HigherOrderEntropy(d.g.Flatten())
	return stats, pairs
}

// Run executes the configured number of epochs, honoring the pause flag and
// emitting snapshots, images, frames and index rows.
func (d *Driver) Run(ctx context.Context) error {
	if d.snapDir != "" {
		if err := snapshot.WritePairings(snapshot.PairingsPath(d.snapDir, 0),
			d.g.Snapshot(), d.cfg.GridWidth, d.cfg.GridHeight, 0, nil); err != nil {
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

func (d *Driver) observe(epoch int, stats EpochStats, pairs []grid.Pair) {
	if d.cfg.EvalInterval > 0 && epoch%d.cfg.EvalInterval == 0 {
		d.log.Printf("epoch %d: hoe=%.3f avg_iters=%.3f avg_skips=%.3f finished=%.3f terminated=%.3f",
			epoch, stats.HOE, stats.AvgIters, stats.AvgSkipped, stats.FinishedRatio, stats.TerminatedRatio)
	}

	if d.snapDir != "" {
		path := snapshot.PairingsPath(d.snapDir, epoch+1)
		if err := snapshot.WritePairings(path, d.g.Snapshot(),
			d.cfg.GridWidth, d.cfg.GridHeight, epoch+1, pairs); err != nil {
			d.log.Printf("epoch %d: write pairings: %v", epoch, err)
		} else {
			d.index.RecordSnapshot(indexdb.SnapshotRow{RunID: d.runID, Epoch: epoch + 1, Kind: "pairings", Path: path})
		}
	}

	vizDue := d.cfg.VisualizationInterval > 0 && (epoch+1)%d.cfg.VisualizationInterval == 0
	if d.vizDir != "" && vizDue {
		cells := d.g.Snapshot()
		if err := viz.WritePPM(vizPath(d.vizDir, "grid", epoch+1, "ppm"), cells, d.cfg.GridWidth, d.cfg.GridHeight); err != nil {
			d.log.Printf("epoch %d: write ppm: %v", epoch, err)
		}
		if err := viz.WriteHTML(vizPath(d.vizDir, "grid", epoch+1, "html"), cells, d.cfg.GridWidth, d.cfg.GridHeight, d.cfg.ProgramSize); err != nil {
			d.log.Printf("epoch %d: write html: %v", epoch, err)
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

func (d *Driver) Frame(epoch int, stats EpochStats) protocol.FrameMsg {
	w, h := d.cfg.GridWidth, d.cfg.GridHeight
	gridColors := make([][][3]int, h)
	for y := 0; y < h; y++ {
		row := make([][3]int, w)
		for x := 0; x < w; x++ {
			c := viz.ProgramColor(d.g.At(x, y))
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
