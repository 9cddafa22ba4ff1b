// Package indexdb maintains a SQLite read-model of a run: per-epoch
// metrics, emitted snapshot files, and verified replicator locations. The
// index is best-effort — writes are queued to a single writer goroutine and
// dropped if it falls behind; the CSV snapshots remain the source of truth.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqEpoch
	reqSnapshot
	reqReplicator
	reqFlush
)

type req struct {
	kind reqKind

	run        RunRow
	epoch      EpochRow
	snapshot   SnapshotRow
	replicator ReplicatorRow
	flushed    chan struct{}
}

type RunRow struct {
	ID          string
	Seed        int64
	GridWidth   int
	GridHeight  int
	ProgramSize int
	StartedAt   string
}

type EpochRow struct {
	RunID           string
	Epoch           int
	HOE             float64
	AvgIters        float64
	AvgSkipped      float64
	FinishedRatio   float64
	TerminatedRatio float64
}

type SnapshotRow struct {
	RunID string
	Epoch int
	Kind  string // "tokens" or "pairings"
	Path  string
}

type ReplicatorRow struct {
	RunID   string
	Epoch   int
	X, Y    int
	Program string
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			grid_width INTEGER NOT NULL,
			grid_height INTEGER NOT NULL,
			program_size INTEGER NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS epochs (
			run_id TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			hoe REAL NOT NULL,
			avg_iters REAL NOT NULL,
			avg_skipped REAL NOT NULL,
			finished_ratio REAL NOT NULL,
			terminated_ratio REAL NOT NULL,
			PRIMARY KEY (run_id, epoch)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (run_id, epoch, kind)
		);`,
		`CREATE TABLE IF NOT EXISTS replicators (
			run_id TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			program TEXT NOT NULL,
			PRIMARY KEY (run_id, epoch, x, y, program)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_replicators_epoch ON replicators(run_id, epoch);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// StartRun registers a run and returns its generated id.
func (s *SQLiteIndex) StartRun(seed int64, w, h, programSize int) string {
	id := uuid.NewString()
	if s == nil || s.closed.Load() {
		return id
	}
	r := RunRow{
		ID:          id,
		Seed:        seed,
		GridWidth:   w,
		GridHeight:  h,
		ProgramSize: programSize,
		StartedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
	}
	return id
}

func (s *SQLiteIndex) RecordEpoch(row EpochRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqEpoch, epoch: row}:
	default:
	}
}

func (s *SQLiteIndex) RecordSnapshot(row SnapshotRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: row}:
	default:
	}
}

func (s *SQLiteIndex) RecordReplicator(row ReplicatorRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqReplicator, replicator: row}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		var err error
		switch r.kind {
		case reqRun:
			_, err = s.db.Exec(
				`INSERT OR REPLACE INTO runs (id, seed, grid_width, grid_height, program_size, started_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				r.run.ID, r.run.Seed, r.run.GridWidth, r.run.GridHeight, r.run.ProgramSize, r.run.StartedAt)
		case reqEpoch:
			_, err = s.db.Exec(
				`INSERT OR REPLACE INTO epochs (run_id, epoch, hoe, avg_iters, avg_skipped, finished_ratio, terminated_ratio)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.epoch.RunID, r.epoch.Epoch, r.epoch.HOE, r.epoch.AvgIters, r.epoch.AvgSkipped,
				r.epoch.FinishedRatio, r.epoch.TerminatedRatio)
		case reqSnapshot:
			_, err = s.db.Exec(
				`INSERT OR REPLACE INTO snapshots (run_id, epoch, kind, path) VALUES (?, ?, ?, ?)`,
				r.snapshot.RunID, r.snapshot.Epoch, r.snapshot.Kind, r.snapshot.Path)
		case reqReplicator:
			_, err = s.db.Exec(
				`INSERT OR IGNORE INTO replicators (run_id, epoch, x, y, program) VALUES (?, ?, ?, ?, ?)`,
				r.replicator.RunID, r.replicator.Epoch, r.replicator.X, r.replicator.Y, r.replicator.Program)
		case reqFlush:
			close(r.flushed)
		}
		_ = err // Best-effort; the CSVs are authoritative.
	}
}

// Flush waits until every previously queued write has been applied.
// Intended for tests and shutdown paths.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, flushed: done}
	<-done
}

// Epochs returns the recorded per-epoch rows for a run, ordered by epoch.
func (s *SQLiteIndex) Epochs(runID string) ([]EpochRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, epoch, hoe, avg_iters, avg_skipped, finished_ratio, terminated_ratio
		 FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpochRow
	for rows.Next() {
		var e EpochRow
		if err := rows.Scan(&e.RunID, &e.Epoch, &e.HOE, &e.AvgIters, &e.AvgSkipped,
			&e.FinishedRatio, &e.TerminatedRatio); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Replicators returns the verified replicator rows for a run at an epoch.
func (s *SQLiteIndex) Replicators(runID string, epoch int) ([]ReplicatorRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, epoch, x, y, program FROM replicators
		 WHERE run_id = ? AND epoch = ? ORDER BY y, x`, runID, epoch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReplicatorRow
	for rows.Next() {
		var r ReplicatorRow
		if err := rows.Scan(&r.RunID, &r.Epoch, &r.X, &r.Y, &r.Program); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
