package indexdb

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndex_RunAndEpochs(t *testing.T) {
	idx := openTemp(t)

	runID := idx.StartRun(42, 10, 10, 64)
	if runID == "" {
		t.Fatal("empty run id")
	}
	for e := 0; e < 3; e++ {
		idx.RecordEpoch(EpochRow{
			RunID:         runID,
			Epoch:         e,
			HOE:           float64(e) * 0.5,
			AvgIters:      100,
			FinishedRatio: 0.5,
		})
	}
	idx.Flush()

	rows, err := idx.Epochs(runID)
	if err != nil {
		t.Fatalf("epochs: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("epoch rows = %d, want 3", len(rows))
	}
	if rows[2].Epoch != 2 || rows[2].HOE != 1.0 {
		t.Fatalf("row = %+v", rows[2])
	}
}

func TestIndex_ReplicatorsDedup(t *testing.T) {
	idx := openTemp(t)

	runID := idx.StartRun(1, 4, 4, 32)
	row := ReplicatorRow{RunID: runID, Epoch: 7, X: 1, Y: 2, Program: "[->.,]"}
	idx.RecordReplicator(row)
	idx.RecordReplicator(row)
	idx.RecordSnapshot(SnapshotRow{RunID: runID, Epoch: 7, Kind: "pairings", Path: "p.csv"})
	idx.Flush()

	reps, err := idx.Replicators(runID, 7)
	if err != nil {
		t.Fatalf("replicators: %v", err)
	}
	if len(reps) != 1 {
		t.Fatalf("replicator rows = %d, want 1 (primary key dedup)", len(reps))
	}
	if reps[0].Program != "[->.,]" {
		t.Fatalf("row = %+v", reps[0])
	}
}

func TestIndex_NilSafe(t *testing.T) {
	var idx *SQLiteIndex
	idx.RecordEpoch(EpochRow{})
	idx.RecordSnapshot(SnapshotRow{})
	idx.RecordReplicator(ReplicatorRow{})
	idx.Flush()
	if id := idx.StartRun(0, 1, 1, 1); id == "" {
		t.Fatal("nil index should still mint a run id")
	}
}
