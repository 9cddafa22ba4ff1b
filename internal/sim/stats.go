package sim

import (
	"runtime"

	"bff.life/internal/vm"
)

// EpochStats aggregates one epoch's execution results over proper pairs
// only; mutation-only cells run nothing.
type EpochStats struct {
	Pairs           int
	AvgIters        float64
	AvgSkipped      float64
	FinishedRatio   float64
	TerminatedRatio float64
	HOE             float64
}

func (s *EpochStats) add(iters, skipped int, state vm.ExecState) {
	s.Pairs++
	s.AvgIters += float64(iters)
	s.AvgSkipped += float64(skipped)
	if state == vm.Finished {
		s.FinishedRatio++
	}
	if state == vm.Terminated {
		s.TerminatedRatio++
	}
}

func (s *EpochStats) finalize() {
	if s.Pairs == 0 {
		return
	}
	n := float64(s.Pairs)
	s.AvgIters /= n
	s.AvgSkipped /= n
	s.FinishedRatio /= n
	s.TerminatedRatio /= n
}

// workerCount sizes the execution pool to the hardware, with the historical
// fallback of 4.
func workerCount() int {
	n := runtime.NumCPU()
	if n <= 0 {
		n = 4
	}
	return n
}
