package snapshot

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"bff.life/internal/sim/grid"
	"bff.life/internal/vm"
)

const pairingHeader = "epoch,position_x,position_y,program,combined_x,combined_y"

// WritePairings persists one epoch's grid alongside its pairing: one row per
// cell with the partner's coordinates, or -1,-1 for a mutation-only cell.
// Programs are written cleaned (non-instructions as spaces) so the field is
// line-safe; the analyzer's cleaning on read is then a no-op.
func WritePairings(path string, cells [][]byte, w, h, epoch int, pairs []grid.Pair) error {
	partner := make(map[int]int, len(cells))
	for _, p := range pairs {
		if p.MutationOnly() {
			partner[p.A] = -1
		} else {
			partner[p.A] = p.B
			partner[p.B] = p.A
		}
	}

	out, closeFn, err := openWriter(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, pairingHeader)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			cx, cy := -1, -1
			if p, ok := partner[idx]; ok && p >= 0 {
				cx, cy = p%w, p/w
			}
			fmt.Fprintf(out, "%d,%d,%d,\"%s\",%d,%d\n",
				epoch, x, y, vm.Clean(cells[idx]), cx, cy)
		}
	}
	return closeFn()
}

// PairingCell is one row of a pairing snapshot: the cell's program and its
// pair partner for the epoch (-1,-1 when the cell only mutated).
type PairingCell struct {
	Program   []byte
	CombinedX int
	CombinedY int
}

// PairingSnapshot maps cell coordinates to their rows.
type PairingSnapshot struct {
	Epoch int
	W, H  int
	Cells map[[2]int]PairingCell
}

// ReadPairings loads a pairing snapshot. Programs are cleaned on read, so
// raw legacy files and cleaned files load identically.
func ReadPairings(path string) (*PairingSnapshot, error) {
	r, closeFn, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	snap := &PairingSnapshot{
		Epoch: -1,
		Cells: make(map[[2]int]PairingCell),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := parseCSVLine(line)
		if len(fields) < 6 {
			continue
		}
		epoch, err1 := strconv.Atoi(fields[0])
		x, err2 := strconv.Atoi(fields[1])
		y, err3 := strconv.Atoi(fields[2])
		cx, err4 := strconv.Atoi(fields[4])
		cy, err5 := strconv.Atoi(fields[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("%s: bad row %q", path, line)
		}

		if snap.Epoch == -1 {
			snap.Epoch = epoch
		}
		if x+1 > snap.W {
			snap.W = x + 1
		}
		if y+1 > snap.H {
			snap.H = y + 1
		}
		snap.Cells[[2]int{x, y}] = PairingCell{
			Program:   vm.Clean([]byte(fields[3])),
			CombinedX: cx,
			CombinedY: cy,
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}
