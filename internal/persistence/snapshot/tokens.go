package snapshot

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"bff.life/internal/sim/grid"
	"bff.life/internal/vm"
)

const tokenHeader = "epoch_snapshot,grid_x,grid_y,pos_in_program,token_epoch,token_orig_pos,char,char_ascii"

// WriteTokens persists the full token grid for one epoch, one row per token.
// char_ascii carries the quoted printable character, or "" for bytes outside
// the printable range.
func WriteTokens(path string, g *grid.TokenGrid, epoch int) error {
	w, closeFn, err := openWriter(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, tokenHeader)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			for i, tok := range g.At(x, y) {
				ascii := ""
				if b := tok.Byte(); b >= 32 && b <= 126 {
					ascii = string(rune(b))
				}
				fmt.Fprintf(w, "%d,%d,%d,%d,%d,%d,%d,%q\n",
					epoch, x, y, i, tok.Epoch(), tok.Origin(), tok.Byte(), ascii)
			}
		}
	}
	return closeFn()
}

// TokenSnapshot is a token CSV loaded back into memory. Programs holds the
// byte projection; Tokens the full provenance.
type TokenSnapshot struct {
	Epoch    int
	W, H     int
	Programs map[[2]int][]byte
	Tokens   map[[2]int][]vm.Token
}

// ReadTokens loads a token snapshot. Grid dimensions are inferred from the
// largest coordinates present.
func ReadTokens(path string) (*TokenSnapshot, error) {
	r, closeFn, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	snap := &TokenSnapshot{
		Epoch:    -1,
		Programs: make(map[[2]int][]byte),
		Tokens:   make(map[[2]int][]vm.Token),
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
		if len(fields) < 7 {
			continue
		}
		epoch, err1 := strconv.Atoi(fields[0])
		x, err2 := strconv.Atoi(fields[1])
		y, err3 := strconv.Atoi(fields[2])
		pos, err4 := strconv.Atoi(fields[3])
		tokEpoch, err5 := strconv.ParseUint(fields[4], 10, 64)
		tokOrig, err6 := strconv.ParseUint(fields[5], 10, 16)
		ch, err7 := strconv.ParseUint(fields[6], 10, 8)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil ||
			err5 != nil || err6 != nil || err7 != nil {
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

		key := [2]int{x, y}
		prog := snap.Programs[key]
		toks := snap.Tokens[key]
		for len(prog) <= pos {
			prog = append(prog, 0)
			toks = append(toks, 0)
		}
		prog[pos] = byte(ch)
		toks[pos] = vm.NewToken(tokEpoch, uint16(tokOrig), byte(ch))
		snap.Programs[key] = prog
		snap.Tokens[key] = toks
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}
