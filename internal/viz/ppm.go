package viz

import (
	"bufio"
	"fmt"
	"os"
)

// WritePPM saves the population as a plain-text P3 image, one pixel per
// cell.
func WritePPM(path string, cells [][]byte, w, h int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "P3\n%d %d\n255\n", w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := ProgramColor(cells[y*w+x])
			fmt.Fprintf(bw, "%d %d %d ", c.R, c.G, c.B)
		}
		fmt.Fprintln(bw)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
