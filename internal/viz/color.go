// Package viz renders grid populations: semantic program colors, PPM
// images, and a self-contained HTML canvas page.
package viz

type RGB struct {
	R, G, B uint8
}

// ProgramColor maps a program to a color by its instruction composition
// (the CuBFF scheme): loop ops pull toward green, arithmetic/copy toward
// magenta, head movement toward light purple. A program with no
// instructions at all renders red.
func ProgramColor(p []byte) RGB {
	if len(p) == 0 {
		return RGB{}
	}

	var loops, arith, heads int
	for _, b := range p {
		switch b {
		case '[', ']':
			loops++
		case '+', '-', '.', ',':
			arith++
		case '<', '>', '{', '}':
			heads++
		}
	}

	total := loops + arith + heads
	if total == 0 {
		return RGB{R: 255}
	}

	lr := float64(loops) / float64(total)
	ar := float64(arith) / float64(total)
	hr := float64(heads) / float64(total)

	// Loop {0,192,0}, arithmetic {200,0,200}, head movement {200,128,220}.
	return RGB{
		R: uint8(ar*200 + hr*200),
		G: uint8(lr*192 + hr*128),
		B: uint8(ar*200 + hr*220),
	}
}

// ColorGrid renders every cell of a row-major population to RGB.
func ColorGrid(cells [][]byte, w, h int) [][]RGB {
	out := make([][]RGB, h)
	for y := 0; y < h; y++ {
		row := make([]RGB, w)
		for x := 0; x < w; x++ {
			row[x] = ProgramColor(cells[y*w+x])
		}
		out[y] = row
	}
	return out
}
