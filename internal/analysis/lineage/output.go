package lineage

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// WriteCSV persists every verified replicator location, ordered by epoch
// then position.
func WriteCSV(path string, found map[int][]Location) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	epochs := make([]int, 0, len(found))
	for e := range found {
		epochs = append(epochs, e)
	}
	sort.Ints(epochs)

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "epoch,grid_x,grid_y,program")
	for _, e := range epochs {
		locs := append([]Location(nil), found[e]...)
		sortLocations(locs)
		for _, loc := range locs {
			fmt.Fprintf(w, "%d,%d,%d,%q\n", loc.Epoch, loc.X, loc.Y, loc.Program)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Graph is the lineage graph over unique replicator programs. Labels are
// assigned in first-appearance order, alternating 0, 1, -1, 2, -2, ... so
// related strains straddle the origin in plots.
type Graph struct {
	// Labels maps each unique program to its integer label.
	Labels map[string]int
	// Edges connect a program label at epoch e to a program label at
	// epoch e+1 whose location fell inside the ancestor's expanded
	// neighborhood.
	Edges [][2]int
}

// BuildGraph derives the strain graph from a forward-pass result.
func BuildGraph(found map[int][]Location) *Graph {
	epochs := make([]int, 0, len(found))
	for e := range found {
		epochs = append(epochs, e)
	}
	sort.Ints(epochs)

	g := &Graph{Labels: make(map[string]int)}
	next := 0
	label := func(program string) int {
		if l, ok := g.Labels[program]; ok {
			return l
		}
		l := alternating(next)
		next++
		g.Labels[program] = l
		return l
	}

	for _, e := range epochs {
		locs := append([]Location(nil), found[e]...)
		sortLocations(locs)
		for _, loc := range locs {
			label(loc.Program)
		}
	}

	edgeSeen := make(map[[2]int]struct{})
	for _, e := range epochs {
		nextLocs, ok := found[e+1]
		if !ok {
			continue
		}
		for _, from := range found[e] {
			for _, nb := range ExpandedNeighborhood(from.X, from.Y) {
				for _, to := range nextLocs {
					if to.X != nb[0] || to.Y != nb[1] {
						continue
					}
					edge := [2]int{g.Labels[from.Program], g.Labels[to.Program]}
					if _, dup := edgeSeen[edge]; !dup {
						edgeSeen[edge] = struct{}{}
						g.Edges = append(g.Edges, edge)
					}
				}
			}
		}
	}
	return g
}

// alternating maps 0, 1, 2, 3, 4, ... to 0, 1, -1, 2, -2, ...
func alternating(i int) int {
	if i%2 == 1 {
		return (i + 1) / 2
	}
	return -i / 2
}
