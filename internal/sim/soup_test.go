package sim

import (
	"bytes"
	"context"
	"testing"

	"bff.life/internal/sim/config"
)

func soupCfg(seed int64) config.Config {
	c := config.Defaults()
	c.RandomSeed = seed
	c.SoupSize = 64
	c.ProgramSize = 32
	c.Epochs = 3
	c.MutationRate = 0.01
	c.EvalInterval = 2
	return c
}

func TestSoup_Deterministic(t *testing.T) {
	s1 := NewSoup(soupCfg(11), testLogger())
	s2 := NewSoup(soupCfg(11), testLogger())
	if err := s1.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s2.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := range s1.Programs() {
		if !bytes.Equal(s1.Programs()[i], s2.Programs()[i]) {
			t.Fatalf("program %d differs between identically seeded runs", i)
		}
	}
}

func TestSoup_PopulationShape(t *testing.T) {
	s := NewSoup(soupCfg(13), testLogger())
	stats := s.Step()
	if len(s.Programs()) != 64 {
		t.Fatalf("population = %d, want 64", len(s.Programs()))
	}
	if stats.Pairs != 32 {
		t.Fatalf("pairs = %d, want 32", stats.Pairs)
	}
	for i, p := range s.Programs() {
		if len(p) != 32 {
			t.Fatalf("program %d length = %d", i, len(p))
		}
	}
}
