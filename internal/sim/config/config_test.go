package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_GridConfig(t *testing.T) {
	p := writeFile(t, "grid.yaml", `# grid run
random_seed: 42
program_size: 64
epochs: 500
mutation_rate: 0.001
grid_width: 10
grid_height: 10
visualization_interval: 50
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.UseGrid {
		t.Fatal("grid dimensions should enable grid mode")
	}
	if c.SoupSize != 100 {
		t.Fatalf("soup_size = %d, want 100 (overridden by grid dims)", c.SoupSize)
	}
	if c.RandomSeed != 42 || c.VisualizationInterval != 50 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.EvalInterval != 1 {
		t.Fatalf("eval_interval default = %d, want 1", c.EvalInterval)
	}
}

func TestLoad_SoupConfig(t *testing.T) {
	p := writeFile(t, "soup.yaml", `random_seed: 7
soup_size: 128
program_size: 32
epochs: 10
mutation_rate: 0.01
eval_interval: 2
num_print_programs: 3
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.UseGrid {
		t.Fatal("soup config should not enable grid mode")
	}
	if c.SoupSize != 128 || c.NumPrintPrograms != 3 {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name, body string
	}{
		{"unknown key", "program_size: 64\nepochs: 1\nsoup_size: 2\nbogus_key: 1\n"},
		{"bad rate", "program_size: 64\nepochs: 1\nsoup_size: 2\nmutation_rate: 2.0\n"},
		{"zero program", "program_size: 0\nepochs: 1\nsoup_size: 2\n"},
		{"odd soup", "program_size: 64\nepochs: 1\nsoup_size: 3\n"},
	}
	for _, c := range cases {
		p := writeFile(t, "bad.yaml", c.body)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file: expected error")
	}
}

func TestLoadDarwin(t *testing.T) {
	p := writeFile(t, "darwin.yaml", `grid_width: 8
grid_height: 8
program_size: 32
left_config: left.yaml
right_config: right.yaml
barrier_removal_epoch: 100
merged_config: merged.yaml
final_epoch: 200
random_seed: 9
`)
	d, err := LoadDarwin(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.BarrierRemovalEpoch != 100 || d.FinalEpoch != 200 {
		t.Fatalf("unexpected darwin config: %+v", d)
	}

	bad := writeFile(t, "bad.yaml", "grid_width: 8\ngrid_height: 8\nprogram_size: 32\nbarrier_removal_epoch: 300\nfinal_epoch: 200\n")
	if _, err := LoadDarwin(bad); err == nil {
		t.Fatal("inverted epochs: expected error")
	}
}
