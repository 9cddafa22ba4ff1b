// Package config loads the flat key/value run configuration files.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RandomSeed   int64   `yaml:"random_seed"`
	SoupSize     int     `yaml:"soup_size"`
	ProgramSize  int     `yaml:"program_size"`
	Epochs       int     `yaml:"epochs"`
	MutationRate float64 `yaml:"mutation_rate"`

	ReadHeadPosition  int `yaml:"read_head_position"`
	WriteHeadPosition int `yaml:"write_head_position"`

	EvalInterval     int `yaml:"eval_interval"`
	NumPrintPrograms int `yaml:"num_print_programs"`

	GridWidth             int  `yaml:"grid_width"`
	GridHeight            int  `yaml:"grid_height"`
	UseGrid               bool `yaml:"use_grid"`
	VisualizationInterval int  `yaml:"visualization_interval"`
}

func Defaults() Config {
	return Config{
		ProgramSize:           64,
		Epochs:                1000,
		MutationRate:          0.001,
		EvalInterval:          1,
		VisualizationInterval: 100,
	}
}

// Load reads a config file and applies defaults for absent keys. Unknown
// keys are a load error. Supplying both grid_width and grid_height (positive)
// switches the run into grid mode and overrides soup_size with width*height.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}

	if c.GridWidth > 0 && c.GridHeight > 0 {
		c.UseGrid = true
		c.SoupSize = c.GridWidth * c.GridHeight
	}
	if err := c.validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) validate() error {
	if c.ProgramSize <= 0 {
		return fmt.Errorf("program_size must be positive, got %d", c.ProgramSize)
	}
	if c.Epochs < 0 {
		return fmt.Errorf("epochs must be non-negative, got %d", c.Epochs)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("mutation_rate must be in [0, 1], got %g", c.MutationRate)
	}
	if c.UseGrid {
		if c.GridWidth <= 0 || c.GridHeight <= 0 {
			return fmt.Errorf("grid mode needs positive grid_width and grid_height, got %dx%d", c.GridWidth, c.GridHeight)
		}
	} else if c.SoupSize <= 0 {
		return fmt.Errorf("soup_size must be positive, got %d", c.SoupSize)
	} else if c.SoupSize%2 != 0 {
		return fmt.Errorf("soup_size must be even for shuffle pairing, got %d", c.SoupSize)
	}
	return nil
}

// Darwin describes the two-grid barrier experiment: left and right
// populations evolve independently until the barrier epoch, then merge
// side by side and continue under the merged config.
type Darwin struct {
	GridWidth   int `yaml:"grid_width"`
	GridHeight  int `yaml:"grid_height"`
	ProgramSize int `yaml:"program_size"`

	LeftConfig          string `yaml:"left_config"`
	RightConfig         string `yaml:"right_config"`
	BarrierRemovalEpoch int    `yaml:"barrier_removal_epoch"`

	MergedConfig string `yaml:"merged_config"`
	FinalEpoch   int    `yaml:"final_epoch"`

	EvalInterval          int   `yaml:"eval_interval"`
	VisualizationInterval int   `yaml:"visualization_interval"`
	RandomSeed            int64 `yaml:"random_seed"`
}

func LoadDarwin(path string) (Darwin, error) {
	var d Darwin
	raw, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return d, fmt.Errorf("%s: %w", path, err)
	}
	if d.GridWidth <= 0 || d.GridHeight <= 0 || d.ProgramSize <= 0 {
		return d, fmt.Errorf("%s: grid_width, grid_height and program_size must be positive", path)
	}
	if d.BarrierRemovalEpoch < 0 || d.FinalEpoch < d.BarrierRemovalEpoch {
		return d, fmt.Errorf("%s: need 0 <= barrier_removal_epoch <= final_epoch", path)
	}
	return d, nil
}
