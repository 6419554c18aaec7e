// Package config holds the tunable tolerances and budgets of the shattering
// pipeline. Defaults are usable as is; a YAML file may override any field.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/chazu/shard/pkg/fragment"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/voronoi"
)

// Config is the pipeline configuration.
type Config struct {
	// HullEpsilon is the plane-distance tolerance of the hull builder.
	HullEpsilon float64 `yaml:"hull_epsilon"`
	// VoronoiEpsilon bounds vertex coincidence and chain coplanarity.
	VoronoiEpsilon float64 `yaml:"voronoi_epsilon"`
	// FragmentEpsilon is the merge tolerance for fragment points.
	FragmentEpsilon float64 `yaml:"fragment_epsilon"`

	// Retries is the number of jittered retries after a degenerate diagram.
	Retries int `yaml:"retries"`
	// Jitter is the retry perturbation relative to the input extent.
	Jitter float64 `yaml:"jitter"`

	ParallelThreshold int `yaml:"parallel_threshold"`
	// SampleCells is the marching cubes resolution used to sample solids.
	SampleCells int `yaml:"sample_cells"`

	EvalTimeout time.Duration `yaml:"eval_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HullEpsilon:       geom.DefaultEpsilon,
		VoronoiEpsilon:    voronoi.DefaultEpsilon,
		FragmentEpsilon:   fragment.DefaultEpsilon,
		Retries:           voronoi.DefaultRetries,
		Jitter:            voronoi.DefaultJitter,
		ParallelThreshold: fragment.DefaultParallelThreshold,
		SampleCells:       48,
		EvalTimeout:       10 * time.Second,
	}
}

// Parse applies YAML overrides on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: parse")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a YAML file. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(data)
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.HullEpsilon <= 0:
		return errors.Errorf("config: hull_epsilon must be positive, got %g", c.HullEpsilon)
	case c.VoronoiEpsilon <= 0:
		return errors.Errorf("config: voronoi_epsilon must be positive, got %g", c.VoronoiEpsilon)
	case c.FragmentEpsilon <= 0:
		return errors.Errorf("config: fragment_epsilon must be positive, got %g", c.FragmentEpsilon)
	case c.Retries < 0:
		return errors.Errorf("config: retries must not be negative, got %d", c.Retries)
	case c.Jitter <= 0:
		return errors.Errorf("config: jitter must be positive, got %g", c.Jitter)
	case c.ParallelThreshold < 1:
		return errors.Errorf("config: parallel_threshold must be at least 1, got %d", c.ParallelThreshold)
	case c.SampleCells < 4:
		return errors.Errorf("config: sample_cells must be at least 4, got %d", c.SampleCells)
	case c.EvalTimeout <= 0:
		return errors.Errorf("config: eval_timeout must be positive, got %s", c.EvalTimeout)
	}
	return nil
}
