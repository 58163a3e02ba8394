package analysis

import (
	"runtime"

	"github.com/geobeat/gdi-cli/internal/autocorr"
	"github.com/geobeat/gdi-cli/internal/composite"
	"github.com/geobeat/gdi-cli/internal/config"
	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/grid"
)

// Options configures one analysis run.
type Options struct {
	ThresholdKm   float64          `json:"threshold_km"`
	Resolution    int              `json:"resolution"`
	Permutations  int              `json:"permutations"`
	Seed          uint64           `json:"seed"`
	Workers       int              `json:"workers,omitempty"`
	DensityK      int              `json:"density_k"`
	SkipComposite bool             `json:"skip_composite,omitempty"`
	Composite     composite.Config `json:"composite"`

	// Limits on caller-supplied work. Zero disables a limit.
	Limits Limits `json:"-"`
}

// Limits caps the cost of a single analysis.
type Limits struct {
	MaxPermutations  int
	MaxThresholdKm   float64
	MaxNeighborLinks int
}

// DefaultOptions returns the standard analysis parameters.
func DefaultOptions() Options {
	return Options{
		ThresholdKm:  500,
		Resolution:   grid.DefaultResolution,
		Permutations: 999,
		Seed:         42,
		DensityK:     autocorr.DefaultDensityK,
		Composite:    composite.DefaultConfig(),
	}
}

// OptionsFromConfig builds Options from the application configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ThresholdKm:  cfg.Analysis.ThresholdKm,
		Resolution:   cfg.Analysis.Resolution,
		Permutations: cfg.Analysis.Permutations,
		Seed:         cfg.Analysis.Seed,
		Workers:      cfg.Analysis.Workers,
		DensityK:     cfg.Analysis.DensityK,
		Composite:    cfg.Composite,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if !(o.ThresholdKm > 0) {
		return geoerr.Validationf("analysis", "threshold_km must be positive, got %v", o.ThresholdKm)
	}
	if o.Resolution < grid.MinResolution || o.Resolution > grid.MaxResolution {
		return geoerr.Validationf("analysis", "resolution %d outside [%d, %d]",
			o.Resolution, grid.MinResolution, grid.MaxResolution)
	}
	if o.Limits.MaxThresholdKm > 0 && o.ThresholdKm > o.Limits.MaxThresholdKm {
		return geoerr.Validationf("analysis", "threshold_km %v exceeds the limit of %v",
			o.ThresholdKm, o.Limits.MaxThresholdKm)
	}
	if o.Permutations < 0 {
		return geoerr.Validationf("analysis", "permutations must be >= 0, got %d", o.Permutations)
	}
	if o.Limits.MaxPermutations > 0 && o.Permutations > o.Limits.MaxPermutations {
		return geoerr.Validationf("analysis", "permutations %d exceeds the limit of %d",
			o.Permutations, o.Limits.MaxPermutations)
	}
	if o.DensityK < 1 {
		return geoerr.Validationf("analysis", "density_k must be >= 1, got %d", o.DensityK)
	}
	if !o.SkipComposite {
		if err := o.Composite.Validate(); err != nil {
			return geoerr.Validationf("analysis", "%v", err)
		}
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}
