package composite

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds every constant used by the composite indices.
type Config struct {
	PDI PDIConfig       `yaml:"pdi" mapstructure:"pdi" json:"pdi"`
	JDI DiversityConfig `yaml:"jdi" mapstructure:"jdi" json:"jdi"`
	IHI DiversityConfig `yaml:"ihi" mapstructure:"ihi" json:"ihi"`
	GDI GDIConfig       `yaml:"gdi" mapstructure:"gdi" json:"gdi"`
}

// PDIConfig weights the three spatial components of the Physical
// Distribution Index.
type PDIConfig struct {
	MoranWeight float64 `yaml:"moran_weight" mapstructure:"moran_weight" json:"moran_weight"`
	ENLWeight   float64 `yaml:"enl_weight" mapstructure:"enl_weight" json:"enl_weight"`
	HHIWeight   float64 `yaml:"hhi_weight" mapstructure:"hhi_weight" json:"hhi_weight"`
	ENLCap      float64 `yaml:"enl_cap" mapstructure:"enl_cap" json:"enl_cap"`
}

// DiversityConfig parameterizes a categorical diversity index (JDI over
// countries, IHI over organizations): an evenness term, a log-scaled
// diversity bonus and a linear penalty on the largest category's share.
type DiversityConfig struct {
	HHIWeight       float64 `yaml:"hhi_weight" mapstructure:"hhi_weight" json:"hhi_weight"`
	DiversityWeight float64 `yaml:"diversity_weight" mapstructure:"diversity_weight" json:"diversity_weight"`
	LogDivisor      float64 `yaml:"log_divisor" mapstructure:"log_divisor" json:"log_divisor"`
	PenaltyWeight   float64 `yaml:"penalty_weight" mapstructure:"penalty_weight" json:"penalty_weight"`
	PenaltyFloor    float64 `yaml:"penalty_floor" mapstructure:"penalty_floor" json:"penalty_floor"`
	PenaltyCeiling  float64 `yaml:"penalty_ceiling" mapstructure:"penalty_ceiling" json:"penalty_ceiling"`
}

// GDIConfig weights the sub-indices and the network size score.
type GDIConfig struct {
	PDIWeight     float64 `yaml:"pdi_weight" mapstructure:"pdi_weight" json:"pdi"`
	JDIWeight     float64 `yaml:"jdi_weight" mapstructure:"jdi_weight" json:"jdi"`
	IHIWeight     float64 `yaml:"ihi_weight" mapstructure:"ihi_weight" json:"ihi"`
	SizeWeight    float64 `yaml:"size_weight" mapstructure:"size_weight" json:"size"`
	SizeReference float64 `yaml:"size_reference" mapstructure:"size_reference" json:"size_reference"`
}

// DefaultConfig returns the standard GDI v0 constants.
func DefaultConfig() Config {
	return Config{
		PDI: PDIConfig{
			MoranWeight: 0.4,
			ENLWeight:   0.3,
			HHIWeight:   0.3,
			ENLCap:      2000,
		},
		JDI: DiversityConfig{
			HHIWeight:       0.3,
			DiversityWeight: 0.35,
			LogDivisor:      2.0, // saturates at 100 countries
			PenaltyWeight:   0.35,
			PenaltyFloor:    0.15,
			PenaltyCeiling:  0.50,
		},
		IHI: DiversityConfig{
			HHIWeight:       0.3,
			DiversityWeight: 0.35,
			LogDivisor:      3.5,
			PenaltyWeight:   0.35,
			PenaltyFloor:    0.03,
			PenaltyCeiling:  0.20,
		},
		GDI: GDIConfig{
			PDIWeight:     0.35,
			JDIWeight:     0.20,
			IHIWeight:     0.10,
			SizeWeight:    0.35,
			SizeReference: 50000,
		},
	}
}

const weightTolerance = 1e-6

// Validate checks that a Config is internally consistent.
func (c Config) Validate() error {
	var errs []string

	nonNeg := map[string]float64{
		"pdi.moran_weight":     c.PDI.MoranWeight,
		"pdi.enl_weight":       c.PDI.ENLWeight,
		"pdi.hhi_weight":       c.PDI.HHIWeight,
		"jdi.hhi_weight":       c.JDI.HHIWeight,
		"jdi.diversity_weight": c.JDI.DiversityWeight,
		"jdi.penalty_weight":   c.JDI.PenaltyWeight,
		"ihi.hhi_weight":       c.IHI.HHIWeight,
		"ihi.diversity_weight": c.IHI.DiversityWeight,
		"ihi.penalty_weight":   c.IHI.PenaltyWeight,
		"gdi.pdi_weight":       c.GDI.PDIWeight,
		"gdi.jdi_weight":       c.GDI.JDIWeight,
		"gdi.ihi_weight":       c.GDI.IHIWeight,
		"gdi.size_weight":      c.GDI.SizeWeight,
	}
	for name, w := range nonNeg {
		if w < 0 || math.IsNaN(w) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if s := c.PDI.MoranWeight + c.PDI.ENLWeight + c.PDI.HHIWeight; math.Abs(s-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("pdi weights must sum to 1, got %.4f", s))
	}
	if s := c.GDI.PDIWeight + c.GDI.JDIWeight + c.GDI.IHIWeight + c.GDI.SizeWeight; math.Abs(s-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("gdi weights must sum to 1, got %.4f", s))
	}
	if !(c.PDI.ENLCap > 0) {
		errs = append(errs, "pdi.enl_cap must be > 0")
	}
	if !(c.GDI.SizeReference > 0) {
		errs = append(errs, "gdi.size_reference must be > 0")
	}

	for name, d := range map[string]DiversityConfig{"jdi": c.JDI, "ihi": c.IHI} {
		if !(d.LogDivisor > 0) {
			errs = append(errs, fmt.Sprintf("%s.log_divisor must be > 0", name))
		}
		if d.PenaltyFloor < 0 || d.PenaltyCeiling > 1 || !(d.PenaltyCeiling > d.PenaltyFloor) {
			errs = append(errs, fmt.Sprintf("%s penalty range must satisfy 0 <= floor < ceiling <= 1", name))
		}
	}

	if len(errs) > 0 {
		// Map iteration order is random.
		sort.Strings(errs)
		return eris.Errorf("composite: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadProfile reads a YAML scoring profile. Fields absent from the file keep
// their DefaultConfig values.
func LoadProfile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "composite: read profile %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "composite: parse profile %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, eris.Wrapf(err, "composite: profile %s", path)
	}
	return cfg, nil
}
