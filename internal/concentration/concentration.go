// Package concentration measures how concentrated a frequency table is:
// Herfindahl-Hirschman index over grid cells or categories, and Shannon
// entropy with its effective-number form.
package concentration

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// HHI band cutoffs.
const (
	LowConcentration      = 0.15
	ModerateConcentration = 0.25
)

// Share is one entry of a frequency table with its share of the total.
type Share struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// Distribution tallies non-blank labels. Labels are trimmed; blank labels are
// skipped.
func Distribution(labels []string) model.Counts {
	m := make(map[string]int)
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		m[l]++
	}
	return model.NewCounts(m)
}

// HHI returns the sum of squared shares, 0 for an empty table.
func HHI(c model.Counts) float64 {
	var h float64
	for _, s := range c.Shares() {
		h += s * s
	}
	return h
}

// Entropy returns the Shannon entropy of the table in nats.
func Entropy(c model.Counts) float64 {
	return stat.Entropy(c.Shares())
}

// TopShares returns the n largest entries.
func TopShares(c model.Counts, n int) []Share {
	if n > len(c.Items) {
		n = len(c.Items)
	}
	shares := c.Shares()
	out := make([]Share, n)
	for i := range n {
		out[i] = Share{Key: c.Items[i].Key, Count: c.Items[i].Count, Share: shares[i]}
	}
	return out
}

// HHIResult is the outcome of SpatialHHI.
type HHIResult struct {
	HHI                float64 `json:"hhi"`
	Cells              int     `json:"cells_occupied"`
	Total              int     `json:"total"`
	MaxShare           float64 `json:"max_cell_share"`
	TopCells           []Share `json:"top_5_cells"`
	MinTheoretical     float64 `json:"min_hhi_theoretical"`
	ConcentrationRatio float64 `json:"concentration_ratio"`
	Interpretation     string  `json:"interpretation"`
}

// SpatialHHI computes the Herfindahl-Hirschman index over occupied cells.
// The result lies in [1/cells, 1].
func SpatialHHI(c model.Counts) (*HHIResult, error) {
	if c.Total == 0 || len(c.Items) == 0 {
		return nil, geoerr.InsufficientDataf("spatial_hhi", "no occupied cells")
	}

	h := HHI(c)
	minHHI := 1 / float64(c.Total)
	res := &HHIResult{
		HHI:                h,
		Cells:              len(c.Items),
		Total:              c.Total,
		MaxShare:           float64(c.Items[0].Count) / float64(c.Total),
		TopCells:           TopShares(c, 5),
		MinTheoretical:     minHHI,
		ConcentrationRatio: h / minHHI,
		Interpretation:     InterpretHHI(h, len(c.Items)),
	}
	return res, nil
}

// InterpretHHI labels an HHI value.
func InterpretHHI(h float64, cells int) string {
	switch {
	case h < LowConcentration:
		return fmt.Sprintf("Low concentration across %d cells (HHI=%.3f)", cells, h)
	case h < ModerateConcentration:
		return fmt.Sprintf("Moderate concentration across %d cells (HHI=%.3f)", cells, h)
	default:
		return fmt.Sprintf("High concentration across %d cells (HHI=%.3f)", cells, h)
	}
}

// MetricResult converts the result to the serialized metric form.
func (r *HHIResult) MetricResult() model.MetricResult {
	return model.MetricResult{
		Name:           model.MetricSpatialHHI,
		Value:          r.HHI,
		Interpretation: r.Interpretation,
		Metadata: map[string]any{
			"cells_occupied":      r.Cells,
			"max_cell_share":      r.MaxShare,
			"top_5_cells":         r.TopCells,
			"min_hhi_theoretical": r.MinTheoretical,
			"concentration_ratio": r.ConcentrationRatio,
		},
	}
}

// ENLResult is the outcome of EffectiveNumLocations.
type ENLResult struct {
	ENL               float64 `json:"enl"`
	Entropy           float64 `json:"entropy"`
	Cells             int     `json:"total_locations"`
	Evenness          float64 `json:"evenness"`
	MaxEntropy        float64 `json:"max_entropy_possible"`
	NormalizedEntropy float64 `json:"normalized_entropy"`
	Interpretation    string  `json:"interpretation"`
}

// EffectiveNumLocations returns exp(H) where H is the Shannon entropy of the
// cell shares. The result lies in [1, cells].
func EffectiveNumLocations(c model.Counts) (*ENLResult, error) {
	if c.Total == 0 || len(c.Items) == 0 {
		return nil, geoerr.InsufficientDataf("effective_num_locations", "no occupied cells")
	}

	cells := len(c.Items)
	h := Entropy(c)
	enl := math.Min(math.Max(math.Exp(h), 1), float64(cells))

	res := &ENLResult{
		ENL:        enl,
		Entropy:    h,
		Cells:      cells,
		Evenness:   enl / float64(cells),
		MaxEntropy: math.Log(float64(cells)),
	}
	if cells > 1 {
		res.NormalizedEntropy = h / res.MaxEntropy
	}
	res.Interpretation = InterpretENL(enl, cells)
	return res, nil
}

// InterpretENL labels an ENL value by its evenness (ENL / cells).
func InterpretENL(enl float64, cells int) string {
	evenness := enl / float64(cells)
	switch {
	case evenness > 0.8:
		return fmt.Sprintf("Very even distribution (ENL=%.1f of %d cells)", enl, cells)
	case evenness > 0.5:
		return fmt.Sprintf("Moderately even distribution (ENL=%.1f of %d cells)", enl, cells)
	default:
		return fmt.Sprintf("Uneven distribution (ENL=%.1f of %d cells)", enl, cells)
	}
}

// MetricResult converts the result to the serialized metric form.
func (r *ENLResult) MetricResult() model.MetricResult {
	return model.MetricResult{
		Name:           model.MetricENL,
		Value:          r.ENL,
		Interpretation: r.Interpretation,
		Metadata: map[string]any{
			"entropy":              r.Entropy,
			"total_locations":      r.Cells,
			"evenness":             r.Evenness,
			"max_entropy_possible": r.MaxEntropy,
			"normalized_entropy":   r.NormalizedEntropy,
		},
	}
}
