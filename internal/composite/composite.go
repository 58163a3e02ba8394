// Package composite combines spatial, jurisdictional and infrastructure
// metrics into the PDI, JDI, IHI and GDI decentralization indices. All scores
// are on a 0-100 scale where higher means more decentralized.
package composite

import (
	"math"

	"github.com/geobeat/gdi-cli/internal/concentration"
	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// topCategories is how many leading categories a diversity score reports.
const topCategories = 3

// PDIInputs are the spatial metrics the Physical Distribution Index blends.
type PDIInputs struct {
	MoransI    float64
	ENL        float64
	SpatialHHI float64
}

// PDIComponents are the weighted contributions on the 0-100 scale.
type PDIComponents struct {
	MoransContribution float64 `json:"morans_contribution"`
	ENLContribution    float64 `json:"enl_contribution"`
	HHIContribution    float64 `json:"hhi_contribution"`
}

// PDIScore is the Physical Distribution Index.
type PDIScore struct {
	Score          float64       `json:"pdi"`
	MoransI        float64       `json:"morans_i"`
	ENL            float64       `json:"enl"`
	SpatialHHI     float64       `json:"spatial_hhi"`
	Components     PDIComponents `json:"components"`
	Interpretation string        `json:"interpretation"`
}

// DiversityComponents are the weighted terms of a diversity index on the
// 0-100 scale. Penalty is subtracted.
type DiversityComponents struct {
	HHIContribution       float64 `json:"hhi_contribution"`
	DiversityContribution float64 `json:"diversity_contribution"`
	ConcentrationPenalty  float64 `json:"concentration_penalty"`
}

// DiversityScore is a categorical diversity index. JDI and IHI share it.
type DiversityScore struct {
	Score          float64               `json:"score"`
	HHI            float64               `json:"hhi"`
	Categories     int                   `json:"categories"`
	TopShare       float64               `json:"top_share"`
	Top            []concentration.Share `json:"top"`
	Components     DiversityComponents   `json:"components"`
	Interpretation string                `json:"interpretation"`
}

// GDIScore is the Geographic Decentralization Index and its sub-indices.
type GDIScore struct {
	GDI              float64         `json:"gdi"`
	Interpretation   string          `json:"interpretation"`
	TotalNodes       int             `json:"total_nodes"`
	NetworkSizeScore float64         `json:"network_size_score"`
	Weights          GDIConfig       `json:"weights"`
	PDI              *PDIScore       `json:"pdi"`
	JDI              *DiversityScore `json:"jdi"`
	IHI              *DiversityScore `json:"ihi"`
}

// PDI computes 100 * [w_I*clamp(1-I) + w_E*min(1, ENL/cap) + w_H*(1-HHI)].
func PDI(in PDIInputs, cfg PDIConfig) (*PDIScore, error) {
	for name, v := range map[string]float64{"morans_i": in.MoransI, "enl": in.ENL, "spatial_hhi": in.SpatialHHI} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, geoerr.Validationf("pdi", "%s is not finite", name)
		}
	}
	if !(cfg.ENLCap > 0) {
		return nil, geoerr.Validationf("pdi", "enl cap must be positive, got %v", cfg.ENLCap)
	}

	moranNorm := clamp(1-in.MoransI, 0, 1)
	enlNorm := clamp(in.ENL/cfg.ENLCap, 0, 1)
	hhiNorm := clamp(1-in.SpatialHHI, 0, 1)

	c := PDIComponents{
		MoransContribution: 100 * cfg.MoranWeight * moranNorm,
		ENLContribution:    100 * cfg.ENLWeight * enlNorm,
		HHIContribution:    100 * cfg.HHIWeight * hhiNorm,
	}
	score := c.MoransContribution + c.ENLContribution + c.HHIContribution

	return &PDIScore{
		Score:          score,
		MoransI:        in.MoransI,
		ENL:            in.ENL,
		SpatialHHI:     in.SpatialHHI,
		Components:     c,
		Interpretation: InterpretPDI(score),
	}, nil
}

// JDI scores the country distribution.
func JDI(countries model.Counts, cfg DiversityConfig) (*DiversityScore, error) {
	return diversity("jdi", countries, cfg)
}

// IHI scores the organization (hosting provider) distribution.
func IHI(orgs model.Counts, cfg DiversityConfig) (*DiversityScore, error) {
	return diversity("ihi", orgs, cfg)
}

func diversity(op string, c model.Counts, cfg DiversityConfig) (*DiversityScore, error) {
	if c.Total == 0 || c.Len() == 0 {
		return nil, geoerr.InsufficientDataf(op, "no labelled points")
	}
	if !(cfg.LogDivisor > 0) || !(cfg.PenaltyCeiling > cfg.PenaltyFloor) {
		return nil, geoerr.Validationf(op, "invalid diversity config")
	}

	hhi := concentration.HHI(c)
	top := concentration.TopShares(c, topCategories)
	topShare := top[0].Share

	comp := DiversityComponents{
		HHIContribution:       100 * cfg.HHIWeight * (1 - hhi),
		DiversityContribution: 100 * cfg.DiversityWeight * math.Min(1, math.Log10(float64(c.Len()))/cfg.LogDivisor),
		ConcentrationPenalty: 100 * cfg.PenaltyWeight *
			clamp((topShare-cfg.PenaltyFloor)/(cfg.PenaltyCeiling-cfg.PenaltyFloor), 0, 1),
	}
	score := clamp(comp.HHIContribution+comp.DiversityContribution-comp.ConcentrationPenalty, 0, 100)

	return &DiversityScore{
		Score:          score,
		HHI:            hhi,
		Categories:     c.Len(),
		TopShare:       topShare,
		Top:            top,
		Components:     comp,
		Interpretation: InterpretDiversity(score),
	}, nil
}

// NetworkSizeScore rewards absolute node count: 100 * min(1, sqrt(n/ref)).
func NetworkSizeScore(totalNodes int, reference float64) float64 {
	if totalNodes <= 0 || !(reference > 0) {
		return 0
	}
	return 100 * math.Min(1, math.Sqrt(float64(totalNodes)/reference))
}

// GDI blends the three sub-indices with the network size score. Every
// sub-index is required.
func GDI(pdi *PDIScore, jdi, ihi *DiversityScore, totalNodes int, cfg GDIConfig) (*GDIScore, error) {
	if pdi == nil || jdi == nil || ihi == nil {
		return nil, geoerr.InsufficientDataf("gdi", "all of pdi, jdi and ihi are required")
	}
	if totalNodes <= 0 {
		return nil, geoerr.Validationf("gdi", "total nodes must be positive, got %d", totalNodes)
	}

	size := NetworkSizeScore(totalNodes, cfg.SizeReference)
	gdi := cfg.PDIWeight*pdi.Score +
		cfg.JDIWeight*jdi.Score +
		cfg.IHIWeight*ihi.Score +
		cfg.SizeWeight*size

	return &GDIScore{
		GDI:              gdi,
		Interpretation:   InterpretGDI(gdi),
		TotalNodes:       totalNodes,
		NetworkSizeScore: size,
		Weights:          cfg,
		PDI:              pdi,
		JDI:              jdi,
		IHI:              ihi,
	}, nil
}

// InterpretPDI labels a PDI score.
func InterpretPDI(score float64) string {
	switch {
	case score >= 80:
		return "Highly dispersed"
	case score >= 60:
		return "Moderately dispersed"
	default:
		return "Concentrated"
	}
}

// InterpretDiversity labels a JDI or IHI score.
func InterpretDiversity(score float64) string {
	switch {
	case score >= 75:
		return "Low concentration"
	case score >= 50:
		return "Moderate concentration"
	case score >= 25:
		return "High concentration"
	default:
		return "Very high concentration"
	}
}

// InterpretGDI labels a GDI score.
func InterpretGDI(score float64) string {
	switch {
	case score >= 80:
		return "Highly decentralized"
	case score >= 60:
		return "Moderately decentralized"
	case score >= 40:
		return "Weakly decentralized"
	default:
		return "Centralized"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
