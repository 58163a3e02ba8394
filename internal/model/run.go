package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the outcome of an archived analysis run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one archived analysis of one network snapshot.
type Run struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Network   string          `json:"network"`
	NodeCount int             `json:"node_count"`
	Status    RunStatus       `json:"status"`
	Summary   *RunSummary     `json:"summary,omitempty"`
	Report    json.RawMessage `json:"report,omitempty"`
	Error     *RunError       `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunSummary holds the headline numbers of a run so listings do not need to
// decode the full report.
type RunSummary struct {
	GDI            float64 `json:"gdi"`
	PDI            float64 `json:"pdi"`
	JDI            float64 `json:"jdi"`
	IHI            float64 `json:"ihi"`
	MoransI        float64 `json:"morans_i"`
	SpatialHHI     float64 `json:"spatial_hhi"`
	ENL            float64 `json:"enl"`
	Interpretation string  `json:"interpretation,omitempty"`
	HasComposite   bool    `json:"has_composite"`
	ThresholdKm    float64 `json:"threshold_km"`
	Resolution     int     `json:"resolution"`
	DurationMs     int64   `json:"duration_ms"`
}

// RunError records why an analysis failed.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
