package model

// Metric names used as keys in reports and the run archive.
const (
	MetricMoransI    = "morans_i"
	MetricSpatialHHI = "spatial_hhi"
	MetricENL        = "effective_num_locations"
	MetricANN        = "average_nearest_neighbor"
)

// MetricResult is the serialized outcome of one spatial metric.
type MetricResult struct {
	Name           string         `json:"metric"`
	Value          float64        `json:"value"`
	PValue         *float64       `json:"p_value"`
	ZScore         *float64       `json:"z_score"`
	Interpretation string         `json:"interpretation"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Float returns a pointer to v, for the optional fields of MetricResult.
func Float(v float64) *float64 { return &v }

// Composite index names used in the metric history and score gauges.
const (
	IndexGDI = "gdi"
	IndexPDI = "pdi"
	IndexJDI = "jdi"
	IndexIHI = "ihi"
)
