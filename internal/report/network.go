// Package report renders analysis results for people and for the dashboard
// frontend: JSON documents, spreadsheets, text summaries and cell GeoJSON.
package report

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/geobeat/gdi-cli/internal/analysis"
	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// NetworkMeta is the display metadata of a network.
type NetworkMeta struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	LogoURL string `json:"logoUrl"`
	Type    string `json:"type"`
}

var knownNetworks = map[string]NetworkMeta{
	"ethereum": {"Ethereum", "ETH", "https://cryptologos.cc/logos/ethereum-eth-logo.svg", "L1"},
	"polygon":  {"Polygon", "MATIC", "https://cryptologos.cc/logos/polygon-matic-logo.svg", "L2"},
	"filecoin": {"Filecoin", "FIL", "https://cryptologos.cc/logos/filecoin-fil-logo.svg", "L1"},
	"celo":     {"Celo", "CELO", "https://cryptologos.cc/logos/celo-celo-logo.svg", "L2"},
	"bitcoin":  {"Bitcoin", "BTC", "https://cryptologos.cc/logos/bitcoin-btc-logo.svg", "L1"},
}

// Metadata returns display metadata for a network id. Unknown networks get a
// title-cased name, an upper-cased symbol and type L1.
func Metadata(network string) NetworkMeta {
	id := strings.ToLower(strings.TrimSpace(network))
	if m, ok := knownNetworks[id]; ok {
		return m
	}
	return NetworkMeta{
		Name:   cases.Title(language.English).String(strings.ReplaceAll(id, "_", " ")),
		Symbol: strings.ToUpper(id),
		Type:   "L1",
	}
}

// Trend directions.
const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// trendEpsilon is the smallest GDI change reported as a trend.
const trendEpsilon = 0.5

// NetworkRecord is the flat camelCase record consumed by the dashboard.
type NetworkRecord struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	LogoURL      string  `json:"logoUrl"`
	Type         string  `json:"type"`
	GDI          float64 `json:"gdi"`
	PDI          float64 `json:"pdi"`
	JDI          float64 `json:"jdi"`
	IHI          float64 `json:"ihi"`
	Trend        string  `json:"trend"`
	TrendValue   string  `json:"trendValue"`
	NodeCount    int     `json:"nodeCount"`
	MoransI      float64 `json:"moransI"`
	SpatialHHI   float64 `json:"spatialHHI"`
	ENL          float64 `json:"enl"`
	CountryHHI   float64 `json:"countryHHI"`
	NumCountries int     `json:"numCountries"`
	OrgHHI       float64 `json:"orgHHI"`
	NumOrgs      int     `json:"numOrgs"`
}

// NewNetworkRecord flattens a report. previousGDI, when set, is the GDI of
// the preceding run of the same network and drives the trend fields. Scores
// are rounded to one decimal, ratios to four.
func NewNetworkRecord(rep *analysis.Report, previousGDI *float64) (NetworkRecord, error) {
	if rep == nil || rep.Composite == nil {
		return NetworkRecord{}, geoerr.InsufficientDataf("network_record", "report has no composite scores")
	}
	c := rep.Composite
	meta := Metadata(rep.Network)

	rec := NetworkRecord{
		ID:           strings.ToLower(rep.Network),
		Name:         meta.Name,
		Symbol:       meta.Symbol,
		LogoURL:      meta.LogoURL,
		Type:         meta.Type,
		GDI:          round(c.GDI, 1),
		PDI:          round(c.PDI.Score, 1),
		JDI:          round(c.JDI.Score, 1),
		IHI:          round(c.IHI.Score, 1),
		Trend:        TrendNeutral,
		TrendValue:   "N/A",
		NodeCount:    rep.TotalNodes,
		MoransI:      round(rep.Metrics[model.MetricMoransI].Value, 4),
		SpatialHHI:   round(rep.Metrics[model.MetricSpatialHHI].Value, 4),
		ENL:          round(rep.Metrics[model.MetricENL].Value, 1),
		CountryHHI:   round(c.JDI.HHI, 4),
		NumCountries: c.JDI.Categories,
		OrgHHI:       round(c.IHI.HHI, 4),
		NumOrgs:      c.IHI.Categories,
	}
	if previousGDI != nil {
		rec.Trend, rec.TrendValue = trend(c.GDI - *previousGDI)
	}
	return rec, nil
}

// ToNetworkRecords flattens reports in order, skipping none.
func ToNetworkRecords(reps []*analysis.Report) ([]NetworkRecord, error) {
	out := make([]NetworkRecord, 0, len(reps))
	for _, r := range reps {
		rec, err := NewNetworkRecord(r, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func trend(delta float64) (string, string) {
	switch {
	case delta >= trendEpsilon:
		return TrendUp, formatSigned(delta)
	case delta <= -trendEpsilon:
		return TrendDown, formatSigned(delta)
	default:
		return TrendNeutral, formatSigned(delta)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
