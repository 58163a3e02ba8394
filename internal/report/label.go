package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/geobeat/gdi-cli/internal/model"
)

// Digest fingerprints a point set's coordinates and labels. Equal inputs in
// the same order give equal digests.
func Digest(ps model.PointSet) string {
	h := sha256.New()
	for _, p := range ps.Points {
		fmt.Fprintf(h, "%.6f,%.6f,%s,%s\n", p.Latitude, p.Longitude, p.Country, p.Organization)
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// RunLabel names a run after its inputs, e.g.
// "ethereum_6958nodes_500km_s2-9_b4c6b09a".
func RunLabel(network string, nodes int, thresholdKm float64, resolution int, digest string) string {
	return fmt.Sprintf("%s_%dnodes_%skm_s2-%d_%s",
		strings.ToLower(network), nodes, strconv.FormatFloat(thresholdKm, 'f', -1, 64), resolution, digest)
}

func formatSigned(v float64) string {
	return fmt.Sprintf("%+.1f", v)
}
