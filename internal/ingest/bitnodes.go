package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/model"
)

// DefaultBitnodesURL is the public Bitnodes API root.
const DefaultBitnodesURL = "https://bitnodes.io/api/v1"

// Positions inside a Bitnodes node array:
// [protocol, user_agent, connected_since, services, height, hostname, city,
// country, latitude, longitude, timezone, asn, organization].
const (
	bnCity    = 6
	bnCountry = 7
	bnLat     = 8
	bnLon     = 9
	bnASN     = 11
	bnOrg     = 12
)

// BitnodesClient fetches Bitcoin node snapshots.
type BitnodesClient struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
}

// NewBitnodesClient creates a client. Empty baseURL selects
// DefaultBitnodesURL; a nil fetcher selects a default one.
func NewBitnodesClient(f *Fetcher, baseURL, apiKey string) *BitnodesClient {
	if f == nil {
		f = NewFetcher(FetchOptions{})
	}
	if baseURL == "" {
		baseURL = DefaultBitnodesURL
	}
	return &BitnodesClient{fetcher: f, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type bitnodesSnapshot struct {
	Timestamp int64            `json:"timestamp"`
	Nodes     map[string][]any `json:"nodes"`
}

// LatestSnapshot downloads the latest snapshot. Nodes without geolocation are
// counted as missing. Points are ordered by node address.
func (c *BitnodesClient) LatestSnapshot(ctx context.Context, opts Options) (model.PointSet, *Stats, error) {
	if opts.Network == "" {
		opts.Network = "bitcoin"
	}

	var header http.Header
	if c.apiKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.apiKey}}
	}
	body, err := c.fetcher.get(ctx, c.baseURL+"/snapshots/latest/", header)
	if err != nil {
		return model.PointSet{}, nil, eris.Wrap(err, "ingest: bitnodes snapshot")
	}
	defer body.Close() //nolint:errcheck

	var snap bitnodesSnapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return model.PointSet{}, nil, eris.Wrap(err, "ingest: decode bitnodes snapshot")
	}

	addrs := make([]string, 0, len(snap.Nodes))
	for addr := range snap.Nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	b := &recordBuilder{opts: opts}
	for _, addr := range addrs {
		n := snap.Nodes[addr]
		b.add(record{
			id:      addr,
			lat:     attr(n, bnLat),
			lon:     attr(n, bnLon),
			country: attr(n, bnCountry),
			org:     attr(n, bnOrg),
			asname:  attr(n, bnASN),
			city:    attr(n, bnCity),
		})
	}

	ps, stats, err := b.pointSet()
	if err != nil {
		return ps, stats, err
	}
	if snap.Timestamp > 0 {
		ps.CapturedAt = time.Unix(snap.Timestamp, 0).UTC()
	}
	zap.L().Info("ingest: bitnodes snapshot loaded",
		zap.Int("nodes", len(addrs)),
		zap.Int("loaded", stats.Loaded),
		zap.Int("skipped", stats.Skipped()),
	)
	return ps, stats, nil
}

// attr renders element i of a node array as a string; nulls and missing
// elements become "".
func attr(n []any, i int) string {
	if i >= len(n) || n[i] == nil {
		return ""
	}
	switch v := n[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
