package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		org, asname, isp string
		hosting          bool
		want             string
	}{
		{"aws org", "Amazon.com, Inc.", "", "", false, ProviderAWS},
		{"aws asname", "", "AMAZON-02", "", true, ProviderAWS},
		{"gcp", "Google LLC", "", "", false, ProviderGoogle},
		{"azure via isp", "", "", "Microsoft Corporation", false, ProviderAzure},
		{"hetzner", "Hetzner Online GmbH", "", "", true, ProviderHetzner},
		{"ovh lower case", "ovh sas", "", "", true, ProviderOVH},
		{"digitalocean", "DigitalOcean, LLC", "", "", true, ProviderDigitalOcean},
		{"starlink", "", "SPACEX-STARLINK", "", false, ProviderStarlink},
		{"first rule wins", "Amazon", "", "Google Fiber", false, ProviderAWS},
		{"unknown hosting", "Leaseweb", "", "", true, ProviderOtherCloud},
		{"residential", "Comcast Cable", "", "Comcast", false, ProviderHomeISP},
		{"empty", "", "", "", false, ProviderHomeISP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CategorizeProvider(tt.org, tt.asname, tt.isp, tt.hosting))
		})
	}
}
