package ingest

import "strings"

// Provider buckets used when Options.ProviderBuckets is set.
const (
	ProviderAWS          = "AWS"
	ProviderGoogle       = "Google Cloud"
	ProviderAzure        = "Azure"
	ProviderHetzner      = "Hetzner"
	ProviderOVH          = "OVH"
	ProviderDigitalOcean = "DigitalOcean"
	ProviderStarlink     = "Starlink"
	ProviderOtherCloud   = "Other Cloud"
	ProviderHomeISP      = "Home/ISP"
)

var providerRules = []struct {
	bucket   string
	keywords []string
}{
	{ProviderAWS, []string{"AWS", "AMAZON"}},
	{ProviderGoogle, []string{"GOOGLE", "GCP"}},
	{ProviderAzure, []string{"AZURE", "MICROSOFT"}},
	{ProviderHetzner, []string{"HETZNER"}},
	{ProviderOVH, []string{"OVH"}},
	{ProviderDigitalOcean, []string{"DIGITALOCEAN"}},
	{ProviderStarlink, []string{"STARLINK", "SPACEX"}},
}

// CategorizeProvider maps free-text ownership fields to a coarse hosting
// bucket. The first matching rule wins; unmatched hosting addresses fall into
// Other Cloud and everything else into Home/ISP.
func CategorizeProvider(org, asname, isp string, hosting bool) string {
	text := strings.ToUpper(strings.Join([]string{org, asname, isp}, " "))
	for _, r := range providerRules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.bucket
			}
		}
	}
	if hosting {
		return ProviderOtherCloud
	}
	return ProviderHomeISP
}
