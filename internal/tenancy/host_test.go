package tenancy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neomorfeo/pluginiq/internal/tenancy"
)

func TestParseHost(t *testing.T) {
	const base = "basedomain.com"

	cases := []struct {
		host string
		want tenancy.Candidate
	}{
		{"acme.basedomain.com", tenancy.Candidate{Kind: tenancy.CandidateSlug, Value: "acme"}},
		{"acme.basedomain.com:8080", tenancy.Candidate{Kind: tenancy.CandidateSlug, Value: "acme"}},
		{"ACME.BaseDomain.com", tenancy.Candidate{Kind: tenancy.CandidateSlug, Value: "acme"}},
		{"basedomain.com", tenancy.Candidate{}},
		{"basedomain.com:443", tenancy.Candidate{}},
		{"www.basedomain.com", tenancy.Candidate{}},
		{"app.basedomain.com", tenancy.Candidate{}},
		{"", tenancy.Candidate{}},
		{"customtenant.io", tenancy.Candidate{Kind: tenancy.CandidateCustomDomain, Value: "customtenant.io"}},
		{"shop.customtenant.io:3000", tenancy.Candidate{Kind: tenancy.CandidateCustomDomain, Value: "shop.customtenant.io"}},
		{"notbasedomain.com", tenancy.Candidate{Kind: tenancy.CandidateCustomDomain, Value: "notbasedomain.com"}},
	}

	for _, tc := range cases {
		t.Run(tc.host, func(t *testing.T) {
			assert.Equal(t, tc.want, tenancy.ParseHost(tc.host, base))
		})
	}
}
