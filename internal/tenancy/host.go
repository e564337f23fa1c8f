package tenancy

import (
	"net"
	"strings"
)

// CandidateKind tells how a host should be looked up.
type CandidateKind int

const (
	// CandidateNone means the host belongs to the main or marketing site.
	CandidateNone CandidateKind = iota
	// CandidateSlug means the host is a subdomain of the base domain.
	CandidateSlug
	// CandidateCustomDomain means the host is unrelated to the base domain.
	CandidateCustomDomain
)

// Candidate is the tenant identifier extracted from a request host.
type Candidate struct {
	Kind  CandidateKind
	Value string
}

var reservedLabels = map[string]bool{
	"":    true,
	"www": true,
	"app": true,
}

// ParseHost extracts a tenant candidate from host. The port is stripped and
// the comparison is case-insensitive.
func ParseHost(host, baseDomain string) Candidate {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	baseDomain = strings.ToLower(strings.TrimSuffix(baseDomain, "."))

	if host == "" {
		return Candidate{}
	}
	if host == baseDomain {
		return Candidate{}
	}

	suffix := "." + baseDomain
	if baseDomain == "" || !strings.HasSuffix(host, suffix) {
		return Candidate{Kind: CandidateCustomDomain, Value: host}
	}

	prefix := strings.TrimSuffix(host, suffix)
	labels := strings.Split(prefix, ".")
	slug := labels[len(labels)-1]
	if reservedLabels[slug] {
		return Candidate{}
	}
	return Candidate{Kind: CandidateSlug, Value: slug}
}
