package domainpolicy

import (
	"net/url"
	"strings"
)

// Unknown is the domain key used when a URL has no parseable host.
const Unknown = "unknown"

// DomainKey reduces a URL to the registrable domain the policy is keyed on.
// Japanese government hosts keep three labels (city.example.lg.jp ->
// example.lg.jp, www.meti.go.jp -> meti.go.jp); everything else keeps two.
func DomainKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Unknown
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return Unknown
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}

	keep := 2
	if sld := labels[len(labels)-2]; sld == "go" || sld == "lg" {
		keep = 3
	}
	if len(labels) < keep {
		keep = len(labels)
	}
	return strings.Join(labels[len(labels)-keep:], ".")
}
