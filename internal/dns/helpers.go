package dns

import (
	"strings"

	mdns "github.com/miekg/dns"
)

// Fqdn returns name in absolute form with a trailing dot, lower-cased.
// e.g. "CDN.Example.com" → "cdn.example.com."
func Fqdn(name string) string {
	return mdns.Fqdn(strings.ToLower(strings.TrimSpace(name)))
}

// TrimDot returns name without its trailing dot, lower-cased.
func TrimDot(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// SameName reports whether two names are equal ignoring case and the
// trailing dot.
func SameName(a, b string) bool {
	return TrimDot(a) == TrimDot(b)
}

// InZone reports whether name is zone itself or a subdomain of it.
func InZone(zone, name string) bool {
	return mdns.IsSubDomain(Fqdn(zone), Fqdn(name))
}

// ZoneDepth returns the number of labels in a zone name.
func ZoneDepth(zone string) int {
	return mdns.CountLabel(Fqdn(zone))
}
