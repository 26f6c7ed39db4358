// Package measure turns raw measurement rows into typed candidate endpoints.
package measure

import (
	"net/netip"
)

// Family is the address family of an endpoint.
type Family string

const (
	IPv4 Family = "ipv4"
	IPv6 Family = "ipv6"
)

// FamilyOf derives the family from an address. IPv4-mapped IPv6 addresses
// count as IPv4.
func FamilyOf(addr netip.Addr) Family {
	if addr.Unmap().Is4() {
		return IPv4
	}
	return IPv6
}

// Line is a canonical routing-view tag.
type Line string

const (
	LineDefault Line = "default"
	LineTelecom Line = "telecom"
	LineUnicom  Line = "unicom"
	LineMobile  Line = "mobile"
)

// IsCarrier reports whether l is one of the carrier-specific lines.
func (l Line) IsCarrier() bool {
	switch l {
	case LineTelecom, LineUnicom, LineMobile:
		return true
	}
	return false
}

// Endpoint is one measured candidate.
type Endpoint struct {
	Address        netip.Addr
	Line           Line
	RawLine        string
	PacketLoss     float64 // fraction in [0,1]
	LatencyMs      float64
	ThroughputMbps float64
	Bandwidth      string
	Colo           string
	MeasuredAt     string
}

// Family returns the address family of the endpoint.
func (e Endpoint) Family() Family {
	return FamilyOf(e.Address)
}

// Eligible reports whether the endpoint may be selected. Only loss-free
// endpoints qualify.
func (e Endpoint) Eligible() bool {
	return e.PacketLoss == 0
}
