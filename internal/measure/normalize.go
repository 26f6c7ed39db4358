package measure

import (
	"fmt"
	"iter"
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

// Row is one raw measurement row keyed by column name.
type Row map[string]string

// Measurement table columns, in source order.
const (
	ColOrdinal    = "ordinal"
	ColLine       = "line"
	ColAddress    = "address"
	ColLoss       = "loss"
	ColLatency    = "latency"
	ColThroughput = "throughput"
	ColBandwidth  = "bandwidth"
	ColColo       = "colo"
	ColTime       = "time"
)

// Columns is the fixed row schema.
var Columns = []string{
	ColOrdinal, ColLine, ColAddress, ColLoss, ColLatency,
	ColThroughput, ColBandwidth, ColColo, ColTime,
}

// lineAliases maps source line labels to canonical tags.
var lineAliases = map[string]Line{
	"电信":      LineTelecom,
	"ct":      LineTelecom,
	"telecom": LineTelecom,
	"联通":      LineUnicom,
	"cu":      LineUnicom,
	"unicom":  LineUnicom,
	"移动":      LineMobile,
	"cm":      LineMobile,
	"mobile":  LineMobile,
	"默认":      LineDefault,
	"多线":      LineDefault,
	"全网":      LineDefault,
	"default": LineDefault,
}

var (
	lossSuffixes       = []string{"%"}
	latencySuffixes    = []string{"ms"}
	throughputSuffixes = []string{"mb/s", "mbps", "mbit/s"}
)

// Stats counts rows seen and dropped by a Normalizer.
type Stats struct {
	Seen    int
	Dropped int
}

// Normalizer converts raw rows into Endpoints. It is not safe for
// concurrent use.
type Normalizer struct {
	log   logr.Logger
	extra map[string]Line
	stats Stats
}

// NewNormalizer returns a Normalizer that, besides the built-in carrier
// aliases, keeps the given extra tags as lines of their own.
func NewNormalizer(log logr.Logger, extraTags ...string) *Normalizer {
	extra := make(map[string]Line, len(extraTags))
	for _, tag := range extraTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, builtin := lineAliases[tag]; builtin {
			continue
		}
		extra[tag] = Line(tag)
	}
	return &Normalizer{log: log, extra: extra}
}

// Stats returns the counters accumulated so far.
func (n *Normalizer) Stats() Stats {
	return n.stats
}

// Endpoints lazily normalizes rows. Malformed rows are skipped and counted.
func (n *Normalizer) Endpoints(rows iter.Seq[Row]) iter.Seq[Endpoint] {
	return func(yield func(Endpoint) bool) {
		for row := range rows {
			n.stats.Seen++
			ep, err := n.parseRow(row)
			if err != nil {
				n.stats.Dropped++
				n.log.V(1).Info("dropping malformed row", "reason", err.Error(), "ordinal", row[ColOrdinal])
				continue
			}
			if !yield(ep) {
				return
			}
		}
	}
}

// Line canonicalizes a source line label. It never fails: anything it does
// not recognize is the default line.
func (n *Normalizer) Line(raw string) Line {
	key := strings.ToLower(strings.TrimSpace(raw))
	if l, ok := lineAliases[key]; ok {
		return l
	}
	if l, ok := n.extra[key]; ok {
		return l
	}
	return LineDefault
}

func (n *Normalizer) parseRow(row Row) (Endpoint, error) {
	if len(row) != len(Columns) {
		return Endpoint{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(row))
	}
	for _, col := range Columns {
		if _, ok := row[col]; !ok {
			return Endpoint{}, fmt.Errorf("missing column %q", col)
		}
	}

	rawLine := strings.TrimSpace(row[ColLine])
	if rawLine == "" {
		return Endpoint{}, fmt.Errorf("empty line")
	}
	addr, err := ParseAddress(row[ColAddress])
	if err != nil {
		return Endpoint{}, err
	}

	return Endpoint{
		Address:        addr,
		Line:           n.Line(rawLine),
		RawLine:        rawLine,
		PacketLoss:     parseLoss(row[ColLoss]),
		LatencyMs:      parseLatency(row[ColLatency]),
		ThroughputMbps: parseThroughput(row[ColThroughput]),
		Bandwidth:      strings.TrimSpace(row[ColBandwidth]),
		Colo:           strings.TrimSpace(row[ColColo]),
		MeasuredAt:     strings.TrimSpace(row[ColTime]),
	}, nil
}

// ParseAddress parses an IP literal, accepting IPv6 in brackets. Zoned
// addresses are rejected.
func ParseAddress(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if addr.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("invalid address %q: zoned addresses are not routable", s)
	}
	return addr.Unmap(), nil
}

// parseLoss returns the loss fraction. Percentages are divided by 100;
// unparsable values count as total loss.
func parseLoss(s string) float64 {
	num, hadUnit := stripUnit(s, lossSuffixes)
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 1
	}
	if hadUnit || v > 1 {
		v /= 100
	}
	return min(v, 1)
}

// parseLatency returns milliseconds; unparsable values are the slowest possible.
func parseLatency(s string) float64 {
	num, _ := stripUnit(s, latencySuffixes)
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return math.Inf(1)
	}
	return v
}

// parseThroughput returns Mbps; unparsable values are the lowest possible.
func parseThroughput(s string) float64 {
	num, _ := stripUnit(s, throughputSuffixes)
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func stripUnit(s string, suffixes []string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(s, suffix)), true
		}
	}
	return s, false
}
