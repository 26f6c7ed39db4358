// Package selector ranks loss-free endpoints per (line, family) bucket.
package selector

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
)

// DefaultMaxPerLine bounds each bucket when no limit is configured.
const DefaultMaxPerLine = 50

// BucketKey identifies one (line, family) partition.
type BucketKey struct {
	Line   measure.Line
	Family measure.Family
}

func (k BucketKey) String() string {
	return fmt.Sprintf("%s/%s", k.Line, k.Family)
}

// Compare orders keys by line, then family.
func (k BucketKey) Compare(o BucketKey) int {
	if c := cmp.Compare(k.Line, o.Line); c != 0 {
		return c
	}
	return cmp.Compare(k.Family, o.Family)
}

// Buckets maps each non-empty bucket to its ranked addresses.
type Buckets map[BucketKey][]string

// Keys returns the bucket keys in a stable order.
func (b Buckets) Keys() []BucketKey {
	keys := make([]BucketKey, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, BucketKey.Compare)
	return keys
}

// Select partitions eligible endpoints into buckets, ranks each bucket by
// latency ascending then throughput descending, removes duplicate addresses
// keeping the best-ranked one, and keeps at most maxPerLine addresses.
// Endpoints on a non-carrier line also count towards the default bucket of
// their family. A maxPerLine <= 0 means DefaultMaxPerLine.
func Select(endpoints iter.Seq[measure.Endpoint], maxPerLine int) Buckets {
	if maxPerLine <= 0 {
		maxPerLine = DefaultMaxPerLine
	}

	grouped := make(map[BucketKey][]measure.Endpoint)
	for ep := range endpoints {
		if !ep.Eligible() {
			continue
		}
		family := ep.Family()
		key := BucketKey{Line: ep.Line, Family: family}
		grouped[key] = append(grouped[key], ep)

		if !ep.Line.IsCarrier() && ep.Line != measure.LineDefault {
			def := BucketKey{Line: measure.LineDefault, Family: family}
			grouped[def] = append(grouped[def], ep)
		}
	}

	out := make(Buckets, len(grouped))
	for key, eps := range grouped {
		if addrs := rank(eps, maxPerLine); len(addrs) > 0 {
			out[key] = addrs
		}
	}
	return out
}

func rank(eps []measure.Endpoint, limit int) []string {
	slices.SortStableFunc(eps, func(a, b measure.Endpoint) int {
		if c := cmp.Compare(a.LatencyMs, b.LatencyMs); c != 0 {
			return c
		}
		return cmp.Compare(b.ThroughputMbps, a.ThroughputMbps)
	})

	seen := make(map[string]struct{}, len(eps))
	addrs := make([]string, 0, min(len(eps), limit))
	for _, ep := range eps {
		if len(addrs) == limit {
			break
		}
		addr := ep.Address.String()
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	return addrs
}
