// Package desired turns ranked buckets into the DNS records the zone should hold.
package desired

import (
	"cmp"
	"slices"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/selector"
)

// Builder maps buckets onto one record each for a fixed record name.
type Builder struct {
	Log        logr.Logger
	Name       string
	TTL        int
	MaxPerLine int
	Lines      *config.LineMap
	// Families limits which families get records; nil means all.
	Families []measure.Family
}

// RecordType returns the DNS type carrying addresses of family f.
func RecordType(f measure.Family) string {
	if f == measure.IPv6 {
		return "AAAA"
	}
	return "A"
}

// Build returns one record per non-empty bucket, sorted by name, type and
// line. Addresses whose family does not match their bucket are dropped.
// Buckets that map onto the same provider line are merged with the default
// bucket first, then carrier buckets, then any extra tags.
func (b *Builder) Build(buckets selector.Buckets) []dns.DesiredRecord {
	limit := b.MaxPerLine
	if limit <= 0 {
		limit = selector.DefaultMaxPerLine
	}

	byTriple := make(map[dns.Triple]*dns.DesiredRecord)
	for _, key := range mergeOrder(buckets.Keys()) {
		if b.Families != nil && !slices.Contains(b.Families, key.Family) {
			continue
		}

		values := b.filterFamily(key, buckets[key])
		if len(values) == 0 {
			continue
		}

		record := dns.DesiredRecord{
			Name:   dns.TrimDot(b.Name),
			Type:   RecordType(key.Family),
			Line:   b.Lines.Lookup(string(key.Line)),
			TTL:    b.TTL,
			Values: values,
		}

		existing, ok := byTriple[record.Triple()]
		if !ok {
			byTriple[record.Triple()] = &record
			continue
		}
		b.Log.V(1).Info("merging buckets onto one line", "bucket", key.String(), "line", record.Line)
		existing.Values = mergeValues(existing.Values, record.Values, limit)
	}

	records := make([]dns.DesiredRecord, 0, len(byTriple))
	for _, r := range byTriple {
		if len(r.Values) > limit {
			r.Values = r.Values[:limit]
		}
		records = append(records, *r)
	}
	slices.SortFunc(records, func(a, b dns.DesiredRecord) int {
		return cmp.Or(
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.Line, b.Line),
		)
	})
	return records
}

func (b *Builder) filterFamily(key selector.BucketKey, addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		addr, err := measure.ParseAddress(a)
		if err != nil || measure.FamilyOf(addr) != key.Family {
			b.Log.V(1).Info("dropping address from bucket", "bucket", key.String(), "address", a)
			continue
		}
		s := addr.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// mergeOrder puts the default line ahead of everything else. The default
// bucket is ranked over every non-carrier endpoint, so it must win the cap.
func mergeOrder(keys []selector.BucketKey) []selector.BucketKey {
	priority := func(l measure.Line) int {
		switch {
		case l == measure.LineDefault:
			return 0
		case l.IsCarrier():
			return 1
		default:
			return 2
		}
	}
	slices.SortStableFunc(keys, func(a, b selector.BucketKey) int {
		return cmp.Compare(priority(a.Line), priority(b.Line))
	})
	return keys
}

func mergeValues(a, b []string, limit int) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if len(out) >= limit {
			break
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
