package selector

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"slices"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
)

func ep(line measure.Line, addr string, loss, latency, speed float64) measure.Endpoint {
	return measure.Endpoint{
		Address:        netip.MustParseAddr(addr),
		Line:           line,
		PacketLoss:     loss,
		LatencyMs:      latency,
		ThroughputMbps: speed,
	}
}

func TestSelect_DedupKeepsBestRanked(t *testing.T) {
	// Same address measured twice on one line collapses to one entry.
	n := measure.NewNormalizer(logr.Discard())
	rows := []measure.Row{
		{"ordinal": "1", "line": "电信", "address": "1.1.1.1", "loss": "0.00%", "latency": "10ms", "throughput": "100mb/s", "bandwidth": "", "colo": "", "time": ""},
		{"ordinal": "2", "line": "电信", "address": "1.1.1.1", "loss": "0.00%", "latency": "5ms", "throughput": "50mb/s", "bandwidth": "", "colo": "", "time": ""},
	}

	buckets := Select(n.Endpoints(slices.Values(rows)), 0)
	assert.Equal(t, []string{"1.1.1.1"}, buckets[BucketKey{measure.LineTelecom, measure.IPv4}])
}

func TestSelect_LossyBucketIsAbsent(t *testing.T) {
	eps := []measure.Endpoint{
		ep(measure.LineUnicom, "1.1.1.1", 0.01, 10, 10),
		ep(measure.LineUnicom, "1.1.1.2", 0.01, 5, 10),
	}

	buckets := Select(slices.Values(eps), 0)
	_, ok := buckets[BucketKey{measure.LineUnicom, measure.IPv4}]
	assert.False(t, ok)
	assert.Empty(t, buckets)
}

func TestSelect_EmptyInput(t *testing.T) {
	buckets := Select(slices.Values([]measure.Endpoint(nil)), 10)
	assert.Empty(t, buckets)
	assert.Empty(t, buckets.Keys())
}

func TestSelect_RanksByLatencyThenThroughput(t *testing.T) {
	eps := []measure.Endpoint{
		ep(measure.LineMobile, "10.0.0.1", 0, 30, 100),
		ep(measure.LineMobile, "10.0.0.2", 0, 10, 5),
		ep(measure.LineMobile, "10.0.0.3", 0, 10, 50),
		ep(measure.LineMobile, "10.0.0.4", 0, 20, 1),
		// Equal keys keep scan order.
		ep(measure.LineMobile, "10.0.0.5", 0, 20, 1),
	}

	buckets := Select(slices.Values(eps), 0)
	assert.Equal(t,
		[]string{"10.0.0.3", "10.0.0.2", "10.0.0.4", "10.0.0.5", "10.0.0.1"},
		buckets[BucketKey{measure.LineMobile, measure.IPv4}])
}

func TestSelect_SplitsFamilies(t *testing.T) {
	eps := []measure.Endpoint{
		ep(measure.LineDefault, "2001:db8::1", 0, 5, 1),
		ep(measure.LineDefault, "1.1.1.1", 0, 5, 1),
	}

	buckets := Select(slices.Values(eps), 0)
	assert.Equal(t, []string{"1.1.1.1"}, buckets[BucketKey{measure.LineDefault, measure.IPv4}])
	assert.Equal(t, []string{"2001:db8::1"}, buckets[BucketKey{measure.LineDefault, measure.IPv6}])
}

func TestSelect_FoldsNonCarrierLinesIntoDefault(t *testing.T) {
	eps := []measure.Endpoint{
		ep(measure.Line("overseas"), "3.3.3.3", 0, 5, 1),
		ep(measure.LineTelecom, "4.4.4.4", 0, 1, 1),
		ep(measure.LineDefault, "5.5.5.5", 0, 9, 1),
	}

	buckets := Select(slices.Values(eps), 0)
	assert.Equal(t, []string{"3.3.3.3"}, buckets[BucketKey{measure.Line("overseas"), measure.IPv4}])
	assert.Equal(t, []string{"3.3.3.3", "5.5.5.5"}, buckets[BucketKey{measure.LineDefault, measure.IPv4}])
	assert.Equal(t, []string{"4.4.4.4"}, buckets[BucketKey{measure.LineTelecom, measure.IPv4}])
}

func TestSelect_SingleAddressBucket(t *testing.T) {
	buckets := Select(slices.Values([]measure.Endpoint{ep(measure.LineTelecom, "9.9.9.9", 0, 1, 1)}), 1)
	assert.Equal(t, []string{"9.9.9.9"}, buckets[BucketKey{measure.LineTelecom, measure.IPv4}])
}

func TestSelect_Properties(t *testing.T) {
	lines := []measure.Line{measure.LineDefault, measure.LineTelecom, measure.LineUnicom, measure.LineMobile, "overseas"}
	r := rand.New(rand.NewPCG(1, 2))

	var eps []measure.Endpoint
	lossy := map[string]bool{}
	for i := range 2000 {
		addr := fmt.Sprintf("10.%d.%d.%d", r.IntN(2), r.IntN(4), r.IntN(60))
		if r.IntN(5) == 0 {
			addr = fmt.Sprintf("2001:db8::%x", r.IntN(200))
		}
		loss := 0.0
		if i%7 == 0 {
			// Addresses only ever measured lossy must never be selected.
			addr = fmt.Sprintf("192.0.2.%d", r.IntN(250))
			loss = 0.02
			lossy[addr] = true
		}
		eps = append(eps, ep(lines[r.IntN(len(lines))], addr, loss, float64(r.IntN(300)), float64(r.IntN(100))))
	}

	const limit = 25
	first := Select(slices.Values(eps), limit)
	require.NotEmpty(t, first)

	for key, addrs := range first {
		assert.LessOrEqual(t, len(addrs), limit, "bucket %s exceeds bound", key)

		seen := map[string]bool{}
		for _, a := range addrs {
			assert.False(t, seen[a], "bucket %s has duplicate %s", key, a)
			seen[a] = true
			assert.False(t, lossy[a], "bucket %s contains lossy %s", key, a)
			assert.Equal(t, key.Family, measure.FamilyOf(netip.MustParseAddr(a)))
		}
	}

	// Same input, same output.
	second := Select(slices.Values(eps), limit)
	assert.Equal(t, first, second)
	assert.Equal(t, first.Keys(), second.Keys())
}

func TestBucketsKeys_Sorted(t *testing.T) {
	b := Buckets{
		{measure.LineUnicom, measure.IPv4}:  {"1.1.1.1"},
		{measure.LineDefault, measure.IPv6}: {"::1"},
		{measure.LineDefault, measure.IPv4}: {"1.1.1.2"},
	}

	assert.Equal(t, []BucketKey{
		{measure.LineDefault, measure.IPv4},
		{measure.LineDefault, measure.IPv6},
		{measure.LineUnicom, measure.IPv4},
	}, b.Keys())
	assert.Equal(t, "unicom/ipv4", BucketKey{measure.LineUnicom, measure.IPv4}.String())
}
