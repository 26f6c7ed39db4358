// Package report persists the outcome of a selection run as JSON and as a
// plain text address list.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/selector"
)

// TimeLayout formats the generation timestamp in both outputs.
const TimeLayout = "2006-01-02 15:04:05"

// Document is the JSON report.
type Document struct {
	GeneratedAt string              `json:"generated_at"`
	Selected    map[string][]string `json:"selected"`
	Endpoints   []EndpointEntry     `json:"endpoints"`
}

// EndpointEntry is one normalized row. Latency is null when unknown.
type EndpointEntry struct {
	Address        string   `json:"address"`
	Line           string   `json:"line"`
	RawLine        string   `json:"raw_line"`
	Family         string   `json:"family"`
	PacketLoss     float64  `json:"packet_loss"`
	LatencyMs      *float64 `json:"latency_ms"`
	ThroughputMbps float64  `json:"throughput_mbps"`
	Bandwidth      string   `json:"bandwidth,omitempty"`
	Colo           string   `json:"colo,omitempty"`
	MeasuredAt     string   `json:"measured_at,omitempty"`
}

// Writer writes the reports for a run. An empty path disables that output.
type Writer struct {
	Log      logr.Logger
	JSONPath string
	TextPath string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Write renders and stores both reports. Both outputs are attempted even if
// the first fails.
func (w *Writer) Write(buckets selector.Buckets, endpoints []measure.Endpoint) error {
	ts := w.now().Format(TimeLayout)

	var errs []error
	if w.JSONPath != "" {
		data, err := json.MarshalIndent(NewDocument(ts, buckets, endpoints), "", "  ")
		if err == nil {
			err = writeFile(w.JSONPath, append(data, '\n'))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("report: json: %w", err))
		} else {
			w.Log.Info("wrote JSON report", "path", w.JSONPath)
		}
	}
	if w.TextPath != "" {
		if err := writeFile(w.TextPath, []byte(Text(ts, buckets))); err != nil {
			errs = append(errs, fmt.Errorf("report: text: %w", err))
		} else {
			w.Log.Info("wrote text report", "path", w.TextPath)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// NewDocument builds the JSON report document.
func NewDocument(ts string, buckets selector.Buckets, endpoints []measure.Endpoint) Document {
	doc := Document{
		GeneratedAt: ts,
		Selected:    make(map[string][]string, len(buckets)),
		Endpoints:   make([]EndpointEntry, 0, len(endpoints)),
	}
	for _, k := range buckets.Keys() {
		doc.Selected[k.String()] = buckets[k]
	}
	for _, ep := range endpoints {
		e := EndpointEntry{
			Address:        ep.Address.String(),
			Line:           string(ep.Line),
			RawLine:        ep.RawLine,
			Family:         string(ep.Family()),
			PacketLoss:     ep.PacketLoss,
			ThroughputMbps: ep.ThroughputMbps,
			Bandwidth:      ep.Bandwidth,
			Colo:           ep.Colo,
			MeasuredAt:     ep.MeasuredAt,
		}
		if !math.IsInf(ep.LatencyMs, 0) && !math.IsNaN(ep.LatencyMs) {
			latency := ep.LatencyMs
			e.LatencyMs = &latency
		}
		doc.Endpoints = append(doc.Endpoints, e)
	}
	return doc
}

// Text renders the address list: the timestamp, then one "addr#line" entry
// per selected address with IPv6 addresses in brackets, and a blank line
// after each bucket.
func Text(ts string, buckets selector.Buckets) string {
	var b strings.Builder
	b.WriteString(ts)
	b.WriteByte('\n')
	for _, k := range buckets.Keys() {
		if len(buckets[k]) == 0 {
			continue
		}
		for _, addr := range buckets[k] {
			if k.Family == measure.IPv6 {
				fmt.Fprintf(&b, "[%s]#%s\n", addr, k.Line)
			} else {
				fmt.Fprintf(&b, "%s#%s\n", addr, k.Line)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
