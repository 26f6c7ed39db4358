// Package memory is an in-process DNS provider. It backs dry runs and
// tests; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns"
)

func init() {
	dns.Register("memory", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// Provider implements dns.Provider over an in-memory record store.
type Provider struct {
	mu      sync.Mutex
	zones   []dns.Zone
	records map[string]map[string]dns.LiveRecord // zone id -> record id -> record
	nextID  int
	calls   []string
	log     logr.Logger

	// FailOn makes calls for the given record name fail when set.
	FailOn func(op string, name string) error
}

// New creates a memory provider. The optional "zones" setting is a comma
// separated list of zone names; each gets an id of the form "zone-<name>".
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	p := &Provider{
		records: make(map[string]map[string]dns.LiveRecord),
		log:     log,
	}
	for _, name := range strings.Split(settings["zones"], ",") {
		if name = strings.TrimSpace(name); name != "" {
			p.AddZone("zone-"+dns.TrimDot(name), name)
		}
	}
	return p, nil
}

// AddZone registers a zone.
func (p *Provider) AddZone(id, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zones = append(p.zones, dns.Zone{ID: id, Name: dns.Fqdn(name)})
	if p.records[id] == nil {
		p.records[id] = make(map[string]dns.LiveRecord)
	}
}

// Seed stores a live record as-is, keeping its id.
func (p *Provider) Seed(zoneID string, rec dns.LiveRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.records[zoneID] == nil {
		p.records[zoneID] = make(map[string]dns.LiveRecord)
	}
	p.records[zoneID][rec.ID] = rec
}

// Records returns all records of a zone sorted by id.
func (p *Provider) Records(zoneID string) []dns.LiveRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dns.LiveRecord, 0, len(p.records[zoneID]))
	for _, rec := range p.records[zoneID] {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b dns.LiveRecord) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Calls returns the mutating calls made so far, e.g. "create cdn.example.com/A/Dianxin".
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

func (p *Provider) fail(op, name string) error {
	if p.FailOn == nil {
		return nil
	}
	return p.FailOn(op, name)
}

// ListZones returns the registered zones.
func (p *Provider) ListZones(_ context.Context) ([]dns.Zone, error) {
	if err := p.fail("zones", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.zones), nil
}

// ListRecords returns records matching the triple exactly.
func (p *Provider) ListRecords(_ context.Context, zoneID string, t dns.Triple) ([]dns.LiveRecord, error) {
	if err := p.fail("list", t.Name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	zone, ok := p.records[zoneID]
	if !ok {
		return nil, fmt.Errorf("memory: unknown zone %q", zoneID)
	}
	var out []dns.LiveRecord
	for _, rec := range zone {
		if dns.SameName(rec.Name, t.Name) && strings.EqualFold(rec.Type, t.Type) && rec.Line == t.Line {
			rec.Values = slices.Clone(rec.Values)
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b dns.LiveRecord) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// CreateRecord stores a new record set and returns its id.
func (p *Provider) CreateRecord(_ context.Context, zoneID string, record dns.DesiredRecord) (string, error) {
	if err := p.fail("create", record.Name); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	zone, ok := p.records[zoneID]
	if !ok {
		return "", fmt.Errorf("memory: unknown zone %q", zoneID)
	}
	p.nextID++
	id := fmt.Sprintf("rs-%04d", p.nextID)
	zone[id] = liveFrom(id, record)
	p.calls = append(p.calls, "create "+record.Triple().String())
	p.log.V(1).Info("record created", "id", id, "record", record.Triple().String())
	return id, nil
}

// UpdateRecord replaces the values of an existing record set.
func (p *Provider) UpdateRecord(_ context.Context, zoneID, recordID string, record dns.DesiredRecord) error {
	if err := p.fail("update", record.Name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	zone, ok := p.records[zoneID]
	if !ok {
		return fmt.Errorf("memory: unknown zone %q", zoneID)
	}
	existing, ok := zone[recordID]
	if !ok {
		return fmt.Errorf("memory: no record %q in zone %q", recordID, zoneID)
	}
	updated := liveFrom(recordID, record)
	updated.Line = existing.Line
	zone[recordID] = updated
	p.calls = append(p.calls, "update "+record.Triple().String())
	p.log.V(1).Info("record updated", "id", recordID, "record", record.Triple().String())
	return nil
}

func liveFrom(id string, r dns.DesiredRecord) dns.LiveRecord {
	return dns.LiveRecord{
		ID:     id,
		Name:   dns.Fqdn(r.Name),
		Type:   r.Type,
		Line:   r.Line,
		TTL:    r.TTL,
		Values: slices.Clone(r.Values),
	}
}
