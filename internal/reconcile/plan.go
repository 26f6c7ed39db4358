// Package reconcile diffs desired records against live provider state and
// applies the resulting create/update actions.
package reconcile

import (
	"cmp"
	"net/netip"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns"
)

// Kind is the type of a reconcile action.
type Kind int

const (
	NoOp Kind = iota
	Create
	Update
	// List marks a record whose live state could not be read; nothing was
	// sent for it.
	List
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	case List:
		return "list"
	default:
		return "noop"
	}
}

// Action is the corrective step for one desired record.
type Action struct {
	Kind   Kind
	Record dns.DesiredRecord
	// TargetID is the live record an Update rewrites, or the record a NoOp
	// matched.
	TargetID string
	// Current holds the live values of the target, if any.
	Current []string
	// Stale lists ids of further live records on the same triple. They are
	// reported, never touched.
	Stale []string
}

// Snapshot holds the live records per triple, fetched once per run.
type Snapshot map[dns.Triple][]dns.LiveRecord

// Plan returns one action per desired record, in the same order.
func Plan(desired []dns.DesiredRecord, snap Snapshot) []Action {
	actions := make([]Action, 0, len(desired))
	for _, rec := range desired {
		actions = append(actions, planOne(rec, snap[rec.Triple()]))
	}
	return actions
}

func planOne(rec dns.DesiredRecord, live []dns.LiveRecord) Action {
	if len(live) == 0 {
		return Action{Kind: Create, Record: rec}
	}

	// Duplicate record sets on one triple are a provider-side anomaly; the
	// lowest id is kept authoritative so repeated runs pick the same one.
	live = slices.Clone(live)
	slices.SortFunc(live, func(a, b dns.LiveRecord) int { return cmp.Compare(a.ID, b.ID) })
	target := live[0]

	action := Action{
		Kind:     Update,
		Record:   rec,
		TargetID: target.ID,
		Current:  target.Values,
	}
	for _, extra := range live[1:] {
		action.Stale = append(action.Stale, extra.ID)
	}
	if SameValues(target.Values, rec.Values) {
		action.Kind = NoOp
	}
	return action
}

// SameValues compares two value lists as sets, ignoring order, duplicates
// and textual differences between equal IP addresses.
func SameValues(a, b []string) bool {
	return valueSet(a).Equal(valueSet(b))
}

func valueSet(values []string) sets.Set[string] {
	s := sets.New[string]()
	for _, v := range values {
		s.Insert(canonicalValue(v))
	}
	return s
}

func canonicalValue(v string) string {
	v = strings.TrimSpace(v)
	if addr, err := netip.ParseAddr(v); err == nil {
		return addr.Unmap().String()
	}
	return v
}

// matches reports whether a live record belongs to triple t.
func matches(t dns.Triple, rec dns.LiveRecord) bool {
	return dns.SameName(t.Name, rec.Name) &&
		strings.EqualFold(t.Type, rec.Type) &&
		t.Line == rec.Line
}
