package dns

import (
	"context"
	"errors"
	"fmt"
)

// ErrZoneNotFound is returned when no provider zone contains a domain.
var ErrZoneNotFound = errors.New("zone not found")

// DesiredRecord is a DNS record the zone should contain after a run.
type DesiredRecord struct {
	Name   string   // FQDN without trailing dot, e.g. "cdn.example.com"
	Type   string   // "A" or "AAAA"
	Line   string   // provider line, e.g. "Dianxin"
	TTL    int      // seconds
	Values []string // unique addresses, never empty
}

// Triple returns the identity the record is matched on.
func (r DesiredRecord) Triple() Triple {
	return Triple{Name: r.Name, Type: r.Type, Line: r.Line}
}

// LiveRecord is a record as currently stored by the provider.
type LiveRecord struct {
	ID     string
	Name   string
	Type   string
	Line   string
	TTL    int
	Values []string
}

// Triple identifies a record set within a zone.
type Triple struct {
	Name string
	Type string
	Line string
}

func (t Triple) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Name, t.Type, t.Line)
}

// Zone is a provider-side zone.
type Zone struct {
	ID   string
	Name string
}

// Provider is the interface that DNS providers must implement.
type Provider interface {
	ListZones(ctx context.Context) ([]Zone, error)
	ListRecords(ctx context.Context, zoneID string, t Triple) ([]LiveRecord, error)
	CreateRecord(ctx context.Context, zoneID string, record DesiredRecord) (string, error)
	UpdateRecord(ctx context.Context, zoneID, recordID string, record DesiredRecord) error
}

// transient is implemented by provider errors that are worth retrying.
type transient interface {
	Transient() bool
}

// TransientError marks a provider error as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Transient() bool { return true }

// IsTransient reports whether err, or any error it wraps, is retryable.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}
