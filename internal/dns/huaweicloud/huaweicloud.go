// Package huaweicloud implements dns.Provider on Huawei Cloud DNS with
// per-line (ISP) record sets.
package huaweicloud

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/auth/basic"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/sdkerr"
	hwdns "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/model"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/region"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns"
)

const (
	defaultRegion = "ap-southeast-1"
	pageSize      = int32(100)
)

func init() {
	dns.Register("huaweicloud", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// api is the subset of the SDK client the provider calls.
type api interface {
	ListPublicZones(*model.ListPublicZonesRequest) (*model.ListPublicZonesResponse, error)
	ListRecordSetsWithLine(*model.ListRecordSetsWithLineRequest) (*model.ListRecordSetsWithLineResponse, error)
	CreateRecordSetWithLine(*model.CreateRecordSetWithLineRequest) (*model.CreateRecordSetWithLineResponse, error)
	UpdateRecordSet(*model.UpdateRecordSetRequest) (*model.UpdateRecordSetResponse, error)
}

// Provider implements dns.Provider for Huawei Cloud DNS.
type Provider struct {
	region string
	client func() (api, error)
	log    logr.Logger
}

// New creates a Huawei Cloud DNS provider from the given settings map.
// Required settings: access_key, secret_key.
// Optional settings: region (default ap-southeast-1), project_id.
//
// The SDK client is built on first use; it may need to reach IAM to resolve
// the project id.
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	ak := settings["access_key"]
	if ak == "" {
		return nil, fmt.Errorf("huaweicloud: missing required setting 'access_key'")
	}
	sk := settings["secret_key"]
	if sk == "" {
		return nil, fmt.Errorf("huaweicloud: missing required setting 'secret_key'")
	}
	regionID := settings["region"]
	if regionID == "" {
		regionID = defaultRegion
	}
	reg, err := region.SafeValueOf(regionID)
	if err != nil {
		return nil, fmt.Errorf("huaweicloud: invalid region %q: %w", regionID, err)
	}

	builder := basic.NewCredentialsBuilder().WithAk(ak).WithSk(sk)
	if pid := settings["project_id"]; pid != "" {
		builder = builder.WithProjectId(pid)
	}
	creds, err := builder.SafeBuild()
	if err != nil {
		return nil, fmt.Errorf("huaweicloud: build credentials: %w", err)
	}

	p := &Provider{region: regionID, log: log}
	p.client = sync.OnceValues(func() (api, error) {
		hc, err := hwdns.DnsClientBuilder().
			WithRegion(reg).
			WithCredential(creds).
			SafeBuild()
		if err != nil {
			return nil, fmt.Errorf("huaweicloud: build client: %w", err)
		}
		return hwdns.NewDnsClient(hc), nil
	})
	return p, nil
}

func newWithAPI(log logr.Logger, c api) *Provider {
	return &Provider{
		region: defaultRegion,
		client: func() (api, error) { return c, nil },
		log:    log,
	}
}

// ListZones returns all public zones of the account.
func (p *Provider) ListZones(ctx context.Context) ([]dns.Zone, error) {
	c, err := p.client()
	if err != nil {
		return nil, err
	}

	var zones []dns.Zone
	for offset := int32(0); ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := c.ListPublicZones(&model.ListPublicZonesRequest{
			Limit:  ptr(pageSize),
			Offset: ptr(offset),
		})
		if err != nil {
			return nil, wrap("list zones", err)
		}
		if resp.Zones == nil {
			break
		}
		for _, z := range *resp.Zones {
			zones = append(zones, dns.Zone{ID: deref(z.Id), Name: dns.Fqdn(deref(z.Name))})
		}
		if int32(len(*resp.Zones)) < pageSize {
			break
		}
	}
	p.log.V(1).Info("listed zones", "count", len(zones))
	return zones, nil
}

// ListRecords returns the record sets of zoneID matching the triple. The
// name filter of the API is applied exactly and the line is checked again
// client-side.
func (p *Provider) ListRecords(ctx context.Context, zoneID string, t dns.Triple) ([]dns.LiveRecord, error) {
	c, err := p.client()
	if err != nil {
		return nil, err
	}

	var out []dns.LiveRecord
	for offset := int32(0); ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := c.ListRecordSetsWithLine(&model.ListRecordSetsWithLineRequest{
			ZoneId:     ptr(zoneID),
			Name:       ptr(dns.Fqdn(t.Name)),
			Type:       ptr(t.Type),
			LineId:     ptr(t.Line),
			SearchMode: ptr("equal"),
			Limit:      ptr(pageSize),
			Offset:     ptr(offset),
		})
		if err != nil {
			return nil, wrap("list record sets "+t.String(), err)
		}
		if resp.Recordsets == nil {
			break
		}
		for _, rs := range *resp.Recordsets {
			rec, err := liveRecord(rs)
			if err != nil {
				return nil, err
			}
			if !dns.SameName(rec.Name, t.Name) || rec.Type != t.Type || rec.Line != t.Line {
				continue
			}
			out = append(out, rec)
		}
		if int32(len(*resp.Recordsets)) < pageSize {
			break
		}
	}
	return out, nil
}

// CreateRecord creates a record set on the record's line and returns its id.
func (p *Provider) CreateRecord(ctx context.Context, zoneID string, record dns.DesiredRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := p.client()
	if err != nil {
		return "", err
	}

	p.log.Info("creating record set", "record", record.Triple().String(), "values", record.Values)
	resp, err := c.CreateRecordSetWithLine(&model.CreateRecordSetWithLineRequest{
		ZoneId: zoneID,
		Body: &model.CreateRecordSetWithLineRequestBody{
			Name:    dns.Fqdn(record.Name),
			Type:    record.Type,
			Ttl:     ptr(int32(record.TTL)),
			Records: ptr(record.Values),
			Line:    ptr(record.Line),
		},
	})
	if err != nil {
		return "", wrap("create record set "+record.Triple().String(), err)
	}
	id := deref(resp.Id)
	p.log.Info("record set created", "id", id)
	return id, nil
}

// UpdateRecord replaces the values and TTL of an existing record set. The
// line of a record set cannot change.
func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, record dns.DesiredRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := p.client()
	if err != nil {
		return err
	}

	p.log.Info("updating record set", "id", recordID, "record", record.Triple().String(), "values", record.Values)
	_, err = c.UpdateRecordSet(&model.UpdateRecordSetRequest{
		ZoneId:      zoneID,
		RecordsetId: recordID,
		Body: &model.UpdateRecordSetReq{
			Name:    ptr(dns.Fqdn(record.Name)),
			Type:    ptr(record.Type),
			Ttl:     ptr(int32(record.TTL)),
			Records: ptr(record.Values),
		},
	})
	if err != nil {
		return wrap("update record set "+recordID, err)
	}
	p.log.Info("record set updated", "id", recordID)
	return nil
}

func liveRecord(rs model.QueryRecordSetWithLineAndTagsResp) (dns.LiveRecord, error) {
	rec := dns.LiveRecord{
		ID:   deref(rs.Id),
		Name: dns.Fqdn(deref(rs.Name)),
		Type: deref(rs.Type),
		Line: deref(rs.Line),
	}
	if rec.Line == "" {
		return dns.LiveRecord{}, fmt.Errorf("huaweicloud: record set %s (%s) has no line", rec.ID, rec.Name)
	}
	if rs.Ttl != nil {
		rec.TTL = int(*rs.Ttl)
	}
	if rs.Records != nil {
		rec.Values = append([]string(nil), *rs.Records...)
	}
	return rec, nil
}

// wrap prefixes err and marks throttling, server and network errors as
// transient.
func wrap(op string, err error) error {
	wrapped := fmt.Errorf("huaweicloud: %s: %w", op, err)

	var se *sdkerr.ServiceResponseError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError {
			return &dns.TransientError{Err: wrapped}
		}
		return wrapped
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return &dns.TransientError{Err: wrapped}
	}
	return wrapped
}

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
