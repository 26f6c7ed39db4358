package dns

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultZoneCacheTTL bounds how long a resolved zone id is trusted.
const DefaultZoneCacheTTL = time.Hour

// ZoneResolver maps domains to provider zone ids. Lookups are cached in an
// expirable LRU so repeated runs in loop mode list zones at most once per TTL.
type ZoneResolver struct {
	provider Provider
	cache    *lru.LRU[string, Zone]
	log      logr.Logger
}

// NewZoneResolver creates a resolver caching up to size domains for ttl.
func NewZoneResolver(log logr.Logger, provider Provider, size int, ttl time.Duration) *ZoneResolver {
	if size <= 0 {
		size = 16
	}
	if ttl <= 0 {
		ttl = DefaultZoneCacheTTL
	}
	return &ZoneResolver{
		provider: provider,
		cache:    lru.NewLRU[string, Zone](size, nil, ttl),
		log:      log,
	}
}

// Resolve returns the deepest provider zone containing domain.
func (z *ZoneResolver) Resolve(ctx context.Context, domain string) (Zone, error) {
	key := TrimDot(domain)
	if zone, ok := z.cache.Get(key); ok {
		return zone, nil
	}

	zones, err := z.provider.ListZones(ctx)
	if err != nil {
		return Zone{}, fmt.Errorf("listing zones: %w", err)
	}

	var (
		best  Zone
		depth = -1
	)
	for _, zone := range zones {
		if !InZone(zone.Name, key) {
			continue
		}
		if d := ZoneDepth(zone.Name); d > depth {
			best, depth = zone, d
		}
	}
	if depth < 0 {
		return Zone{}, fmt.Errorf("%w: %s", ErrZoneNotFound, key)
	}

	z.log.V(1).Info("resolved zone", "domain", key, "zone", best.Name, "id", best.ID)
	z.cache.Add(key, best)
	return best, nil
}

// Forget drops the cached zone for domain.
func (z *ZoneResolver) Forget(domain string) {
	z.cache.Remove(TrimDot(domain))
}
