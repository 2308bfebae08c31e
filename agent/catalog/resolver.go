package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	contractx "github.com/velaline/booking-agent/agent/contract"
)

const (
	defaultCatalogTTL = time.Hour

	catalogKey      = "catalog"
	catalogStaleKey = "catalog:stale"
)

// Resolver maps free-text service references to canonical catalog records.
// The catalog is cached with a fixed TTL; upstream failures are served from
// the last good copy rather than failing outright. Refresh is idempotent:
// concurrent refreshes may both fetch, last write wins.
type Resolver struct {
	client contractx.SchedulingClient
	cache  *gocache.Cache
	ttl    time.Duration

	mu sync.Mutex // serializes refresh, not reads
}

// Match is the outcome of resolving free text. Exactly one of the cases
// holds: Service set (unique match), Candidates set (ambiguous), or both
// empty (no match). Ambiguity is never silently resolved.
type Match struct {
	Service    *contractx.Service
	Candidates []contractx.Service
}

func (m Match) Ambiguous() bool {
	return m.Service == nil && len(m.Candidates) > 1
}

type Option func(*Resolver)

func WithCatalogTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func NewResolver(client contractx.SchedulingClient, opts ...Option) (*Resolver, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: scheduling client is required", contractx.ErrValidation)
	}
	r := &Resolver{
		client: client,
		ttl:    defaultCatalogTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.cache = gocache.New(r.ttl, 10*time.Minute)
	return r, nil
}

// ListAll returns the canonical catalog, fetching upstream only when the
// cached copy expired or forceRefresh is set.
func (r *Resolver) ListAll(ctx context.Context, forceRefresh bool) ([]contractx.Service, error) {
	if !forceRefresh {
		if cached, ok := r.cache.Get(catalogKey); ok {
			return cached.([]contractx.Service), nil
		}
	}
	return r.refresh(ctx)
}

func (r *Resolver) refresh(ctx context.Context) ([]contractx.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	services, err := r.client.ListServices(ctx)
	if err != nil {
		if stale, ok := r.cache.Get(catalogStaleKey); ok {
			log.Warn().Err(err).Msg("catalog refresh failed, serving stale copy")
			return stale.([]contractx.Service), nil
		}
		return nil, fmt.Errorf("refresh service catalog: %w", err)
	}

	copied := append([]contractx.Service(nil), services...)
	r.cache.Set(catalogKey, copied, r.ttl)
	r.cache.Set(catalogStaleKey, copied, gocache.NoExpiration)
	return copied, nil
}

// Resolve maps free text to a catalog record: exact case-insensitive name
// match first, then substring containment. Zero or multiple candidates are
// reported as-is so the caller can ask for disambiguation.
func (r *Resolver) Resolve(ctx context.Context, text string) (Match, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return Match{}, fmt.Errorf("%w: service reference is empty", contractx.ErrValidation)
	}

	services, err := r.ListAll(ctx, false)
	if err != nil {
		return Match{}, err
	}

	var exact []contractx.Service
	var partial []contractx.Service
	for _, svc := range services {
		name := strings.ToLower(svc.Name)
		switch {
		case name == needle:
			exact = append(exact, svc)
		case strings.Contains(name, needle):
			partial = append(partial, svc)
		}
	}

	if len(exact) == 1 {
		svc := exact[0]
		return Match{Service: &svc}, nil
	}
	if len(exact) > 1 {
		return Match{Candidates: exact}, nil
	}
	if len(partial) == 1 {
		svc := partial[0]
		return Match{Service: &svc}, nil
	}
	return Match{Candidates: partial}, nil
}

// ByID returns the catalog record with the given canonical id, or nil.
func (r *Resolver) ByID(ctx context.Context, id string) (*contractx.Service, error) {
	services, err := r.ListAll(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, svc := range services {
		if svc.ID == id {
			found := svc
			return &found, nil
		}
	}
	return nil, nil
}

// Summary renders a short human-readable catalog listing for prompts.
func (r *Resolver) Summary(ctx context.Context) string {
	services, err := r.ListAll(ctx, false)
	if err != nil || len(services) == 0 {
		return "catalog unavailable"
	}
	lines := make([]string, 0, len(services))
	for _, svc := range services {
		lines = append(lines, fmt.Sprintf("- %s (%.2f, %d min)", svc.Name, svc.Price, svc.DurationMinutes))
	}
	return strings.Join(lines, "\n")
}
