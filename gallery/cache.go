package gallery

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider caches candidate listings of another Provider for a short
// time. Only metadata is cached, never image bytes. ttl must be positive; a
// zero ttl would make go-cache keep entries forever.
type CachedProvider struct {
	next  Provider
	cache *cache.Cache
}

func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (p *CachedProvider) ListCandidates(ctx context.Context, limit int) ([]Candidate, error) {
	key := "candidates:" + strconv.Itoa(limit)
	if cached, ok := p.cache.Get(key); ok {
		return append([]Candidate(nil), cached.([]Candidate)...), nil
	}

	candidates, err := p.next.ListCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}

	p.cache.SetDefault(key, append([]Candidate(nil), candidates...))
	return append([]Candidate(nil), candidates...), nil
}

// Invalidate drops every cached listing.
func (p *CachedProvider) Invalidate() {
	p.cache.Flush()
}

func (p *CachedProvider) Ping(ctx context.Context) error {
	if pinger, ok := p.next.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
