package gallery

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryProvider serves a fixed candidate list, already ordered newest first.
type MemoryProvider struct {
	mu         sync.RWMutex
	candidates []Candidate
	err        error
}

func NewMemoryProvider(candidates ...Candidate) *MemoryProvider {
	return &MemoryProvider{candidates: candidates}
}

// Fail makes every subsequent listing return err.
func (p *MemoryProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MemoryProvider) Add(c Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append([]Candidate{c}, p.candidates...)
}

func (p *MemoryProvider) ListCandidates(ctx context.Context, limit int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.err != nil {
		return nil, p.err
	}

	out := make([]Candidate, 0, len(p.candidates))
	for _, c := range p.candidates {
		if c.ImageRef == "" {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// MemoryStore is an ImageStore over a map of reference to bytes.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[ref] = data
}

func (s *MemoryStore) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.images[ref]
	if !ok {
		return nil, errors.Wrapf(ErrImageNotFound, "reference %q", ref)
	}
	return data, nil
}
