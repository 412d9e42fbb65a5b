package gallery

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingProvider struct {
	calls int
	err   error
	list  []Candidate
}

func (p *countingProvider) ListCandidates(ctx context.Context, limit int) ([]Candidate, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.list, nil
}

func TestCachedProviderServesFromCache(t *testing.T) {
	next := &countingProvider{list: []Candidate{{ID: 1, ImageRef: "a.png"}, {ID: 2, ImageRef: "b.png"}}}
	p := NewCachedProvider(next, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := p.ListCandidates(ctx, 100)
		if err != nil {
			t.Fatalf("ListCandidates: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d candidates, want 2", len(got))
		}
		// callers may mutate their copy
		got[0].ID = 99
	}
	if next.calls != 1 {
		t.Errorf("underlying provider called %d times, want 1", next.calls)
	}
	if next.list[0].ID != 1 {
		t.Errorf("caller changes leaked into the wrapped provider: first id = %d", next.list[0].ID)
	}

	if _, err := p.ListCandidates(ctx, 10); err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Errorf("different limit: calls = %d, want 2", next.calls)
	}

	p.Invalidate()
	got, err := p.ListCandidates(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 3 {
		t.Errorf("after Invalidate: calls = %d, want 3", next.calls)
	}
	if got[0].ID != 1 {
		t.Errorf("cached listing was mutated: first id = %d", got[0].ID)
	}
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	boom := errors.New("db down")
	next := &countingProvider{err: boom}
	p := NewCachedProvider(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := p.ListCandidates(context.Background(), 100); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	}
	if next.calls != 2 {
		t.Errorf("calls = %d, want 2", next.calls)
	}
}

func TestCachedProviderExpires(t *testing.T) {
	next := &countingProvider{list: []Candidate{{ID: 1, ImageRef: "a.png"}}}
	p := NewCachedProvider(next, 20*time.Millisecond)

	p.ListCandidates(context.Background(), 100)
	time.Sleep(50 * time.Millisecond)
	p.ListCandidates(context.Background(), 100)

	if next.calls != 2 {
		t.Errorf("calls = %d, want 2 after expiry", next.calls)
	}
}

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider(
		Candidate{ID: 2, ImageRef: "b.png"},
		Candidate{ID: 1, ImageRef: ""},
	)
	p.Add(Candidate{ID: 3, ImageRef: "c.png"})

	got, err := p.ListCandidates(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 2 {
		t.Errorf("got %+v, want ids [3 2]", got)
	}

	got, _ = p.ListCandidates(context.Background(), 1)
	if len(got) != 1 {
		t.Errorf("limit 1: got %d", len(got))
	}
}

func TestStringPtr(t *testing.T) {
	if StringPtr("") != nil {
		t.Error("StringPtr(\"\") should be nil")
	}
	if s := StringPtr("Beagle"); s == nil || *s != "Beagle" {
		t.Errorf("StringPtr(Beagle) = %v", s)
	}
}
