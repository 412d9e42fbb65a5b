package similarity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Tutortoise/pet-match-service/gallery"
	"github.com/Tutortoise/pet-match-service/models"
)

var (
	ErrQueryDecode           = errors.New("no image data")
	ErrNoDataSource          = errors.New("gallery data source unavailable")
	ErrScanTimeout           = errors.New("gallery scan did not finish in time")
	ErrGalleryItemUnreadable = errors.New("gallery image unreadable")
)

// ProcessingError records why a gallery candidate was skipped.
type ProcessingError struct {
	CandidateID int64
	Message     string
	Cause       error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("candidate %d: %s: %v", e.CandidateID, e.Message, e.Cause)
	}
	return fmt.Sprintf("candidate %d: %s", e.CandidateID, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

func (e *ProcessingError) Is(target error) bool { return target == ErrGalleryItemUnreadable }

type Match struct {
	gallery.Candidate
	Score     float64
	Breakdown Breakdown
}

type Result struct {
	// Matches are sorted by descending score, ties in gallery order.
	Matches    []Match
	TopScore   float64
	Confidence float64

	Scanned int
	Skipped []*ProcessingError
}

// SkippedIDs lists the candidates whose image could not be read or decoded.
func (r *Result) SkippedIDs() []int64 {
	ids := make([]int64, len(r.Skipped))
	for i, s := range r.Skipped {
		ids[i] = s.CandidateID
	}
	return ids
}

type Request struct {
	Image []byte

	// UserID identifies the requester. It is only used for logging.
	UserID *int64

	RequestID string
	Timings   *models.ProcessingTimings
}

// Matcher ranks gallery candidates by visual similarity to a query image.
// A Matcher holds no per-request state and is safe for concurrent use.
type Matcher struct {
	cfg     Config
	gallery gallery.Provider
	images  gallery.ImageStore

	Debug bool
}

func NewMatcher(cfg Config, provider gallery.Provider, images gallery.ImageStore) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid similarity config: %w", err)
	}
	if provider == nil || images == nil {
		return nil, ErrNoDataSource
	}
	return &Matcher{cfg: cfg, gallery: provider, images: images}, nil
}

func (m *Matcher) Config() Config { return m.cfg }

type scored struct {
	breakdown Breakdown
	err       *ProcessingError
}

func (m *Matcher) Match(ctx context.Context, req Request) (*Result, error) {
	timings := req.Timings
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	decodeStart := time.Now()
	if len(req.Image) == 0 {
		return nil, ErrQueryDecode
	}
	planes, err := Normalize(req.Image, m.cfg.CanonicalSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryDecode, err)
	}
	query := Extract(planes, m.cfg)
	timings.QueryDecode = time.Since(decodeStart)

	loadStart := time.Now()
	candidates, err := m.gallery.ListCandidates(ctx, m.cfg.GalleryLimit)
	timings.GalleryLoad = time.Since(loadStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanTimeout, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrNoDataSource, err)
	}
	if len(candidates) > m.cfg.GalleryLimit {
		candidates = candidates[:m.cfg.GalleryLimit]
	}

	scanStart := time.Now()
	results := m.scan(ctx, query, candidates)
	timings.Scan = time.Since(scanStart)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanTimeout, ctxErr)
	}

	res := &Result{Scanned: len(candidates)}
	for i, r := range results {
		if r.err != nil {
			res.Skipped = append(res.Skipped, r.err)
			if m.Debug {
				log.Printf("[DEBUG] RequestID: %s - skipped %v", req.RequestID, r.err)
			}
			continue
		}
		if r.breakdown.Overall >= m.cfg.MatchThreshold {
			res.Matches = append(res.Matches, Match{
				Candidate: candidates[i],
				Score:     r.breakdown.Overall,
				Breakdown: r.breakdown,
			})
		}
	}

	rankMatches(res.Matches)
	if len(res.Matches) > m.cfg.MaxMatches {
		res.Matches = res.Matches[:m.cfg.MaxMatches]
	}
	if len(res.Matches) > 0 {
		res.TopScore = res.Matches[0].Score
		res.Confidence = min(1.0, res.TopScore*m.cfg.ConfidenceBoost)
	}

	timings.Scanned = res.Scanned
	timings.Skipped = len(res.Skipped)
	timings.Matched = len(res.Matches)

	if m.Debug && req.UserID != nil {
		log.Printf("[DEBUG] RequestID: %s - user %d matched %d of %d candidates",
			req.RequestID, *req.UserID, len(res.Matches), res.Scanned)
	}

	return res, nil
}

// scan scores every candidate against the query. Slot i of the result
// belongs to candidates[i] regardless of which worker filled it.
func (m *Matcher) scan(ctx context.Context, query *Features, candidates []gallery.Candidate) []scored {
	results := make([]scored, len(candidates))
	if len(candidates) == 0 {
		return results
	}

	numWorkers := m.cfg.Workers
	if numWorkers > len(candidates) {
		numWorkers = len(candidates)
	}

	jobs := make(chan int, len(candidates))
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results[i] = m.scoreCandidate(ctx, query, candidates[i])
			}
		}()
	}

	for i := range candidates {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return results
}

func (m *Matcher) scoreCandidate(ctx context.Context, query *Features, c gallery.Candidate) scored {
	data, err := m.images.Load(ctx, c.ImageRef)
	if err != nil {
		return scored{err: &ProcessingError{CandidateID: c.ID, Message: "can't load gallery image", Cause: err}}
	}

	planes, err := Normalize(data, m.cfg.CanonicalSize)
	if err != nil {
		return scored{err: &ProcessingError{CandidateID: c.ID, Message: "can't decode gallery image", Cause: err}}
	}

	return scored{breakdown: Score(query, Extract(planes, m.cfg), m.cfg)}
}

func rankMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}
