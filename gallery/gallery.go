// Package gallery provides the stored pet reports a query photo is matched
// against: the report metadata and the images behind them.
package gallery

import (
	"context"

	"github.com/pkg/errors"
)

// DefaultLimit is the maximum number of reports scanned per query.
const DefaultLimit = 100

var (
	ErrImageNotFound   = errors.New("image not found")
	ErrUnsafeReference = errors.New("image reference escapes the image root")
)

// Candidate is a stored lost pet report that has an image reference.
type Candidate struct {
	ID        int64
	PetName   string
	PetType   string
	Breed     *string
	ImageRef  string
	OwnerName *string
	Location  *string
}

// Provider lists gallery candidates, newest first.
type Provider interface {
	ListCandidates(ctx context.Context, limit int) ([]Candidate, error)
}

// ImageStore loads the raw bytes behind an image reference.
type ImageStore interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Pinger is implemented by providers backed by a connection that can be
// health-checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
