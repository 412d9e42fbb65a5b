package similarity

import (
	"fmt"
	"math"
	"runtime"
)

const (
	CanonicalSize   = 128
	BinsPerChannel  = 16
	EdgeThreshold   = 30
	MatchThreshold  = 0.5
	MaxMatches      = 10
	ConfidenceBoost = 1.1
	GalleryLimit    = 100

	HistogramWeight = 0.5
	EdgeWeight      = 0.3
	ColorWeight     = 0.2

	// maxColorDistance is the largest possible Manhattan distance between two
	// RGB triples (255 per channel).
	maxColorDistance = 255 * 3

	weightTolerance = 1e-9
	varianceEpsilon = 1e-12
)

type Weights struct {
	Histogram float64
	Edge      float64
	Color     float64
}

// Config carries every tunable of the matching heuristic.
type Config struct {
	CanonicalSize   int
	BinsPerChannel  int
	EdgeThreshold   float64
	Weights         Weights
	MatchThreshold  float64
	MaxMatches      int
	ConfidenceBoost float64

	// GalleryLimit caps how many of the newest reports one query scans.
	GalleryLimit int

	// Workers is the number of goroutines scanning the gallery. 1 scans
	// sequentially in gallery order.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		CanonicalSize:  CanonicalSize,
		BinsPerChannel: BinsPerChannel,
		EdgeThreshold:  EdgeThreshold,
		Weights: Weights{
			Histogram: HistogramWeight,
			Edge:      EdgeWeight,
			Color:     ColorWeight,
		},
		MatchThreshold:  MatchThreshold,
		MaxMatches:      MaxMatches,
		ConfidenceBoost: ConfidenceBoost,
		GalleryLimit:    GalleryLimit,
		Workers:         runtime.NumCPU(),
	}
}

func (c Config) Validate() error {
	if c.CanonicalSize <= 0 {
		return fmt.Errorf("canonical size must be positive, got %d", c.CanonicalSize)
	}
	if c.BinsPerChannel <= 0 || c.BinsPerChannel > 256 {
		return fmt.Errorf("bins per channel must be in [1,256], got %d", c.BinsPerChannel)
	}
	if c.EdgeThreshold < 0 {
		return fmt.Errorf("edge threshold must not be negative, got %v", c.EdgeThreshold)
	}
	w := c.Weights
	if w.Histogram < 0 || w.Edge < 0 || w.Color < 0 {
		return fmt.Errorf("weights must not be negative: %+v", w)
	}
	if sum := w.Histogram + w.Edge + w.Color; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be in [0,1], got %v", c.MatchThreshold)
	}
	if c.MaxMatches < 1 {
		return fmt.Errorf("max matches must be at least 1, got %d", c.MaxMatches)
	}
	if c.ConfidenceBoost < 0 {
		return fmt.Errorf("confidence boost must not be negative, got %v", c.ConfidenceBoost)
	}
	if c.GalleryLimit < 1 {
		return fmt.Errorf("gallery limit must be at least 1, got %d", c.GalleryLimit)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
