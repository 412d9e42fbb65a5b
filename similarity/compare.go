package similarity

import "math"

// Breakdown holds the three sub-scores of a pair and their weighted sum.
type Breakdown struct {
	Histogram float64 `json:"histogram"`
	Edge      float64 `json:"edge"`
	Color     float64 `json:"color"`
	Overall   float64 `json:"overall"`
}

func Score(a, b *Features, cfg Config) Breakdown {
	bd := Breakdown{
		Histogram: CompareHistograms(a.Histogram, b.Histogram),
		Edge:      CompareEdges(a.Edges, b.Edges),
		Color:     CompareColors(a.Color, b.Color),
	}
	w := cfg.Weights
	bd.Overall = clamp01(w.Histogram*bd.Histogram + w.Edge*bd.Edge + w.Color*bd.Color)
	return bd
}

// CompareHistograms maps the Pearson correlation of a and b from [-1,1] onto
// [0,1]. Vectors without variance score 0.
func CompareHistograms(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	// a flat histogram leaves float residue in its variance
	if varA < varianceEpsilon || varB < varianceEpsilon {
		return 0
	}
	denom := math.Sqrt(varA * varB)
	return clamp01((cov/denom + 1) / 2)
}

// CompareEdges returns the fraction of cells tracked in both maps whose edge
// flags are equal.
func CompareEdges(a, b *EdgeMap) float64 {
	if a == nil || b == nil {
		return 0
	}

	var agree, total int
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			if !a.Tracked(x, y) || !b.Tracked(x, y) {
				continue
			}
			total++
			if a.At(x, y) == b.At(x, y) {
				agree++
			}
		}
	}

	if total == 0 {
		return 0
	}
	return float64(agree) / float64(total)
}

func CompareColors(a, b RGB) float64 {
	diff := abs(a.R-b.R) + abs(a.G-b.G) + abs(a.B-b.B)
	return clamp01(1 - diff/maxColorDistance)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
