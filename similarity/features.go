package similarity

// RGB is a mean colour with channels in [0,255].
type RGB struct {
	R, G, B float64
}

// EdgeMap marks interior pixels whose local intensity gradient exceeds the
// edge threshold. Border pixels are not tracked.
type EdgeMap struct {
	Width, Height int
	cells         []bool
}

func (m *EdgeMap) Tracked(x, y int) bool {
	return x > 0 && y > 0 && x < m.Width-1 && y < m.Height-1
}

func (m *EdgeMap) At(x, y int) bool {
	if !m.Tracked(x, y) {
		return false
	}
	return m.cells[y*m.Width+x]
}

// Interior is the number of tracked cells.
func (m *EdgeMap) Interior() int {
	if m.Width < 3 || m.Height < 3 {
		return 0
	}
	return (m.Width - 2) * (m.Height - 2)
}

// Count returns the number of cells marked as edges.
func (m *EdgeMap) Count() int {
	n := 0
	for _, edge := range m.cells {
		if edge {
			n++
		}
	}
	return n
}

type Features struct {
	Histogram []float64
	Edges     *EdgeMap
	Color     RGB
}

func Extract(p *Planes, cfg Config) *Features {
	return &Features{
		Histogram: Histogram(p, cfg.BinsPerChannel),
		Edges:     Edges(p, cfg.EdgeThreshold),
		Color:     AverageColor(p),
	}
}

// Histogram returns 3*bins normalized frequencies, red bins first, then green,
// then blue. The whole vector sums to 1.
func Histogram(p *Planes, bins int) []float64 {
	hist := make([]float64, 3*bins)
	n := p.Len()
	if n == 0 {
		return hist
	}

	width := 256 / bins
	bucket := func(v uint8) int {
		b := int(v) / width
		if b >= bins {
			b = bins - 1
		}
		return b
	}

	for i := 0; i < n; i++ {
		hist[bucket(p.R[i])]++
		hist[bins+bucket(p.G[i])]++
		hist[2*bins+bucket(p.B[i])]++
	}

	total := float64(3 * n)
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

func luma(p *Planes, i int) float64 {
	return 0.299*float64(p.R[i]) + 0.587*float64(p.G[i]) + 0.114*float64(p.B[i])
}

func Edges(p *Planes, threshold float64) *EdgeMap {
	m := &EdgeMap{
		Width:  p.Width,
		Height: p.Height,
		cells:  make([]bool, p.Len()),
	}
	if m.Interior() == 0 {
		return m
	}

	gray := make([]float64, p.Len())
	for i := range gray {
		gray[i] = luma(p, i)
	}

	w := p.Width
	for y := 1; y < p.Height-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			dx := abs(gray[i-1] - gray[i+1])
			dy := abs(gray[i-w] - gray[i+w])
			m.cells[i] = dx+dy > threshold
		}
	}
	return m
}

func AverageColor(p *Planes) RGB {
	n := p.Len()
	if n == 0 {
		return RGB{}
	}
	var r, g, b uint64
	for i := 0; i < n; i++ {
		r += uint64(p.R[i])
		g += uint64(p.G[i])
		b += uint64(p.B[i])
	}
	return RGB{
		R: float64(r) / float64(n),
		G: float64(g) / float64(n),
		B: float64(b) / float64(n),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
