package similarity

import (
	"image/color"
	"math"
	"testing"
)

func TestHistogramSumsToOne(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		hist := Histogram(mustNormalize(t, noiseImage(200, 150, seed)), BinsPerChannel)

		if len(hist) != 3*BinsPerChannel {
			t.Fatalf("len = %d, want %d", len(hist), 3*BinsPerChannel)
		}
		sum := 0.0
		for _, v := range hist {
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("seed %d: histogram sums to %v, want 1", seed, sum)
		}
	}
}

func TestHistogramBinsSolidColour(t *testing.T) {
	// 0 -> R bin 0, 255 -> G bin 15, 17 -> B bin 1
	hist := Histogram(mustNormalize(t, solidImage(64, 64, color.RGBA{R: 0, G: 255, B: 17, A: 255})), BinsPerChannel)

	want := map[int]float64{0: 1.0 / 3, 16 + 15: 1.0 / 3, 32 + 1: 1.0 / 3}
	for i, v := range hist {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("bin %d = %v, want %v", i, v, want[i])
		}
	}
}

func TestEdgesNeverMarkBorder(t *testing.T) {
	p := mustNormalize(t, noiseImage(128, 128, 7))
	m := Edges(p, 0)

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			border := x == 0 || y == 0 || x == m.Width-1 || y == m.Height-1
			if border && (m.At(x, y) || m.cells[y*m.Width+x]) {
				t.Fatalf("border pixel (%d,%d) marked as edge", x, y)
			}
			if border == m.Tracked(x, y) {
				t.Fatalf("pixel (%d,%d): tracked = %v, border = %v", x, y, m.Tracked(x, y), border)
			}
		}
	}
	if m.Count() == 0 {
		t.Error("noise image with threshold 0 has no edges")
	}
}

func TestEdgesFindVerticalBoundary(t *testing.T) {
	m := Edges(mustNormalize(t, splitImage(128, 128)), EdgeThreshold)

	if got, want := m.Count(), 2*(128-2); got != want {
		t.Errorf("edge count = %d, want %d", got, want)
	}
	for y := 1; y < 127; y++ {
		if !m.At(63, y) || !m.At(64, y) {
			t.Fatalf("row %d: boundary columns not marked", y)
		}
		if m.At(10, y) || m.At(100, y) {
			t.Fatalf("row %d: flat area marked as edge", y)
		}
	}
}

func TestEdgesSolidImageHasNone(t *testing.T) {
	m := Edges(mustNormalize(t, solidImage(128, 128, color.RGBA{R: 90, G: 90, B: 90, A: 255})), EdgeThreshold)
	if m.Count() != 0 {
		t.Errorf("solid image has %d edges", m.Count())
	}
	if m.Interior() != 126*126 {
		t.Errorf("interior = %d, want %d", m.Interior(), 126*126)
	}
}

func TestEdgesTinyImageHasNoInterior(t *testing.T) {
	p := &Planes{Width: 2, Height: 2, R: make([]uint8, 4), G: make([]uint8, 4), B: make([]uint8, 4)}
	m := Edges(p, EdgeThreshold)
	if m.Interior() != 0 || m.Count() != 0 {
		t.Errorf("interior = %d, count = %d, want 0, 0", m.Interior(), m.Count())
	}
}

func TestAverageColor(t *testing.T) {
	got := AverageColor(mustNormalize(t, splitImage(128, 128)))
	want := RGB{127.5, 127.5, 127.5}
	if got != want {
		t.Errorf("average = %+v, want %+v", got, want)
	}

	got = AverageColor(mustNormalize(t, solidImage(50, 50, color.RGBA{R: 12, G: 34, B: 56, A: 255})))
	want = RGB{12, 34, 56}
	if got != want {
		t.Errorf("average = %+v, want %+v", got, want)
	}
}
