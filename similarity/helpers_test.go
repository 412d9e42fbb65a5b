package similarity

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func noiseImage(w, h int, seed int64) *image.RGBA {
	rnd := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rnd.Intn(256)),
				G: uint8(rnd.Intn(256)),
				B: uint8(rnd.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

// splitImage is black on the left half and white on the right half.
func splitImage(w, h int) *image.RGBA {
	img := solidImage(w, h, color.RGBA{A: 255})
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func mustNormalize(t testing.TB, img image.Image) *Planes {
	t.Helper()
	p, err := Normalize(encodePNG(t, img), CanonicalSize)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return p
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 4
	return cfg
}
