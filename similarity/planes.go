package similarity

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var ErrDecode = errors.New("invalid image data")

// Planes is a normalized image split into one byte plane per colour channel.
type Planes struct {
	Width, Height int
	R, G, B       []uint8
}

func (p *Planes) Len() int { return p.Width * p.Height }

// Normalize decodes data and resizes it to a size x size square with a
// bilinear filter.
func Normalize(data []byte, size int) (*Planes, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return NormalizeImage(img, size)
}

func NormalizeImage(img image.Image, size int) (*Planes, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	resized := imaging.Resize(img, size, size, imaging.Linear)
	return splitChannels(resized), nil
}

func splitChannels(img *image.NRGBA) *Planes {
	bounds := img.Bounds()
	p := &Planes{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}
	n := p.Width * p.Height
	p.R = make([]uint8, n)
	p.G = make([]uint8, n)
	p.B = make([]uint8, n)

	var wg sync.WaitGroup
	wg.Add(3)

	for c, plane := range [][]uint8{p.R, p.G, p.B} {
		go func(channel int, dst []uint8) {
			defer wg.Done()
			for y := 0; y < p.Height; y++ {
				row := img.Pix[y*img.Stride:]
				offset := y * p.Width
				for x := 0; x < p.Width; x++ {
					dst[offset+x] = row[x*4+channel]
				}
			}
		}(c, plane)
	}

	wg.Wait()
	return p
}
