package palette

import (
	"fmt"
	"image"
	"io"
	"maps"
	"math"
	"slices"

	// Registered decoders for icon formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// sampleEdge bounds the icon before bucketing; larger icons are scaled down.
	sampleEdge = 64
	// quantBits is the per-channel precision kept when bucketing pixels.
	quantBits  = 5
	minOpacity = 0x80
)

// Swatch is one representative color with the number of pixels it covers.
type Swatch struct {
	Color      Color
	Population int
}

// Palette is the set of swatches derived from an image. Any of them may be nil.
type Palette struct {
	Dominant   *Swatch
	Vibrant    *Swatch
	LightMuted *Swatch
}

// Preferred returns the light muted swatch, then the vibrant one, then the
// dominant one.
func (p Palette) Preferred() (Color, bool) {
	for _, s := range []*Swatch{p.LightMuted, p.Vibrant, p.Dominant} {
		if s != nil {
			return s.Color, true
		}
	}
	return 0, false
}

// Decode reads a PNG, JPEG, GIF, BMP or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode icon: %w", err)
	}
	return img, nil
}

// FromReader decodes an image and extracts its palette.
func FromReader(r io.Reader) (Palette, error) {
	img, err := Decode(r)
	if err != nil {
		return Palette{}, err
	}
	return Extract(img), nil
}

type target struct {
	minSat, idealSat, maxSat       float64
	minLight, idealLight, maxLight float64
}

var (
	lightMutedTarget = target{
		minSat: 0, idealSat: 0.3, maxSat: 0.4,
		minLight: 0.55, idealLight: 0.74, maxLight: 1,
	}
	vibrantTarget = target{
		minSat: 0.35, idealSat: 1, maxSat: 1,
		minLight: 0.3, idealLight: 0.5, maxLight: 0.7,
	}
)

type bucket struct {
	r, g, b    float64
	population int
}

func (b bucket) color() colorful.Color {
	n := float64(b.population)
	return colorful.Color{R: b.r / n, G: b.g / n, B: b.b / n}
}

// Extract quantizes the opaque pixels of img and scores the resulting
// buckets against the light muted and vibrant targets.
func Extract(img image.Image) Palette {
	if img == nil {
		return Palette{}
	}
	img = shrink(img)
	buckets := make(map[uint32]*bucket)
	total := 0
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a>>8 < minOpacity {
				continue
			}
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			r, g, b := c.Clamped().RGB255()
			key := uint32(r>>(8-quantBits))<<(2*quantBits) |
				uint32(g>>(8-quantBits))<<quantBits |
				uint32(b>>(8-quantBits))
			bk := buckets[key]
			if bk == nil {
				bk = &bucket{}
				buckets[key] = bk
			}
			bk.r += c.R
			bk.g += c.G
			bk.b += c.B
			bk.population++
			total++
		}
	}
	if total == 0 {
		return Palette{}
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, key := range slices.Sorted(maps.Keys(buckets)) {
		ordered = append(ordered, buckets[key])
	}
	var dominant *bucket
	for _, bk := range ordered {
		if dominant == nil || bk.population > dominant.population {
			dominant = bk
		}
	}
	return Palette{
		Dominant:   &Swatch{Color: FromColorful(dominant.color()), Population: dominant.population},
		LightMuted: best(ordered, lightMutedTarget, total),
		Vibrant:    best(ordered, vibrantTarget, total),
	}
}

func best(buckets []*bucket, t target, total int) *Swatch {
	var (
		winner *bucket
		score  = math.Inf(-1)
	)
	for _, bk := range buckets {
		_, s, l := bk.color().Hsl()
		if s < t.minSat || s > t.maxSat || l < t.minLight || l > t.maxLight {
			continue
		}
		got := 3*(1-math.Abs(s-t.idealSat)) +
			6*(1-math.Abs(l-t.idealLight)) +
			float64(bk.population)/float64(total)
		if got > score {
			winner, score = bk, got
		}
	}
	if winner == nil {
		return nil
	}
	return &Swatch{Color: FromColorful(winner.color()), Population: winner.population}
}

func shrink(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= sampleEdge && h <= sampleEdge {
		return img
	}
	scale := float64(sampleEdge) / float64(max(w, h))
	dw := max(1, int(float64(w)*scale))
	dh := max(1, int(float64(h)*scale))
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
