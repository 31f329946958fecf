package imagepipe

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // recognized so it can be rejected by name

	"github.com/lvillar/pdfstamp"
)

// DefaultQuality is the JPEG re-encode quality.
const DefaultQuality = 80

// Bounds is the pixel box an image is fitted inside.
type Bounds struct {
	MaxWidth, MaxHeight int
}

// DefaultBounds applies when a directive has no width or height.
var DefaultBounds = Bounds{MaxWidth: 1024, MaxHeight: 1024}

// Compressed is a re-encoded image ready to embed.
type Compressed struct {
	Data   []byte
	Format Format
	Width  int // pixels
	Height int // pixels
}

// Normalize decodes data, rejects anything other than PNG or JPEG, scales it
// down to fit b preserving the aspect ratio, and re-encodes it in its
// original format. Images are never enlarged. PNGs use maximum compression;
// JPEGs use quality, or DefaultQuality when quality is not in 1..100.
func Normalize(data []byte, b Bounds, quality int) (Compressed, error) {
	const op = "normalize image"
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Compressed{}, pdfstamp.Errorf(op, "%w: unrecognized image data", pdfstamp.ErrInvalidFormat)
	}
	var format Format
	switch name {
	case "png":
		format = PNG
	case "jpeg":
		format = JPEG
	default:
		return Compressed{}, pdfstamp.Errorf(op, "%w: %s images are not supported", pdfstamp.ErrInvalidFormat, name)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Compressed{}, pdfstamp.Errorf(op, "%w: %v", pdfstamp.ErrInvalidFormat, err)
	}
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()
	w, h := FitInside(srcW, srcH, b)

	// Always produce 8-bit NRGBA; 16-bit and paletted PNGs are flattened.
	var out *image.NRGBA
	if w != srcW || h != srcH {
		out = imaging.Resize(img, w, h, imaging.Lanczos)
	} else {
		out = imaging.Clone(img)
	}

	var buf bytes.Buffer
	switch format {
	case PNG:
		err = imaging.Encode(&buf, out, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case JPEG:
		if quality < 1 || quality > 100 {
			quality = DefaultQuality
		}
		err = imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return Compressed{}, &pdfstamp.Error{Op: op, Err: err}
	}
	return Compressed{Data: buf.Bytes(), Format: format, Width: w, Height: h}, nil
}

// FitInside returns the largest size with the aspect ratio of w×h that fits
// b without exceeding the original size. Non-positive bounds fall back to
// DefaultBounds.
func FitInside(w, h int, b Bounds) (int, int) {
	if b.MaxWidth <= 0 {
		b.MaxWidth = DefaultBounds.MaxWidth
	}
	if b.MaxHeight <= 0 {
		b.MaxHeight = DefaultBounds.MaxHeight
	}
	if w <= 0 || h <= 0 || (w <= b.MaxWidth && h <= b.MaxHeight) {
		return w, h
	}
	scale := math.Min(float64(b.MaxWidth)/float64(w), float64(b.MaxHeight)/float64(h))
	nw := min(b.MaxWidth, max(1, int(math.Round(float64(w)*scale))))
	nh := min(b.MaxHeight, max(1, int(math.Round(float64(h)*scale))))
	return nw, nh
}

// BoundsFor converts a draw size in points to a pixel bound. A zero
// dimension keeps that axis of base; a zero base axis uses DefaultBounds.
func BoundsFor(base Bounds, width, height, pixelsPerPoint float64) Bounds {
	if pixelsPerPoint <= 0 {
		pixelsPerPoint = 1
	}
	b := base
	if b.MaxWidth <= 0 {
		b.MaxWidth = DefaultBounds.MaxWidth
	}
	if b.MaxHeight <= 0 {
		b.MaxHeight = DefaultBounds.MaxHeight
	}
	if width > 0 {
		b.MaxWidth = max(1, int(math.Ceil(width*pixelsPerPoint)))
	}
	if height > 0 {
		b.MaxHeight = max(1, int(math.Ceil(height*pixelsPerPoint)))
	}
	return b
}
