package compose

import (
	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/fonts"
	"github.com/lvillar/pdfstamp/imagepipe"
)

// Canvas is the drawing surface the Compositor paints on. Coordinates are
// PDF user space: points, origin at the bottom-left of the page. Pages are
// zero-based.
type Canvas interface {
	PageCount() int
	PageSize(page int) (width, height float64)
	Fonts() *fonts.Registry
	DrawText(page int, op TextOp) error
	DrawImage(page int, op ImageOp) error
}

// TextOp draws a string with its baseline starting at (X, Y).
type TextOp struct {
	X, Y   float64
	Text   string
	Font   string // font key from the registry
	Size   float64
	Color  pdfstamp.Color
	Rotate float64 // degrees counter-clockwise around (X, Y)
}

// ImageOp draws an image with its bottom-left corner at (X, Y).
type ImageOp struct {
	X, Y          float64
	Width, Height float64 // points
	Rotate        float64 // degrees counter-clockwise around (X, Y)
	Image         imagepipe.Compressed
}
