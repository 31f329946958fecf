package placement

import "github.com/lvillar/pdfstamp"

// Directive is one instruction to paint a field value at a page position.
type Directive struct {
	Page   int
	X, Y   float64 // design space, origin top-left
	Width  float64 // 0 means unspecified
	Height float64 // 0 means unspecified
	Rotate float64 // degrees, counter-clockwise; 0 means none
	Paint  Paint
}

// Paint is the kind-specific part of a directive: Text, Image or Barcode.
type Paint interface {
	paint()
}

// FontStyle is the slant requested for a text directive.
type FontStyle string

const (
	StyleNormal FontStyle = "normal"
	StyleItalic FontStyle = "italic"
)

// Text paints the field value as a string.
type Text struct {
	Family  string // empty means the default family
	Weight  int    // 0 means unspecified (400)
	Style   FontStyle
	FontKey string  // explicit font key, bypasses family resolution
	Size    float64 // points; 0 means DefaultFontSize
	Color   pdfstamp.Color
}

// Image paints a PNG or JPEG. With Src set the image is a static asset and is
// painted regardless of the field value; otherwise the field value names the
// image source.
type Image struct {
	Src string
}

// Static reports whether the image comes from the asset store.
func (i Image) Static() bool { return i.Src != "" }

// Symbology names a barcode encoding.
type Symbology string

const (
	QR      Symbology = "qr"
	Code128 Symbology = "code128"
	PDF417  Symbology = "pdf417"
)

// Barcode paints the field value encoded as a barcode.
type Barcode struct {
	Symbology Symbology
}

func (Text) paint()    {}
func (Image) paint()   {}
func (Barcode) paint() {}

// DefaultFontSize is used when a text directive gives no size.
const DefaultFontSize = 10

// StaticImage reports whether d paints a static asset image.
func (d Directive) StaticImage() bool {
	img, ok := d.Paint.(Image)
	return ok && img.Static()
}
