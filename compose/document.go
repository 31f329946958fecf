package compose

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/fonts"
	"github.com/lvillar/pdfstamp/imagepipe"
)

// DocumentOptions control document metadata and encoding.
type DocumentOptions struct {
	Fonts       *fonts.Set // custom fonts to embed; may be nil
	CreatedAt   time.Time  // creation date written to the info dictionary
	Compression bool       // deflate content streams
	Title       string
}

// Document is one in-memory output PDF backed by gofpdf. Draw calls are
// buffered per page; Output imports every template page in order, places it
// full-size and replays that page's overlays on top. A Document is not safe
// for concurrent use and can be written once.
type Document struct {
	tpl     *Template
	pdf     *gofpdf.Fpdf
	imp     *gofpdi.Importer
	reg     *fonts.Registry
	tr      func(string) string
	ops     [][]func(pageH float64)
	images  map[string]bool
	written bool
}

var _ Canvas = (*Document)(nil)

// NewDocument starts a fresh document for one render. Every template page is
// carried into the output, painted or not.
func (t *Template) NewDocument(opts DocumentOptions) *Document {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCompression(opts.Compression)
	pdf.SetCatalogSort(true)
	pdf.SetProducer("pdfstamp", true)
	if !opts.CreatedAt.IsZero() {
		pdf.SetCreationDate(opts.CreatedAt)
	}
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}

	d := &Document{
		tpl:    t,
		pdf:    pdf,
		imp:    gofpdi.NewImporter(),
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		ops:    make([][]func(float64), len(t.sizes)),
		images: make(map[string]bool),
	}
	d.reg = fonts.Build(pdf, opts.Fonts)
	return d
}

// PageCount returns the number of template pages.
func (d *Document) PageCount() int { return len(d.tpl.sizes) }

// PageSize returns the size of page in points, or zero for an out-of-range
// page.
func (d *Document) PageSize(page int) (float64, float64) {
	if page < 0 || page >= len(d.tpl.sizes) {
		return 0, 0
	}
	s := d.tpl.sizes[page]
	return s.Width, s.Height
}

// Fonts returns the document's font registry.
func (d *Document) Fonts() *fonts.Registry { return d.reg }

func (d *Document) checkPage(page int) error {
	if d.written {
		return errors.New("compose: document already written")
	}
	if page < 0 || page >= len(d.ops) {
		return fmt.Errorf("compose: page %d out of range [0,%d)", page, len(d.ops))
	}
	return nil
}

// DrawText queues a text overlay on page.
func (d *Document) DrawText(page int, op TextOp) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	face, ok := d.reg.Face(op.Font)
	if !ok {
		face, _ = d.reg.Face(fonts.DefaultKey)
	}
	text := op.Text
	if !face.UTF8 {
		text = d.tr(text)
	}
	r, g, b := op.Color.RGB255()

	d.ops[page] = append(d.ops[page], func(pageH float64) {
		x, y := op.X, pageH-op.Y
		d.pdf.SetFont(face.Family, face.Style, op.Size)
		d.pdf.SetTextColor(r, g, b)
		if op.Rotate != 0 {
			d.pdf.TransformBegin()
			d.pdf.TransformRotate(op.Rotate, x, y)
		}
		d.pdf.Text(x, y, text)
		if op.Rotate != 0 {
			d.pdf.TransformEnd()
		}
	})
	return nil
}

// DrawImage registers the image bytes with the document and queues the
// placement on page. Identical images are embedded once.
func (d *Document) DrawImage(page int, op ImageOp) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	var imgType string
	switch op.Image.Format {
	case imagepipe.PNG:
		imgType = "PNG"
	case imagepipe.JPEG:
		imgType = "JPG"
	default:
		return pdfstamp.Errorf("draw image", "%w: %q", pdfstamp.ErrInvalidFormat, op.Image.Format)
	}

	sum := sha256.Sum256(op.Image.Data)
	name := "img-" + hex.EncodeToString(sum[:12])
	opts := gofpdf.ImageOptions{ImageType: imgType}
	if !d.images[name] {
		d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(op.Image.Data))
		if d.pdf.Err() {
			return &pdfstamp.Error{Op: "draw image", Err: d.pdf.Error()}
		}
		d.images[name] = true
	}

	d.ops[page] = append(d.ops[page], func(pageH float64) {
		// gofpdf places images by their top-left corner.
		x, yTop := op.X, pageH-(op.Y+op.Height)
		if op.Rotate != 0 {
			d.pdf.TransformBegin()
			d.pdf.TransformRotate(op.Rotate, op.X, pageH-op.Y)
		}
		d.pdf.ImageOptions(name, x, yTop, op.Width, op.Height, false, opts, 0, "")
		if op.Rotate != 0 {
			d.pdf.TransformEnd()
		}
	})
	return nil
}

// Output writes the finished PDF to w.
func (d *Document) Output(w io.Writer) (err error) {
	const op = "write document"
	if d.written {
		return pdfstamp.Errorf(op, "document already written")
	}
	d.written = true

	if err := d.placePages(); err != nil {
		return pdfstamp.Errorf(op, "%w: %v", pdfstamp.ErrInvalidTemplate, err)
	}
	if d.pdf.Err() {
		return &pdfstamp.Error{Op: op, Err: d.pdf.Error()}
	}
	if err := d.pdf.Output(w); err != nil {
		return &pdfstamp.Error{Op: op, Err: err}
	}
	return nil
}

func (d *Document) placePages() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	var rs io.ReadSeeker = bytes.NewReader(d.tpl.data)
	for i, size := range d.tpl.sizes {
		tplID := d.imp.ImportPageFromStream(d.pdf, &rs, i+1, "/MediaBox")
		d.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: size.Width, Ht: size.Height})
		d.imp.UseImportedTemplate(d.pdf, tplID, 0, 0, size.Width, size.Height)
		for _, draw := range d.ops[i] {
			draw(size.Height)
		}
	}
	return nil
}
