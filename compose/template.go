// Package compose paints placement directives onto an imported PDF template.
//
// A Template is parsed once and shared. Each render opens a fresh Document
// from it, the Compositor paints field values onto the Document through the
// Canvas interface, and the Document serializes the template pages with the
// overlays applied.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"

	"github.com/lvillar/pdfstamp"
)

// A4 in points; used when a page reports no MediaBox.
const (
	a4Width  = 595.28
	a4Height = 841.89
)

// PageSize is a page's MediaBox size in points.
type PageSize struct {
	Width, Height float64
}

// Template is a parsed, read-only PDF template. It is safe to share between
// concurrent renders.
type Template struct {
	data  []byte
	sizes []PageSize
}

// OpenTemplate reads and parses the template at path. A missing file wraps
// pdfstamp.ErrNotFound.
func OpenTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, pdfstamp.Errorf("open template", "%w: %s", pdfstamp.ErrNotFound, path)
	}
	if err != nil {
		return nil, &pdfstamp.Error{Op: "open template", Err: err}
	}
	return LoadTemplate(data)
}

// LoadTemplate parses data as a PDF and records its page sizes. Anything the
// importer cannot read wraps pdfstamp.ErrInvalidTemplate.
func LoadTemplate(data []byte) (t *Template, err error) {
	const op = "load template"
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return nil, pdfstamp.Errorf(op, "%w: missing %%PDF header", pdfstamp.ErrInvalidTemplate)
	}

	sizes, err := importSizes(data)
	if err != nil {
		return nil, pdfstamp.Errorf(op, "%w: %v", pdfstamp.ErrInvalidTemplate, err)
	}
	if len(sizes) == 0 {
		return nil, pdfstamp.Errorf(op, "%w: no pages", pdfstamp.ErrInvalidTemplate)
	}
	return &Template{data: data, sizes: sizes}, nil
}

// importSizes runs the importer against a scratch document. The importer
// panics on malformed input.
func importSizes(data []byte) (sizes []PageSize, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	scratch := gofpdf.New("P", "pt", "A4", "")
	imp := gofpdi.NewImporter()
	var rs io.ReadSeeker = bytes.NewReader(data)
	imp.ImportPageFromStream(scratch, &rs, 1, "/MediaBox")
	if scratch.Err() {
		return nil, scratch.Error()
	}

	boxes := imp.GetPageSizes()
	sizes = make([]PageSize, len(boxes))
	for i := range sizes {
		sizes[i] = mediaBox(boxes, i+1)
	}
	return sizes, nil
}

func mediaBox(boxes map[int]map[string]map[string]float64, pageNo int) PageSize {
	s := PageSize{Width: a4Width, Height: a4Height}
	if mb, ok := boxes[pageNo]["/MediaBox"]; ok && mb["w"] > 0 && mb["h"] > 0 {
		s = PageSize{Width: mb["w"], Height: mb["h"]}
	}
	return s
}

// PageCount returns the number of template pages.
func (t *Template) PageCount() int { return len(t.sizes) }

// PageSizes returns the MediaBox size of every page in order.
func (t *Template) PageSizes() []PageSize {
	out := make([]PageSize, len(t.sizes))
	copy(out, t.sizes)
	return out
}
