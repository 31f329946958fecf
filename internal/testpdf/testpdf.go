// Package testpdf generates small PDF templates for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// Letter is a US Letter page in points.
var Letter = gofpdf.SizeType{Wd: 612, Ht: 792}

// Build returns an uncompressed PDF whose pages have the given sizes. Each
// page carries a label with its one-based number.
func Build(sizes ...gofpdf.SizeType) ([]byte, error) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetCompression(false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Helvetica", "", 14)
	for i, s := range sizes {
		pdf.AddPageFormat("P", s)
		pdf.Text(20, 30, fmt.Sprintf("Template page %d", i+1))
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Template returns a template of n Letter pages, failing t on error.
func Template(t testing.TB, n int) []byte {
	t.Helper()
	sizes := make([]gofpdf.SizeType, n)
	for i := range sizes {
		sizes[i] = Letter
	}
	data, err := Build(sizes...)
	if err != nil {
		t.Fatalf("creating test PDF: %v", err)
	}
	return data
}
