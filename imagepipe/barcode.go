package imagepipe

import (
	"bytes"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
	pdf417 "github.com/ruudk/golang-pdf417"

	"github.com/lvillar/pdfstamp"
)

const (
	pdf417Columns  = 10
	pdf417Security = 2
)

// Barcode encodes content in the named symbology ("qr", "code128" or
// "pdf417") and renders it as a PNG of at least width×height pixels. A
// requested size smaller than the symbol's module grid is raised to it.
// Content the symbology cannot encode is ErrInvalidFormat; an unknown
// symbology is ErrValidation.
func Barcode(symbology, content string, width, height int) (Compressed, error) {
	const op = "encode barcode"
	if content == "" {
		return Compressed{}, pdfstamp.Errorf(op, "%w: empty content", pdfstamp.ErrInvalidFormat)
	}

	var (
		code barcode.Barcode
		err  error
	)
	switch symbology {
	case "", "qr":
		code, err = qr.Encode(content, qr.M, qr.Auto)
	case "code128":
		code, err = code128.Encode(content)
	case "pdf417":
		code = pdf417.Encode(content, pdf417Columns, pdf417Security)
	default:
		return Compressed{}, pdfstamp.Errorf(op, "%w: unknown symbology %q", pdfstamp.ErrValidation, symbology)
	}
	if err != nil {
		return Compressed{}, pdfstamp.Errorf(op, "%w: %s content: %v", pdfstamp.ErrInvalidFormat, symbology, err)
	}

	native := code.Bounds()
	width = max(width, native.Dx())
	height = max(height, native.Dy())
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return Compressed{}, &pdfstamp.Error{Op: op, Err: err}
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, scaled); err != nil {
		return Compressed{}, &pdfstamp.Error{Op: op, Err: err}
	}
	return Compressed{Data: buf.Bytes(), Format: PNG, Width: width, Height: height}, nil
}
