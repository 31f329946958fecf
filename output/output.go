// Package output serializes a finished document and names it.
package output

import (
	"bytes"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lvillar/pdfstamp"
)

// Serializer writes a complete PDF. *compose.Document satisfies it.
type Serializer interface {
	Output(w io.Writer) error
}

// Result is a finished PDF held in memory.
type Result struct {
	Bytes    []byte
	Filename string
	Size     int64
}

// countWriter counts bytes passed through to w.
type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n) // Write can be called many times per document
	return n, err
}

// Assemble serializes doc into memory and names the result after the
// submitted first and last name and the date of now.
func Assemble(doc Serializer, first, last string, now time.Time) (Result, error) {
	var buf bytes.Buffer
	cw := &countWriter{w: &buf}
	if err := doc.Output(cw); err != nil {
		return Result{}, &pdfstamp.Error{Op: "assemble output", Err: err}
	}
	return Result{
		Bytes:    buf.Bytes(),
		Filename: Filename(first, last, now),
		Size:     cw.n,
	}, nil
}

// Filename returns "<first>_<last>_<YYYY-MM-DD>.pdf" using the UTC date of
// now. Runs of whitespace become a single underscore and path separators are
// replaced. A missing name is left out; with neither the stem is "document".
func Filename(first, last string, now time.Time) string {
	var parts []string
	for _, s := range []string{first, last} {
		if s = clean(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "document")
	}
	parts = append(parts, now.UTC().Format(time.DateOnly))
	return strings.Join(parts, "_") + ".pdf"
}

func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), "_")
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ASCIIFilename folds diacritics ("Zoë" becomes "Zoe") and replaces every
// remaining character outside printable ASCII, plus quotes and backslashes,
// with an underscore.
func ASCIIFilename(name string) string {
	folded, _, err := transform.String(foldMarks, name)
	if err != nil {
		folded = name
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, folded)
}

// ContentDisposition returns an attachment header value carrying an ASCII
// fallback filename and, when the name is not plain ASCII, the UTF-8 name
// in RFC 5987 form.
func ContentDisposition(name string) string {
	ascii := ASCIIFilename(name)
	v := mime.FormatMediaType("attachment", map[string]string{"filename": ascii})
	if ascii != name {
		v += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return v
}
