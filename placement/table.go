package placement

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lvillar/pdfstamp"
)

// Table maps field names to ordered directives. A Table is immutable after
// Compile and safe for concurrent use.
type Table struct {
	version string
	order   []string
	fields  map[string][]Directive
	spec    File
}

// DirectivesFor returns the directives of field in declared order. Unknown
// fields yield an empty slice.
func (t *Table) DirectivesFor(field string) []Directive {
	ds := t.fields[field]
	out := make([]Directive, len(ds))
	copy(out, ds)
	return out
}

// Fields returns the field names in declared order.
func (t *Table) Fields() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Version returns the table version string, possibly empty.
func (t *Table) Version() string { return t.version }

// Spec returns the table in its on-disk form.
func (t *Table) Spec() File { return t.spec }

// Compile validates f and builds a Table from it. All problems are reported
// at once, each wrapping pdfstamp.ErrValidation.
func Compile(f File) (*Table, error) {
	t := &Table{
		version: f.Version,
		fields:  make(map[string][]Directive, len(f.Fields)),
		spec:    f,
	}
	var errs []error
	for _, fs := range f.Fields {
		name := strings.TrimSpace(fs.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("field with empty name: %w", pdfstamp.ErrValidation))
			continue
		}
		if _, dup := t.fields[name]; dup {
			errs = append(errs, fmt.Errorf("field %q declared twice: %w", name, pdfstamp.ErrValidation))
			continue
		}
		ds := make([]Directive, 0, len(fs.Directives))
		for i, spec := range fs.Directives {
			d, err := compileDirective(spec)
			if err != nil {
				errs = append(errs, fmt.Errorf("field %q directive %d: %w", name, i, err))
				continue
			}
			ds = append(ds, d)
		}
		t.order = append(t.order, name)
		t.fields[name] = ds
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// MustCompile is like Compile but panics on error. It is intended for
// built-in tables.
func MustCompile(f File) *Table {
	t, err := Compile(f)
	if err != nil {
		panic(err)
	}
	return t
}

func compileDirective(s DirectiveSpec) (Directive, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, pdfstamp.ErrValidation)...)
	}

	if s.Page == nil {
		return Directive{}, invalid("page is required")
	}
	if *s.Page < 0 {
		return Directive{}, invalid("page %d is negative", *s.Page)
	}
	if s.X == nil || s.Y == nil {
		return Directive{}, invalid("x and y are required")
	}
	for _, v := range []struct {
		name string
		val  float64
		min0 bool
	}{
		{"x", *s.X, false},
		{"y", *s.Y, false},
		{"width", s.Width, true},
		{"height", s.Height, true},
		{"rotate", s.Rotate, false},
		{"fontSize", s.FontSize, true},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return Directive{}, invalid("%s is not a finite number", v.name)
		}
		if v.min0 && v.val < 0 {
			return Directive{}, invalid("%s %g is negative", v.name, v.val)
		}
	}

	d := Directive{
		Page:   *s.Page,
		X:      *s.X,
		Y:      *s.Y,
		Width:  s.Width,
		Height: s.Height,
		Rotate: s.Rotate,
	}

	switch strings.ToLower(s.Kind) {
	case "", "text":
		style := FontStyle(strings.ToLower(s.FontStyle))
		switch style {
		case "":
			style = StyleNormal
		case StyleNormal, StyleItalic:
		default:
			return Directive{}, invalid("unknown fontStyle %q", s.FontStyle)
		}
		if s.FontWeight < 0 {
			return Directive{}, invalid("fontWeight %d is negative", s.FontWeight)
		}
		if !pdfstamp.ValidColorSpec(s.Color) {
			return Directive{}, invalid("color must be a hex string or an [r, g, b] triple")
		}
		d.Paint = Text{
			Family:  s.FontFamily,
			Weight:  s.FontWeight,
			Style:   style,
			FontKey: s.FontKey,
			Size:    s.FontSize,
			Color:   pdfstamp.ParseColor(s.Color),
		}
	case "image":
		d.Paint = Image{Src: s.Src}
	case "barcode":
		sym := Symbology(strings.ToLower(s.Symbology))
		switch sym {
		case "":
			sym = QR
		case QR, Code128, PDF417:
		default:
			return Directive{}, invalid("unknown symbology %q", s.Symbology)
		}
		d.Paint = Barcode{Symbology: sym}
	default:
		return Directive{}, invalid("unknown kind %q", s.Kind)
	}
	return d, nil
}
