// Package placement holds the table that maps form fields to the places on a
// template where their values are painted.
//
// Tables are plain data. They are loaded once at startup from YAML (JSON is
// accepted too, being a YAML subset), validated, and never mutated:
//
//	version: "2024-06"
//	fields:
//	  - name: firstName
//	    directives:
//	      - {page: 0, x: 196, y: 436}
//	      - {page: 3, x: 397, y: 201, rotate: 90, fontFamily: Helvetica, fontWeight: 700}
//	  - name: photo
//	    directives:
//	      - {page: 0, x: 556.66, y: 566.66, kind: image, width: 230, height: 226.66}
//
// Coordinates are design-space points with the origin at the top-left corner
// of the page.
package placement

// File is the on-disk form of a placement table.
type File struct {
	Version string      `yaml:"version,omitempty"`
	Fields  []FieldSpec `yaml:"fields"`
}

// FieldSpec lists the directives of one field in paint order.
type FieldSpec struct {
	Name       string          `yaml:"name"`
	Directives []DirectiveSpec `yaml:"directives"`
}

// DirectiveSpec is one undecoded directive. Kind selects which of the
// remaining fields are relevant.
type DirectiveSpec struct {
	Page   *int     `yaml:"page"`
	X      *float64 `yaml:"x"`
	Y      *float64 `yaml:"y"`
	Width  float64  `yaml:"width,omitempty"`
	Height float64  `yaml:"height,omitempty"`
	Rotate float64  `yaml:"rotate,omitempty"` // degrees, counter-clockwise
	Kind   string   `yaml:"kind,omitempty"`   // text (default), image, barcode

	// Image
	Src string `yaml:"src,omitempty"` // static asset path; empty means the field value is the source

	// Text
	FontFamily string  `yaml:"fontFamily,omitempty"`
	FontWeight int     `yaml:"fontWeight,omitempty"`
	FontStyle  string  `yaml:"fontStyle,omitempty"` // normal, italic
	FontKey    string  `yaml:"fontKey,omitempty"`
	FontSize   float64 `yaml:"fontSize,omitempty"`
	Color      any     `yaml:"color,omitempty"` // "#rgb", "#rrggbb" or [r, g, b] in 0..1

	// Barcode
	Symbology string `yaml:"symbology,omitempty"` // qr (default), code128, pdf417
}
