// Package pdfstamp overlays field values onto a fixed multi-page PDF template.
//
// A placement table maps each field name to directives that say where on
// which template page a value is painted, as text, as an image, or as a
// barcode. The engine in the render sub-package imports the template pages,
// composes every directive and returns the finished document:
//
//	eng, err := render.Open("assets")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := eng.Render(ctx, map[string]string{
//	    "firstName": "Jane",
//	    "lastName":  "Doe",
//	    "photo":     "data:image/png;base64,...",
//	})
//
// This root package holds what every sub-package shares: the error taxonomy,
// the color model and the library logger.
//
// Sub-packages:
//   - placement: field to directive tables, YAML loading and validation
//   - fonts: standard and custom font registry with weight/style resolution
//   - imagepipe: image source resolution, validation, resizing, barcodes
//   - compose: template import and directive-by-directive compositing
//   - output: serialization and display filenames
//   - render: the engine tying the above together
//   - store, auth, server, mcp: the service shell around the engine
package pdfstamp
