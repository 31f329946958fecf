// Package render ties the placement table, font registry, image pipeline,
// compositor and output assembler into a single Render call.
package render

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/compose"
	"github.com/lvillar/pdfstamp/fonts"
	"github.com/lvillar/pdfstamp/imagepipe"
	"github.com/lvillar/pdfstamp/output"
	"github.com/lvillar/pdfstamp/placement"
)

// Asset directory layout read by Open.
const (
	TemplateFile  = "template.pdf"
	FontsDir      = "fonts"
	PlacementFile = "placement.yaml"
)

// Field names used to name the output file.
const (
	FirstNameField = "firstName"
	LastNameField  = "lastName"
)

// Engine renders filled documents from one template. It is safe for
// concurrent use; every Render builds its own document and font registry.
type Engine struct {
	tpl  *compose.Template
	comp *compose.Compositor
	cfg  *engineConfig
}

// New returns an engine for the template PDF in data.
//
// Example:
//
//	eng, err := render.New(tpl,
//	    render.WithTable(placement.Default()),
//	    render.WithQuality(85),
//	)
func New(data []byte, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	tpl, err := compose.LoadTemplate(data)
	if err != nil {
		return nil, err
	}
	return newEngine(tpl, cfg), nil
}

// Open returns an engine for the asset directory dir: the template is
// dir/template.pdf, custom fonts are the .ttf files in dir/fonts, static
// images are read from dir, and dir/placement.yaml, when present, replaces
// the built-in placement table.
func Open(dir string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	tpl, err := compose.OpenTemplate(filepath.Join(dir, TemplateFile))
	if err != nil {
		return nil, err
	}
	if cfg.fonts == nil {
		if cfg.fonts, err = fonts.LoadDir(filepath.Join(dir, FontsDir)); err != nil {
			return nil, pdfstamp.Errorf("open assets", "%w", err)
		}
	}
	if cfg.table == nil {
		t, err := placement.Load(filepath.Join(dir, PlacementFile))
		switch {
		case err == nil:
			cfg.table = t
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	if cfg.images == nil {
		cfg.images = imagepipe.New(imagepipe.WithAssets(os.DirFS(dir)))
	}
	return newEngine(tpl, cfg), nil
}

func newEngine(tpl *compose.Template, cfg *engineConfig) *Engine {
	if cfg.table == nil {
		cfg.table = placement.Default()
	}
	if cfg.images == nil {
		cfg.images = imagepipe.New()
	}
	if cfg.logger == nil {
		cfg.logger = pdfstamp.Logger()
	}
	comp := compose.New(cfg.table, cfg.images,
		compose.WithImageBounds(cfg.bounds),
		compose.WithQuality(cfg.quality),
		compose.WithPixelsPerPoint(cfg.pixelsPerPoint),
	)
	return &Engine{tpl: tpl, comp: comp, cfg: cfg}
}

// Render composes fields onto a fresh copy of the template and returns the
// serialized PDF. On any error, including cancellation of ctx, no output is
// returned.
func (e *Engine) Render(ctx context.Context, fields map[string]string) (output.Result, error) {
	start := time.Now()
	now := e.cfg.clock()
	log := e.cfg.logger

	log.Info("render started", "fields", len(fields), "pages", e.tpl.PageCount())
	doc := e.tpl.NewDocument(compose.DocumentOptions{
		Fonts:       e.cfg.fonts,
		CreatedAt:   now,
		Compression: e.cfg.compression,
	})
	if err := e.comp.Compose(ctx, doc, fields); err != nil {
		log.Info("render failed", "error", err, "elapsed", time.Since(start))
		return output.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return output.Result{}, err
	}

	res, err := output.Assemble(doc, fields[FirstNameField], fields[LastNameField], now)
	if err != nil {
		log.Error("assembling output failed", "error", err)
		return output.Result{}, err
	}
	log.Info("render finished", "file", res.Filename, "bytes", res.Size, "elapsed", time.Since(start))
	return res, nil
}

// Info describes the loaded template and placement table.
type Info struct {
	Pages        []compose.PageSize `json:"pages"`
	TableVersion string             `json:"tableVersion"`
	Fields       []string           `json:"fields"`
	Fonts        []string           `json:"fonts"`
}

// Info returns the template page sizes, the placement table version and its
// field names, and the custom font keys.
func (e *Engine) Info() Info {
	info := Info{
		Pages:        e.tpl.PageSizes(),
		TableVersion: e.cfg.table.Version(),
		Fields:       e.cfg.table.Fields(),
	}
	for _, f := range e.cfg.fonts.Fonts() {
		info.Fonts = append(info.Fonts, f.Key)
	}
	return info
}

// Table returns the placement table in use.
func (e *Engine) Table() *placement.Table { return e.cfg.table }
