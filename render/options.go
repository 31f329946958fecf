package render

import (
	"log/slog"
	"time"

	"github.com/lvillar/pdfstamp/compose"
	"github.com/lvillar/pdfstamp/fonts"
	"github.com/lvillar/pdfstamp/imagepipe"
	"github.com/lvillar/pdfstamp/placement"
)

// Option is a functional option for configuring an Engine via New or Open.
type Option func(*engineConfig)

type engineConfig struct {
	table          *placement.Table
	fonts          *fonts.Set
	images         compose.Resolver
	bounds         imagepipe.Bounds
	quality        int
	pixelsPerPoint float64
	clock          func() time.Time
	compression    bool
	logger         *slog.Logger
}

// WithTable sets the placement table. Open otherwise loads placement.yaml
// from the asset directory when present, and New uses placement.Default.
func WithTable(t *placement.Table) Option {
	return func(c *engineConfig) {
		c.table = t
	}
}

// WithFonts sets the custom font set embedded into every document.
func WithFonts(s *fonts.Set) Option {
	return func(c *engineConfig) {
		c.fonts = s
	}
}

// WithPipeline sets the image resolver. The default pipeline reads static
// assets from the asset directory and fetches remote images with the
// default timeout.
func WithPipeline(r compose.Resolver) Option {
	return func(c *engineConfig) {
		c.images = r
	}
}

// WithImageBounds sets the pixel bound for images whose directive has no
// size.
func WithImageBounds(b imagepipe.Bounds) Option {
	return func(c *engineConfig) {
		c.bounds = b
	}
}

// WithQuality sets the JPEG re-encode quality (1-100).
func WithQuality(q int) Option {
	return func(c *engineConfig) {
		c.quality = q
	}
}

// WithPixelsPerPoint sets how many image pixels are kept per point of
// directive size.
func WithPixelsPerPoint(ppp float64) Option {
	return func(c *engineConfig) {
		c.pixelsPerPoint = ppp
	}
}

// WithClock sets the time source used for filenames and document dates.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) {
		c.clock = now
	}
}

// WithCompression enables or disables deflating content streams. It is on
// by default.
func WithCompression(on bool) Option {
	return func(c *engineConfig) {
		c.compression = on
	}
}

// WithLogger sets the logger for render lifecycle messages. Sub-packages log
// through pdfstamp.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = l
	}
}

func defaultConfig() *engineConfig {
	return &engineConfig{
		bounds:         imagepipe.DefaultBounds,
		quality:        imagepipe.DefaultQuality,
		pixelsPerPoint: 1,
		clock:          time.Now,
		compression:    true,
	}
}
