package compose

import (
	"context"
	"fmt"
	"math"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/fonts"
	"github.com/lvillar/pdfstamp/imagepipe"
	"github.com/lvillar/pdfstamp/placement"
)

// Resolver fetches image bytes. *imagepipe.Pipeline satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, src imagepipe.Source) (imagepipe.Resolved, error)
}

// Action names what happened to one directive.
type Action string

const (
	ActionText    Action = "text"
	ActionImage   Action = "image"
	ActionBarcode Action = "barcode"
	ActionSkip    Action = "skip"
)

// Event reports one directive to an Observer. X and Y are user-space
// coordinates; Reason is set for skips.
type Event struct {
	Field  string
	Index  int // directive index within the field
	Page   int
	Action Action
	X, Y   float64
	Reason string
}

// Observer receives an Event for every directive the Compositor visits.
type Observer func(Event)

// Compositor paints field values onto a Canvas following a placement table.
// It holds no per-render state and may be shared.
type Compositor struct {
	table          *placement.Table
	images         Resolver
	bounds         imagepipe.Bounds
	quality        int
	pixelsPerPoint float64
	observer       Observer
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithImageBounds sets the pixel bound for images whose directive gives no
// size.
func WithImageBounds(b imagepipe.Bounds) Option {
	return func(c *Compositor) { c.bounds = b }
}

// WithQuality sets the JPEG re-encode quality.
func WithQuality(q int) Option {
	return func(c *Compositor) { c.quality = q }
}

// WithPixelsPerPoint sets the image resolution: how many pixels are kept per
// point of directive size.
func WithPixelsPerPoint(ppp float64) Option {
	return func(c *Compositor) {
		if ppp > 0 {
			c.pixelsPerPoint = ppp
		}
	}
}

// WithObserver installs a hook called for every directive.
func WithObserver(o Observer) Option {
	return func(c *Compositor) { c.observer = o }
}

// New returns a Compositor for table, fetching images through images.
func New(table *placement.Table, images Resolver, opts ...Option) *Compositor {
	c := &Compositor{
		table:          table,
		images:         images,
		bounds:         imagepipe.DefaultBounds,
		quality:        imagepipe.DefaultQuality,
		pixelsPerPoint: 1,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compose paints every field of the table, in table order, onto canvas.
// fields maps field names to submitted values; fields without a value paint
// only their static images.
//
// Directives on pages the template does not have are skipped, as are text
// and barcode directives whose value is empty. Any image failure aborts the
// render and is returned. ctx is checked before every directive.
func (c *Compositor) Compose(ctx context.Context, canvas Canvas, fields map[string]string) error {
	log := pdfstamp.Logger()
	pages := canvas.PageCount()

	for _, field := range c.table.Fields() {
		value := fields[field]
		for i, d := range c.table.DirectivesFor(field) {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev := Event{Field: field, Index: i, Page: d.Page}

			if d.Page < 0 || d.Page >= pages {
				c.skip(ev, "page out of range")
				continue
			}
			_, pageH := canvas.PageSize(d.Page)
			ev.X, ev.Y = d.X, pageH-d.Y

			var err error
			switch p := d.Paint.(type) {
			case placement.Text:
				if value == "" {
					c.skip(ev, "empty value")
					continue
				}
				ev.Action = ActionText
				err = c.drawText(canvas, d, p, value, ev)
			case placement.Image:
				if !p.Static() && value == "" {
					c.skip(ev, "empty value")
					continue
				}
				ev.Action = ActionImage
				err = c.drawImage(ctx, canvas, d, p, value, ev)
			case placement.Barcode:
				if value == "" {
					c.skip(ev, "empty value")
					continue
				}
				ev.Action = ActionBarcode
				err = c.drawBarcode(canvas, d, p, value, ev)
			default:
				err = fmt.Errorf("unknown paint %T", d.Paint)
			}
			if err != nil {
				return &pdfstamp.Error{Op: fmt.Sprintf("compose %s[%d]", field, i), Err: err}
			}
			log.Debug("directive drawn", "field", field, "index", i, "page", d.Page, "kind", ev.Action)
			if c.observer != nil {
				c.observer(ev)
			}
		}
	}
	return nil
}

func (c *Compositor) skip(ev Event, reason string) {
	ev.Action, ev.Reason = ActionSkip, reason
	pdfstamp.Logger().Debug("directive skipped", "field", ev.Field, "index", ev.Index, "page", ev.Page, "reason", reason)
	if c.observer != nil {
		c.observer(ev)
	}
}

func (c *Compositor) drawText(canvas Canvas, d placement.Directive, p placement.Text, value string, ev Event) error {
	key := canvas.Fonts().Resolve(fonts.Request{
		Key:    p.FontKey,
		Family: p.Family,
		Weight: p.Weight,
		Style:  fonts.Style(p.Style),
	})
	size := p.Size
	if size <= 0 {
		size = placement.DefaultFontSize
	}
	return canvas.DrawText(d.Page, TextOp{
		X:      ev.X,
		Y:      ev.Y,
		Text:   value,
		Font:   key,
		Size:   size,
		Color:  p.Color,
		Rotate: d.Rotate,
	})
}

func (c *Compositor) drawImage(ctx context.Context, canvas Canvas, d placement.Directive, p placement.Image, value string, ev Event) error {
	src := imagepipe.StaticAsset(p.Src)
	if !p.Static() {
		src = imagepipe.Classify(value)
	}
	res, err := c.images.Resolve(ctx, src)
	if err != nil {
		return err
	}
	img, err := imagepipe.Normalize(res.Data, imagepipe.BoundsFor(c.bounds, d.Width, d.Height, c.pixelsPerPoint), c.quality)
	if err != nil {
		return err
	}
	w, h := c.drawSize(d, img)
	return canvas.DrawImage(d.Page, ImageOp{X: ev.X, Y: ev.Y, Width: w, Height: h, Rotate: d.Rotate, Image: img})
}

func (c *Compositor) drawBarcode(canvas Canvas, d placement.Directive, p placement.Barcode, value string, ev Event) error {
	px := func(pt float64) int { return int(math.Ceil(pt * c.pixelsPerPoint)) }
	img, err := imagepipe.Barcode(string(p.Symbology), value, px(d.Width), px(d.Height))
	if err != nil {
		return err
	}
	w, h := c.drawSize(d, img)
	return canvas.DrawImage(d.Page, ImageOp{X: ev.X, Y: ev.Y, Width: w, Height: h, Rotate: d.Rotate, Image: img})
}

// drawSize is the directive size, each axis falling back to the image's
// natural size.
func (c *Compositor) drawSize(d placement.Directive, img imagepipe.Compressed) (float64, float64) {
	w, h := d.Width, d.Height
	if w <= 0 {
		w = float64(img.Width) / c.pixelsPerPoint
	}
	if h <= 0 {
		h = float64(img.Height) / c.pixelsPerPoint
	}
	return w, h
}
