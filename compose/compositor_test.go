package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/fonts"
	"github.com/lvillar/pdfstamp/imagepipe"
	"github.com/lvillar/pdfstamp/placement"
)

type nopEmbedder struct{}

func (nopEmbedder) AddUTF8FontFromBytes(string, string, []byte) {}

type drawn struct {
	Page  int
	Text  *TextOp
	Image *ImageOp
}

// recordingCanvas records draws instead of producing a PDF.
type recordingCanvas struct {
	sizes []PageSize
	reg   *fonts.Registry
	draws []drawn
}

func newRecordingCanvas(pages int) *recordingCanvas {
	c := &recordingCanvas{reg: fonts.Build(nopEmbedder{}, nil)}
	for i := 0; i < pages; i++ {
		c.sizes = append(c.sizes, PageSize{612, 792})
	}
	return c
}

func (c *recordingCanvas) PageCount() int { return len(c.sizes) }
func (c *recordingCanvas) PageSize(p int) (float64, float64) {
	return c.sizes[p].Width, c.sizes[p].Height
}
func (c *recordingCanvas) Fonts() *fonts.Registry { return c.reg }
func (c *recordingCanvas) DrawText(p int, op TextOp) error {
	c.draws = append(c.draws, drawn{Page: p, Text: &op})
	return nil
}
func (c *recordingCanvas) DrawImage(p int, op ImageOp) error {
	c.draws = append(c.draws, drawn{Page: p, Image: &op})
	return nil
}

// fakeResolver serves image bytes by source and records what was asked.
type fakeResolver struct {
	data  map[string][]byte
	err   error
	asked []imagepipe.Source
}

func (r *fakeResolver) Resolve(_ context.Context, src imagepipe.Source) (imagepipe.Resolved, error) {
	r.asked = append(r.asked, src)
	if r.err != nil {
		return imagepipe.Resolved{}, r.err
	}
	key := src.Raw
	b, ok := r.data[key]
	if !ok {
		return imagepipe.Resolved{}, pdfstamp.Errorf("fake", "%w: %s", pdfstamp.ErrNotFound, key)
	}
	return imagepipe.Resolved{Data: b, Declared: imagepipe.PNG}, nil
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func at(page int, x, y float64) placement.DirectiveSpec {
	return placement.DirectiveSpec{Page: &page, X: &x, Y: &y}
}

func table(t *testing.T, fields ...placement.FieldSpec) *placement.Table {
	t.Helper()
	tbl, err := placement.Compile(placement.File{Fields: fields})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return tbl
}

func TestComposeTextCoordinates(t *testing.T) {
	tbl := table(t, placement.FieldSpec{Name: "birthYear", Directives: []placement.DirectiveSpec{at(0, 468, 452)}})
	canvas := newRecordingCanvas(1)

	if err := New(tbl, &fakeResolver{}).Compose(context.Background(), canvas, map[string]string{"birthYear": "1990"}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	want := []drawn{{Page: 0, Text: &TextOp{X: 468, Y: 340, Text: "1990", Font: fonts.DefaultKey, Size: 10}}}
	if diff := cmp.Diff(want, canvas.draws); diff != "" {
		t.Errorf("draws mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeTextStyle(t *testing.T) {
	d := at(0, 10, 20)
	d.FontFamily = "TimesRoman"
	d.FontWeight = 700
	d.FontStyle = "italic"
	d.FontSize = 14
	d.Color = "#f00"
	d.Rotate = 90
	tbl := table(t, placement.FieldSpec{Name: "name", Directives: []placement.DirectiveSpec{d}})
	canvas := newRecordingCanvas(1)

	if err := New(tbl, &fakeResolver{}).Compose(context.Background(), canvas, map[string]string{"name": "Zoë"}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	want := TextOp{X: 10, Y: 772, Text: "Zoë", Font: "TimesRoman-BoldItalic", Size: 14, Color: pdfstamp.Color{R: 1}, Rotate: 90}
	if len(canvas.draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(canvas.draws))
	}
	if diff := cmp.Diff(want, *canvas.draws[0].Text); diff != "" {
		t.Errorf("text op mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeSkips(t *testing.T) {
	tbl := table(t,
		placement.FieldSpec{Name: "firstName", Directives: []placement.DirectiveSpec{at(0, 1, 1), at(6, 2, 2), at(1, 3, 3)}},
		placement.FieldSpec{Name: "lastName", Directives: []placement.DirectiveSpec{at(0, 4, 4)}},
	)
	canvas := newRecordingCanvas(2)
	var events []Event
	c := New(tbl, &fakeResolver{}, WithObserver(func(e Event) { events = append(events, e) }))

	if err := c.Compose(context.Background(), canvas, map[string]string{"firstName": "Jane", "lastName": ""}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(canvas.draws) != 2 || canvas.draws[0].Page != 0 || canvas.draws[1].Page != 1 {
		t.Errorf("draws = %+v, want pages 0 and 1", canvas.draws)
	}

	want := []Event{
		{Field: "firstName", Index: 0, Page: 0, Action: ActionText, X: 1, Y: 791},
		{Field: "firstName", Index: 1, Page: 6, Action: ActionSkip, Reason: "page out of range"},
		{Field: "firstName", Index: 2, Page: 1, Action: ActionText, X: 3, Y: 789},
		{Field: "lastName", Index: 0, Page: 0, Action: ActionSkip, X: 4, Y: 788, Reason: "empty value"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func imageSpec(d placement.DirectiveSpec, w, h float64, src string) placement.DirectiveSpec {
	d.Kind = "image"
	d.Width, d.Height, d.Src = w, h, src
	return d
}

func TestComposeImages(t *testing.T) {
	tbl := table(t,
		placement.FieldSpec{Name: "photo", Directives: []placement.DirectiveSpec{
			imageSpec(at(0, 100, 300), 50, 0, ""),
			imageSpec(at(5, 100, 300), 50, 50, ""),
		}},
		placement.FieldSpec{Name: "crossOverlay", Directives: []placement.DirectiveSpec{
			imageSpec(at(1, 10, 700), 0, 0, "cross.png"),
		}},
	)
	res := &fakeResolver{data: map[string][]byte{
		"uploads/me.png": pngOf(t, 20, 10),
		"cross.png":      pngOf(t, 8, 8),
	}}
	canvas := newRecordingCanvas(2)

	if err := New(tbl, res).Compose(context.Background(), canvas, map[string]string{"photo": "uploads/me.png"}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(canvas.draws) != 2 {
		t.Fatalf("got %d draws, want 2", len(canvas.draws))
	}
	photo := canvas.draws[0].Image
	if photo.X != 100 || photo.Y != 492 || photo.Width != 50 || photo.Height != 10 {
		t.Errorf("photo placed at (%g,%g) size %gx%g, want (100,492) 50x10", photo.X, photo.Y, photo.Width, photo.Height)
	}
	cross := canvas.draws[1].Image
	if canvas.draws[1].Page != 1 || cross.Width != 8 || cross.Height != 8 {
		t.Errorf("cross = page %d %gx%g, want page 1 8x8", canvas.draws[1].Page, cross.Width, cross.Height)
	}

	wantAsked := []imagepipe.Source{imagepipe.Classify("uploads/me.png"), imagepipe.StaticAsset("cross.png")}
	if diff := cmp.Diff(wantAsked, res.asked); diff != "" {
		t.Errorf("resolved sources mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeStaticImageWithoutValue(t *testing.T) {
	tbl := table(t, placement.FieldSpec{Name: "crossOverlay", Directives: []placement.DirectiveSpec{
		imageSpec(at(0, 0, 100), 0, 0, "cross.png"),
	}})
	res := &fakeResolver{data: map[string][]byte{"cross.png": pngOf(t, 4, 4)}}
	canvas := newRecordingCanvas(1)
	if err := New(tbl, res).Compose(context.Background(), canvas, nil); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(canvas.draws) != 1 {
		t.Errorf("got %d draws, want the static image", len(canvas.draws))
	}
}

func TestComposeImageErrorAborts(t *testing.T) {
	tbl := table(t,
		placement.FieldSpec{Name: "photo", Directives: []placement.DirectiveSpec{imageSpec(at(0, 0, 0), 10, 10, "")}},
		placement.FieldSpec{Name: "firstName", Directives: []placement.DirectiveSpec{at(0, 1, 1)}},
	)
	res := &fakeResolver{err: pdfstamp.Errorf("fetch image", "%w: 404", pdfstamp.ErrFetchFailed)}
	canvas := newRecordingCanvas(1)

	err := New(tbl, res).Compose(context.Background(), canvas, map[string]string{"photo": "https://x/a.png", "firstName": "Jane"})
	if !errors.Is(err, pdfstamp.ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if len(canvas.draws) != 0 {
		t.Errorf("drew %d items after the failure", len(canvas.draws))
	}
}

func TestComposeInvalidImage(t *testing.T) {
	tbl := table(t, placement.FieldSpec{Name: "photo", Directives: []placement.DirectiveSpec{imageSpec(at(0, 0, 0), 10, 10, "")}})
	res := &fakeResolver{data: map[string][]byte{"x.png": []byte("nope")}}
	err := New(tbl, res).Compose(context.Background(), newRecordingCanvas(1), map[string]string{"photo": "x.png"})
	if !errors.Is(err, pdfstamp.ErrInvalidFormat) {
		t.Fatalf("error = %v, want ErrInvalidFormat", err)
	}
}

func TestComposeCanceled(t *testing.T) {
	tbl := table(t, placement.FieldSpec{Name: "firstName", Directives: []placement.DirectiveSpec{at(0, 1, 1)}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canvas := newRecordingCanvas(1)
	if err := New(tbl, &fakeResolver{}).Compose(ctx, canvas, map[string]string{"firstName": "Jane"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(canvas.draws) != 0 {
		t.Error("drew after cancellation")
	}
}

func TestComposeBarcode(t *testing.T) {
	d := at(0, 50, 150)
	d.Kind, d.Width, d.Height = "barcode", 80, 80
	tbl := table(t, placement.FieldSpec{Name: "ticket", Directives: []placement.DirectiveSpec{d}})
	canvas := newRecordingCanvas(1)

	if err := New(tbl, &fakeResolver{}).Compose(context.Background(), canvas, map[string]string{"ticket": "A-1"}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(canvas.draws) != 1 || canvas.draws[0].Image == nil {
		t.Fatalf("draws = %+v, want one image", canvas.draws)
	}
	op := canvas.draws[0].Image
	want := ImageOp{X: 50, Y: 642, Width: 80, Height: 80}
	if diff := cmp.Diff(want, *op, cmpopts.IgnoreFields(ImageOp{}, "Image")); diff != "" {
		t.Errorf("barcode op mismatch (-want +got):\n%s", diff)
	}
	if op.Image.Format != imagepipe.PNG {
		t.Errorf("barcode format = %q, want png", op.Image.Format)
	}
}

func TestComposeDeterministic(t *testing.T) {
	badge := at(1, 400, 600)
	badge.Kind, badge.Width, badge.Height = "barcode", 60, 60
	tbl := table(t,
		placement.FieldSpec{Name: "firstName", Directives: []placement.DirectiveSpec{at(0, 72, 100), at(4, 10, 10), at(1, 51, 329)}},
		placement.FieldSpec{Name: "lastName", Directives: []placement.DirectiveSpec{at(0, 200, 100)}},
		placement.FieldSpec{Name: "photo", Directives: []placement.DirectiveSpec{imageSpec(at(0, 400, 300), 50, 50, "")}},
		placement.FieldSpec{Name: "badge", Directives: []placement.DirectiveSpec{badge}},
	)
	fields := map[string]string{"firstName": "Jane", "lastName": "Doe", "photo": "me.png", "badge": "ID-42"}
	images := map[string][]byte{"me.png": pngOf(t, 20, 20)}

	run := func() ([]Event, *recordingCanvas) {
		var events []Event
		canvas := newRecordingCanvas(2)
		c := New(tbl, &fakeResolver{data: images}, WithObserver(func(e Event) { events = append(events, e) }))
		if err := c.Compose(context.Background(), canvas, fields); err != nil {
			t.Fatalf("Compose: %v", err)
		}
		return events, canvas
	}
	firstEvents, first := run()
	secondEvents, second := run()

	if len(firstEvents) != 6 {
		t.Errorf("got %d events, want 6", len(firstEvents))
	}
	if diff := cmp.Diff(firstEvents, secondEvents); diff != "" {
		t.Errorf("events differ between renders (-first +second):\n%s", diff)
	}
	if first.PageCount() != second.PageCount() {
		t.Errorf("page counts %d and %d", first.PageCount(), second.PageCount())
	}
	if diff := cmp.Diff(first.draws, second.draws); diff != "" {
		t.Errorf("draws differ between renders (-first +second):\n%s", diff)
	}
}
