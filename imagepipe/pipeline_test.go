package imagepipe

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lvillar/pdfstamp"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, testImage(4, 4), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Source
	}{
		{"data:image/png;base64,AAAA", Source{Kind: KindDataURL, MIME: "image/png", Payload: "AAAA", Raw: "data:image/png;base64,AAAA"}},
		{"DATA:Image/JPEG;base64,QQ==", Source{Kind: KindDataURL, MIME: "image/jpeg", Payload: "QQ==", Raw: "DATA:Image/JPEG;base64,QQ=="}},
		{"https://cdn.example.com/a.png", Source{Kind: KindRemote, URL: "https://cdn.example.com/a.png", Raw: "https://cdn.example.com/a.png"}},
		{"HTTP://example.com/a", Source{Kind: KindRemote, URL: "HTTP://example.com/a", Raw: "HTTP://example.com/a"}},
		{"ftp://example.com/a.png", Source{Kind: KindUnsupported, Raw: "ftp://example.com/a.png"}},
		{"uploads/photo.jpg", Source{Kind: KindLocal, Path: "uploads/photo.jpg", Raw: "uploads/photo.jpg"}},
		{"", Source{Kind: KindUnsupported}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Classify(tt.in)); diff != "" {
			t.Errorf("Classify(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestResolveStatic(t *testing.T) {
	img := pngBytes(t, 8, 8)
	p := New(WithAssets(fstest.MapFS{"cross.png": {Data: img}}))

	got, err := p.Resolve(context.Background(), StaticAsset("cross.png"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(got.Data, img) || got.Declared != PNG {
		t.Errorf("Resolve = %d bytes declared %q", len(got.Data), got.Declared)
	}

	for _, name := range []string{"missing.png", "../escape.png"} {
		if _, err := p.Resolve(context.Background(), StaticAsset(name)); !errors.Is(err, pdfstamp.ErrNotFound) {
			t.Errorf("Resolve(%s) error = %v, want ErrNotFound", name, err)
		}
	}
	if _, err := New().Resolve(context.Background(), StaticAsset("cross.png")); !errors.Is(err, pdfstamp.ErrNotFound) {
		t.Errorf("no asset store: error = %v, want ErrNotFound", err)
	}
}

func TestResolveDataURL(t *testing.T) {
	img := pngBytes(t, 4, 4)
	enc := base64.StdEncoding.EncodeToString(img)
	p := New()

	got, err := p.Resolve(context.Background(), Classify("data:image/png;base64,"+enc))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(got.Data, img) {
		t.Error("decoded bytes differ")
	}

	bad := []string{
		"data:image/gif;base64," + enc,
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png;base64,!!!not base64!!!",
		"data:image/png;base64,",
	}
	for _, v := range bad {
		if _, err := p.Resolve(context.Background(), Classify(v)); !errors.Is(err, pdfstamp.ErrInvalidFormat) {
			t.Errorf("Resolve(%.30q) error = %v, want ErrInvalidFormat", v, err)
		}
	}
}

func TestResolveUnsupportedScheme(t *testing.T) {
	_, err := New().Resolve(context.Background(), Classify("ftp://example.com/a.png"))
	if !errors.Is(err, pdfstamp.ErrUnsupportedSource) {
		t.Fatalf("error = %v, want ErrUnsupportedSource", err)
	}
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	img := jpegBytes(t, 4, 4)
	if err := os.WriteFile(filepath.Join(dir, "photo.jpg"), img, 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := New().Resolve(ctx, Classify("photo.jpg")); !errors.Is(err, pdfstamp.ErrUnsupportedSource) {
		t.Errorf("disabled: error = %v, want ErrUnsupportedSource", err)
	}

	p := New(WithLocalDir(dir))
	for _, name := range []string{"photo.jpg", filepath.Join(dir, "photo.jpg")} {
		got, err := p.Resolve(ctx, Classify(name))
		if err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
		if !bytes.Equal(got.Data, img) || got.Declared != JPEG {
			t.Errorf("Resolve(%s) = %d bytes declared %q", name, len(got.Data), got.Declared)
		}
	}

	for _, name := range []string{"nope.jpg", "../outside.jpg", filepath.Join(filepath.Dir(dir), "outside.jpg")} {
		if _, err := p.Resolve(ctx, Classify(name)); !errors.Is(err, pdfstamp.ErrUnsupportedSource) {
			t.Errorf("Resolve(%s) error = %v, want ErrUnsupportedSource", name, err)
		}
	}
}

func TestResolveRemote(t *testing.T) {
	img := pngBytes(t, 6, 6)
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	})
	mux.HandleFunc("/noext", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(img)
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/empty.png", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/anim.gif", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		w.Write(gifBytes(t))
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(WithHTTPClient(srv.Client()), WithFetchTimeout(100*time.Millisecond))
	ctx := context.Background()

	got, err := p.Resolve(ctx, Classify(srv.URL+"/ok.png"))
	if err != nil {
		t.Fatalf("Resolve(ok): %v", err)
	}
	if !bytes.Equal(got.Data, img) || got.Declared != PNG {
		t.Errorf("Resolve(ok) = %d bytes declared %q", len(got.Data), got.Declared)
	}

	got, err = p.Resolve(ctx, Classify(srv.URL+"/noext"))
	if err != nil {
		t.Fatalf("Resolve(noext): %v", err)
	}
	if got.Declared != FormatUnknown {
		t.Errorf("Resolve(noext) declared %q, want unknown", got.Declared)
	}

	tests := []struct {
		path string
		want error
	}{
		{"/missing.png", pdfstamp.ErrFetchFailed},
		{"/empty.png", pdfstamp.ErrFetchFailed},
		{"/anim.gif", pdfstamp.ErrInvalidFormat},
		{"/slow.png", pdfstamp.ErrTimeout},
	}
	for _, tt := range tests {
		if _, err := p.Resolve(ctx, Classify(srv.URL+tt.path)); !errors.Is(err, tt.want) {
			t.Errorf("Resolve(%s) error = %v, want %v", tt.path, err, tt.want)
		}
	}
}

func TestResolveRemoteCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := New(WithHTTPClient(srv.Client())).Resolve(ctx, Classify(srv.URL+"/a.png"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestResolveRemoteMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	_, err := New(WithHTTPClient(srv.Client()), WithMaxBytes(1024)).Resolve(context.Background(), Classify(srv.URL+"/big"))
	if !errors.Is(err, pdfstamp.ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func TestResolveRemoteCached(t *testing.T) {
	img := jpegBytes(t, 5, 5)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(img)
	}))
	defer srv.Close()

	cache := &memCache{data: map[string][]byte{}}
	p := New(WithHTTPClient(srv.Client()), WithCache(cache, time.Minute))
	for i := 0; i < 3; i++ {
		got, err := p.Resolve(context.Background(), Classify(srv.URL+"/p"))
		if err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
		if !bytes.Equal(got.Data, img) || got.Declared != JPEG {
			t.Fatalf("Resolve #%d = %d bytes declared %q", i, len(got.Data), got.Declared)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}
