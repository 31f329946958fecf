package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/auth"
	"github.com/lvillar/pdfstamp/internal/testpdf"
	"github.com/lvillar/pdfstamp/output"
	"github.com/lvillar/pdfstamp/placement"
	"github.com/lvillar/pdfstamp/render"
	"github.com/lvillar/pdfstamp/store"
)

var (
	secret   = []byte("server-test-secret")
	fixedNow = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
)

const testTable = `
version: server-test
fields:
  - name: firstName
    directives:
      - {page: 0, x: 72, y: 100}
  - name: lastName
    directives:
      - {page: 0, x: 200, y: 100}
  - name: photo
    directives:
      - {page: 0, x: 400, y: 300, kind: image, width: 50, height: 50}
`

type fixture struct {
	srv     *Server
	store   *store.Memory
	blobDir string
}

func newFixture(t *testing.T, r Renderer) *fixture {
	t.Helper()
	if r == nil {
		table, err := placement.Parse([]byte(testTable))
		if err != nil {
			t.Fatal(err)
		}
		eng, err := render.New(testpdf.Template(t, 2), render.WithTable(table), render.WithClock(fixedNow))
		if err != nil {
			t.Fatal(err)
		}
		r = eng
	}
	dir := t.TempDir()
	blobs, err := store.OpenBlobs(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { blobs.Close() })
	mem := store.NewMemory()
	srv, err := New(Config{
		Renderer:      r,
		Store:         mem,
		Blobs:         blobs,
		Verifier:      auth.NewVerifier(secret),
		AllowedOrigin: "https://app.example.com",
		Now:           fixedNow,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{srv: srv, store: mem, blobDir: dir}
}

func token(t *testing.T, id string) string {
	t.Helper()
	tok, err := auth.NewSigner(secret, time.Hour).Sign(auth.Principal{ID: id})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, target, user string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if user != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token(t, user)})
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Meta       *store.Meta     `json:"meta"`
	Data       json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body, err)
	}
	return r
}

func TestFillFormListStream(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/pdf/fill-form", "u1",
		strings.NewReader(`{"firstName":"Jane","lastName":"Doe","age":42,"tags":["a","b"],"note":null}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("fill-form: %d %s", rec.Code, rec.Body)
	}
	resp := decode(t, rec)
	if !resp.Success || resp.Message != "PDF filled successfully" {
		t.Errorf("fill-form envelope = %+v", resp)
	}
	var created store.Record
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.FileName != "Jane_Doe_2024-05-01.pdf" || created.OwnerID != "u1" || created.FilePath != "" {
		t.Errorf("created = %+v", created)
	}
	wantFields := map[string]string{"firstName": "Jane", "lastName": "Doe", "age": "42", "tags": "a,b"}
	if diff := cmp.Diff(wantFields, created.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/pdf/my-pdfs?searchTerm=jane", "u1", nil)
	resp = decode(t, rec)
	var listed []store.Record
	if err := json.Unmarshal(resp.Data, &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID || resp.Meta == nil || resp.Meta.Total != 1 {
		t.Errorf("my-pdfs = %s", rec.Body)
	}
	if strings.Contains(rec.Body.String(), "filePath") {
		t.Errorf("my-pdfs leaks filePath: %s", rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/pdf/"+created.ID+"/stream", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stream: %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != output.ContentDisposition("Jane_Doe_2024-05-01.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) || int64(rec.Body.Len()) != created.SizeBytes {
		t.Errorf("stream body: %d bytes, want %d", rec.Body.Len(), created.SizeBytes)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/pdf/"+created.ID+"/stream", "u2", nil); rec.Code != http.StatusForbidden {
		t.Errorf("foreign stream: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/pdf/nope/stream", "u1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown stream: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/pdf/statistics", "u1", nil)
	var st store.Stats
	if err := json.Unmarshal(decode(t, rec).Data, &st); err != nil {
		t.Fatal(err)
	}
	if st != (store.Stats{Total: 1, ThisMonth: 1, ThisYear: 1}) {
		t.Errorf("statistics = %s", rec.Body)
	}
}

func TestFillFormStoresDataURLHeaderOnly(t *testing.T) {
	f := newFixture(t, nil)

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewNRGBA(image.Rect(0, 0, 64, 64))); err != nil {
		t.Fatal(err)
	}
	photo := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.Bytes())
	body, _ := json.Marshal(map[string]string{"firstName": "Jane", "lastName": "Doe", "photo": photo})

	rec := f.do(t, http.MethodPost, "/api/v1/pdf/fill-form", "u1", bytes.NewReader(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("fill-form: %d %s", rec.Code, rec.Body)
	}
	var created store.Record
	if err := json.Unmarshal(decode(t, rec).Data, &created); err != nil {
		t.Fatal(err)
	}
	stored, err := f.store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := stored.Fields["photo"]; got != "data:image/png;base64," {
		t.Errorf("stored photo = %.60q, want the data URL header only", got)
	}
	if stored.Fields["firstName"] != "Jane" {
		t.Errorf("stored fields = %v", stored.Fields)
	}
}

func TestStoredFields(t *testing.T) {
	got := storedFields(map[string]string{
		"photo": "data:image/jpeg;base64,/9j/4AAQ",
		"odd":   "data:no-comma",
		"url":   "https://example.com/a.png",
	})
	want := map[string]string{
		"photo": "data:image/jpeg;base64,",
		"odd":   "data:no-comma",
		"url":   "https://example.com/a.png",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("storedFields (-want +got):\n%s", diff)
	}
}

func TestFillFormErrors(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"nested object", `{"firstName":{"a":1}}`, http.StatusBadRequest},
		{"empty data url", `{"photo":"data:image/png;base64,"}`, http.StatusBadRequest},
		{"unsupported scheme", `{"photo":"ftp://example.com/a.png"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/pdf/fill-form", "u1", strings.NewReader(tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
			if decode(t, rec).Success {
				t.Error("success = true")
			}
		})
	}

	recs, _, err := f.store.List(context.Background(), "u1", store.Query{})
	if err != nil || len(recs) != 0 {
		t.Errorf("failed renders were persisted: %v %v", recs, err)
	}
}

// failingStore rejects every insert.
type failingStore struct{ *store.Memory }

func (failingStore) Create(context.Context, *store.Record) error { return errors.New("disk full") }

func TestFillFormRemovesBlobWhenRecordFails(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.cfg.Store = failingStore{store.NewMemory()}

	rec := f.do(t, http.MethodPost, "/api/v1/pdf/fill-form", "u1", strings.NewReader(`{"firstName":"Jane"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Errorf("internal error leaked: %s", rec.Body)
	}
	entries, err := os.ReadDir(f.blobDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("orphaned files: %v", entries)
	}
}

type stubRenderer struct{ err error }

func (s stubRenderer) Render(context.Context, map[string]string) (output.Result, error) {
	return output.Result{}, s.err
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{pdfstamp.Errorf("x", "%w", pdfstamp.ErrNotFound), http.StatusNotFound},
		{pdfstamp.Errorf("x", "%w", pdfstamp.ErrInvalidFormat), http.StatusBadRequest},
		{pdfstamp.Errorf("x", "%w", pdfstamp.ErrUnsupportedSource), http.StatusBadRequest},
		{pdfstamp.Errorf("x", "%w", pdfstamp.ErrFetchFailed), http.StatusBadRequest},
		{pdfstamp.Errorf("x", "%w", pdfstamp.ErrTimeout), http.StatusGatewayTimeout},
		{pdfstamp.Errorf("x", "%w", pdfstamp.ErrInvalidTemplate), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			f := newFixture(t, stubRenderer{err: tt.err})
			rec := f.do(t, http.MethodPost, "/api/v1/pdf/fill-form", "u1", strings.NewReader(`{}`))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if resp := decode(t, rec); resp.StatusCode != tt.want {
				t.Errorf("envelope statusCode = %d", resp.StatusCode)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, stubRenderer{})
	for _, target := range []string{"/api/v1/pdf/my-pdfs", "/api/v1/pdf/statistics", "/api/v1/pdf/x/stream"} {
		if rec := f.do(t, http.MethodGet, target, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: %d", target, rec.Code)
		}
	}
	if rec := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/nowhere", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/pdf/my-pdfs?sort=password", "u1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad sort: %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, stubRenderer{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pdf/fill-form", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", rec.Code)
	}
	h := rec.Header()
	if h.Get("Access-Control-Allow-Origin") != "https://app.example.com" ||
		h.Get("Access-Control-Allow-Credentials") != "true" ||
		h.Get("Access-Control-Expose-Headers") != "Content-Disposition" ||
		h.Get("Access-Control-Allow-Headers") != "content-type" {
		t.Errorf("preflight headers = %v", h)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	h := CORS("*", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://anywhere.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	hdr := rec.Header()
	if got := hdr.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := hdr.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q, want none", got)
	}
	if got := hdr.Get("Access-Control-Expose-Headers"); got != "Content-Disposition" {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestRecoverWrapper(t *testing.T) {
	h := RecoverWrapper(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestDecodeFields(t *testing.T) {
	got, err := DecodeFields(strings.NewReader(`{"a":"x","n":1.50,"b":true,"list":[1,"two",null],"z":null}`))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"a": "x", "n": "1.50", "b": "true", "list": "1,two"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeFields (-want +got):\n%s", diff)
	}
	for _, bad := range []string{`[]`, `{"a":[[1]]}`, `{"a":{}}`} {
		if _, err := DecodeFields(strings.NewReader(bad)); !errors.Is(err, errBadRequest) {
			t.Errorf("DecodeFields(%s) = %v", bad, err)
		}
	}
}
