// Package server exposes the render engine over HTTP: authenticated form
// filling, listing and streaming of the caller's documents, and usage
// statistics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/auth"
	"github.com/lvillar/pdfstamp/output"
	"github.com/lvillar/pdfstamp/render"
	"github.com/lvillar/pdfstamp/store"
)

// DefaultMaxBodyBytes bounds fill-form request bodies. Image fields may carry
// data URLs, so the limit is generous.
const DefaultMaxBodyBytes = 32 << 20

// Renderer produces a filled document from field values. *render.Engine
// implements it.
type Renderer interface {
	Render(ctx context.Context, fields map[string]string) (output.Result, error)
}

// Config holds the server's collaborators.
type Config struct {
	Renderer Renderer
	Store    store.Store
	Blobs    *store.Blobs
	Verifier *auth.Verifier

	// AllowedOrigin is the frontend origin granted CORS access. Empty
	// disables CORS headers; "*" reflects any origin.
	AllowedOrigin string
	MaxBodyBytes  int64
	Now           func() time.Time
}

// Server serves the /api/v1/pdf routes.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New validates c and builds the route table.
func New(c Config) (*Server, error) {
	switch {
	case c.Renderer == nil:
		return nil, errors.New("server: no renderer")
	case c.Store == nil:
		return nil, errors.New("server: no store")
	case c.Blobs == nil:
		return nil, errors.New("server: no blob directory")
	case c.Verifier == nil:
		return nil, errors.New("server: no token verifier")
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	s := &Server{cfg: c}

	mux := http.NewServeMux()
	authed := c.Verifier.Middleware
	mux.Handle("POST /api/v1/pdf/fill-form", authed(http.HandlerFunc(s.fillForm)))
	mux.Handle("GET /api/v1/pdf/my-pdfs", authed(http.HandlerFunc(s.myPDFs)))
	mux.Handle("GET /api/v1/pdf/statistics", authed(http.HandlerFunc(s.statistics)))
	mux.Handle("GET /api/v1/pdf/{id}/stream", authed(http.HandlerFunc(s.stream)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, "server running", nil, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		encodeWriteJSON(w, http.StatusNotFound, envelope{StatusCode: http.StatusNotFound, Message: "API not found"})
	})

	s.handler = RecoverWrapper(LogRequests(CORS(c.AllowedOrigin, mux)))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) fillForm(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	fields, err := DecodeFields(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.cfg.Renderer.Render(r.Context(), fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name, err := s.cfg.Blobs.Save(res.Bytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec := store.Record{
		OwnerID:   p.ID,
		FileName:  res.Filename,
		FilePath:  name,
		SizeBytes: res.Size,
		FirstName: fields[render.FirstNameField],
		LastName:  fields[render.LastNameField],
		Fields:    storedFields(fields),
	}
	if err := s.cfg.Store.Create(r.Context(), &rec); err != nil {
		if rmErr := s.cfg.Blobs.Remove(name); rmErr != nil {
			pdfstamp.Logger().Warn("removing orphaned file", "file", name, "error", rmErr)
		}
		writeError(w, r, err)
		return
	}
	pdfstamp.Logger().Info("document stored", "id", rec.ID, "owner", p.ID, "file", rec.FileName, "bytes", rec.SizeBytes)
	rec.FilePath = ""
	writeOK(w, "PDF filled successfully", rec, nil)
}

// storedFields drops the payload of data URL values; the rendered file
// already carries the image.
func storedFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if strings.HasPrefix(v, "data:") {
			if head, _, ok := strings.Cut(v, ","); ok {
				v = head + ","
			}
		}
		out[k] = v
	}
	return out
}

func (s *Server) myPDFs(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	recs, meta, err := s.cfg.Store.List(r.Context(), p.ID, store.ParseQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	for i := range recs {
		recs[i].FilePath = ""
	}
	writeOK(w, "PDFs retrieved successfully", recs, &meta)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	rec, err := s.cfg.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec.OwnerID != p.ID {
		writeError(w, r, errForbidden)
		return
	}
	f, _, err := s.cfg.Blobs.Open(rec.FilePath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	name := rec.FileName
	if name == "" {
		name = rec.FilePath
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", output.ContentDisposition(name))
	http.ServeContent(w, r, name, rec.UpdatedAt, f)
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	st, err := s.cfg.Store.Stats(r.Context(), p.ID, s.cfg.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "PDF statistics retrieved successfully", st, nil)
}

// DecodeFields reads a JSON object of field values. Strings pass through,
// numbers and booleans keep their JSON text, arrays of scalars are joined
// with "," and nulls are dropped. Nested objects are rejected.
func DecodeFields(r io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, tooBig.Limit)
		}
		return nil, fmt.Errorf("%w: decoding body: %v", errBadRequest, err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		s, err := fieldString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", errBadRequest, k, err)
		}
		fields[k] = s
	}
	return fields, nil
}

func fieldString(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			if e == nil {
				continue
			}
			if _, nested := e.([]any); nested {
				return "", errors.New("nested arrays are not supported")
			}
			s, err := fieldString(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	}
	return "", fmt.Errorf("unsupported value of type %T", v)
}
