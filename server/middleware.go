package server

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/lvillar/pdfstamp"
)

// RecoverWrapper turns a panicking handler into a 500 response.
func RecoverWrapper(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				pdfstamp.Logger().Error("panic recovered", "panic", rec, "stack", string(debug.Stack()))
				encodeWriteJSON(w, http.StatusInternalServerError, envelope{
					StatusCode: http.StatusInternalServerError,
					Message:    "internal server error",
				})
			}
		}()
		inner.ServeHTTP(w, r)
	})
}

// statusWriter records the status and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	n      int64
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(p)
	sw.n += int64(n)
	return n, err
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

// LogRequests logs one line per request at info level.
func LogRequests(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		inner.ServeHTTP(sw, r)
		pdfstamp.Logger().Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.n,
			"duration", time.Since(start),
		)
	})
}

// CORS grants origin credentialed access and exposes Content-Disposition so
// the frontend can read download names. Preflight requests are answered
// directly. The wildcard origin "*" admits any site but never with
// credentials, so the session cookie is not sent cross-site.
func CORS(origin string, inner http.Handler) http.Handler {
	if origin == "" {
		return inner
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Origin")
		if got == "" || (origin != "*" && !strings.EqualFold(got, origin)) {
			inner.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		if origin == "*" {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Origin", got)
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", "Content-Disposition")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		inner.ServeHTTP(w, r)
	})
}
