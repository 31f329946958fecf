package imagepipe

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lvillar/pdfstamp"
)

const (
	// DefaultFetchTimeout bounds a single remote image fetch.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultMaxBytes caps the size of any resolved image.
	DefaultMaxBytes = 20 << 20
	// DefaultCacheTTL is how long fetched remote images stay cached.
	DefaultCacheTTL = 15 * time.Minute
)

// Resolved is raw image bytes plus the format declared by the source, if
// any. The bytes themselves decide the format during normalization.
type Resolved struct {
	Data     []byte
	Declared Format
}

// Pipeline resolves sources to bytes. It is safe for concurrent use.
type Pipeline struct {
	assets   fs.FS
	localDir string
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	cache    Cache
	cacheTTL time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAssets sets the read-only store static image assets are read from.
func WithAssets(fsys fs.FS) Option {
	return func(p *Pipeline) { p.assets = fsys }
}

// WithLocalDir enables local path sources confined to dir. Without it local
// paths are unsupported.
func WithLocalDir(dir string) Option {
	return func(p *Pipeline) { p.localDir = dir }
}

// WithHTTPClient sets the client used for remote sources.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithFetchTimeout bounds each remote fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxBytes caps the resolved image size.
func WithMaxBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithCache enables caching of remote fetches.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.cache = c
		if ttl > 0 {
			p.cacheTTL = ttl
		}
	}
}

// New returns a pipeline with the given options applied.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		client:   http.DefaultClient,
		timeout:  DefaultFetchTimeout,
		maxBytes: DefaultMaxBytes,
		cacheTTL: DefaultCacheTTL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Resolve returns the bytes named by src.
//
// Errors wrap pdfstamp.ErrNotFound for missing static assets,
// ErrInvalidFormat for malformed data URLs or a declared type other than
// PNG or JPEG, ErrUnsupportedSource for unknown schemes and disabled local
// paths or missing local files, ErrTimeout and ErrFetchFailed for remote
// failures.
func (p *Pipeline) Resolve(ctx context.Context, src Source) (Resolved, error) {
	switch src.Kind {
	case KindStatic:
		return p.static(src)
	case KindDataURL:
		return p.dataURL(src)
	case KindRemote:
		return p.remote(ctx, src)
	case KindLocal:
		return p.local(src)
	}
	return Resolved{}, pdfstamp.Errorf("resolve image", "%w: %q", pdfstamp.ErrUnsupportedSource, truncate(src.Raw))
}

func (p *Pipeline) static(src Source) (Resolved, error) {
	const op = "resolve static image"
	name := path.Clean(strings.TrimPrefix(filepath.ToSlash(src.Path), "/"))
	if p.assets == nil || !fs.ValidPath(name) {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %s", pdfstamp.ErrNotFound, src.Path)
	}
	data, err := fs.ReadFile(p.assets, name)
	if errors.Is(err, fs.ErrNotExist) {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %s", pdfstamp.ErrNotFound, src.Path)
	}
	if err != nil {
		return Resolved{}, &pdfstamp.Error{Op: op, Err: err}
	}
	return Resolved{Data: data, Declared: formatFromExt(name)}, nil
}

func (p *Pipeline) dataURL(src Source) (Resolved, error) {
	const op = "decode data url"
	declared := formatFromMIME(src.MIME)
	if !declared.supported() {
		return Resolved{}, pdfstamp.Errorf(op, "%w: declared type %q is not png or jpeg", pdfstamp.ErrInvalidFormat, src.MIME)
	}
	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, src.Payload)
	if payload == "" {
		return Resolved{}, pdfstamp.Errorf(op, "%w: empty payload", pdfstamp.ErrInvalidFormat)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > p.maxBytes+3 {
		return Resolved{}, pdfstamp.Errorf(op, "%w: payload exceeds %d bytes", pdfstamp.ErrInvalidFormat, p.maxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return Resolved{}, pdfstamp.Errorf(op, "%w: invalid base64: %v", pdfstamp.ErrInvalidFormat, err)
	}
	return Resolved{Data: data, Declared: declared}, nil
}

func (p *Pipeline) local(src Source) (Resolved, error) {
	const op = "resolve local image"
	if p.localDir == "" {
		return Resolved{}, pdfstamp.Errorf(op, "%w: local paths are disabled", pdfstamp.ErrUnsupportedSource)
	}
	name := src.Path
	if filepath.IsAbs(name) {
		rel, err := filepath.Rel(p.localDir, name)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return Resolved{}, pdfstamp.Errorf(op, "%w: %s is outside the local root", pdfstamp.ErrUnsupportedSource, name)
		}
		name = rel
	}

	root, err := os.OpenRoot(p.localDir)
	if err != nil {
		return Resolved{}, &pdfstamp.Error{Op: op, Err: err}
	}
	defer root.Close()

	// A missing file and a path escaping the root are both unsupported
	// values, not missing assets.
	f, err := root.Open(name)
	if err != nil {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %v", pdfstamp.ErrUnsupportedSource, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, p.maxBytes+1))
	if err != nil {
		return Resolved{}, &pdfstamp.Error{Op: op, Err: err}
	}
	if int64(len(data)) > p.maxBytes {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %s exceeds %d bytes", pdfstamp.ErrInvalidFormat, src.Path, p.maxBytes)
	}
	return Resolved{Data: data, Declared: formatFromExt(name)}, nil
}

func (p *Pipeline) remote(ctx context.Context, src Source) (Resolved, error) {
	const op = "fetch image"
	log := pdfstamp.Logger()

	if p.cache != nil {
		b, ok, err := p.cache.Get(ctx, src.URL)
		if err != nil {
			log.Warn("image cache get failed", "url", redact(src.URL), "error", err)
		} else if ok {
			if r, valid := decodeEntry(b); valid {
				log.Debug("image cache hit", "url", redact(src.URL))
				return r, nil
			}
		}
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %v", pdfstamp.ErrUnsupportedSource, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %v", pdfstamp.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "image/png, image/jpeg;q=0.9")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return Resolved{}, p.fetchError(ctx, op, src.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %s returned %d", pdfstamp.ErrFetchFailed, u.Redacted(), resp.StatusCode)
	}

	declared := formatFromMIME(resp.Header.Get("Content-Type"))
	if declared == FormatUnknown {
		declared = formatFromExt(u.Path)
	}
	if declared != FormatUnknown && !declared.supported() {
		return Resolved{}, pdfstamp.Errorf(op, "%w: %s served %s", pdfstamp.ErrInvalidFormat, u.Redacted(), declared)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return Resolved{}, p.fetchError(ctx, op, src.URL, err)
	}
	switch {
	case len(data) == 0:
		return Resolved{}, pdfstamp.Errorf(op, "%w: %s returned an empty body", pdfstamp.ErrFetchFailed, u.Redacted())
	case int64(len(data)) > p.maxBytes:
		return Resolved{}, pdfstamp.Errorf(op, "%w: %s exceeds %d bytes", pdfstamp.ErrFetchFailed, u.Redacted(), p.maxBytes)
	}
	log.Debug("image fetched", "url", u.Redacted(), "bytes", len(data), "elapsed", time.Since(start))

	r := Resolved{Data: data, Declared: declared}
	if p.cache != nil {
		if err := p.cache.Set(ctx, src.URL, encodeEntry(r), p.cacheTTL); err != nil {
			log.Warn("image cache set failed", "url", u.Redacted(), "error", err)
		}
	}
	return r, nil
}

// fetchError classifies a transport error. Cancellation of the caller's
// context is passed through untouched so the render stops.
func (p *Pipeline) fetchError(parent context.Context, op, rawURL string, err error) error {
	if perr := parent.Err(); perr != nil && !errors.Is(perr, context.DeadlineExceeded) {
		return perr
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return pdfstamp.Errorf(op, "%w: %s after %s", pdfstamp.ErrTimeout, redact(rawURL), p.timeout)
	}
	return pdfstamp.Errorf(op, "%w: %v", pdfstamp.ErrFetchFailed, err)
}

func redact(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Redacted()
	}
	return truncate(raw)
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
