package imagepipe

import (
	"context"
	"time"
)

// Cache stores fetched remote image bytes keyed by URL. Implementations
// must be safe for concurrent use. A cache error is logged and ignored; it
// never fails a render.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached values carry a one-byte format tag ahead of the image bytes.
const (
	tagUnknown = '-'
	tagPNG     = 'p'
	tagJPEG    = 'j'
)

func encodeEntry(r Resolved) []byte {
	tag := byte(tagUnknown)
	switch r.Declared {
	case PNG:
		tag = tagPNG
	case JPEG:
		tag = tagJPEG
	}
	out := make([]byte, 0, len(r.Data)+1)
	out = append(out, tag)
	return append(out, r.Data...)
}

func decodeEntry(b []byte) (Resolved, bool) {
	if len(b) < 2 {
		return Resolved{}, false
	}
	r := Resolved{Data: b[1:]}
	switch b[0] {
	case tagPNG:
		r.Declared = PNG
	case tagJPEG:
		r.Declared = JPEG
	case tagUnknown:
	default:
		return Resolved{}, false
	}
	return r, true
}
