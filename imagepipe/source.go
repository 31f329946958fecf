// Package imagepipe resolves image bytes from the supported source kinds,
// validates that they are PNG or JPEG, and re-encodes them within bounds.
package imagepipe

import (
	"mime"
	"path"
	"strings"
)

// Kind tags the variant held by a Source.
type Kind int

const (
	KindUnsupported Kind = iota
	KindStatic           // read-only asset store
	KindDataURL          // data:image/...;base64,...
	KindRemote           // http or https URL
	KindLocal            // file inside the configured local root
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDataURL:
		return "data-url"
	case KindRemote:
		return "remote"
	case KindLocal:
		return "local"
	}
	return "unsupported"
}

// Source names where image bytes come from. Only the fields of its Kind are
// set.
type Source struct {
	Kind    Kind
	Path    string // KindStatic, KindLocal
	URL     string // KindRemote
	MIME    string // KindDataURL, declared media type
	Payload string // KindDataURL, text after the first comma
	Raw     string // the original value
}

// StaticAsset returns a source for a file in the asset store.
func StaticAsset(p string) Source {
	return Source{Kind: KindStatic, Path: p, Raw: p}
}

// Classify maps a field value to a source: "data:" prefixes are data URLs,
// http and https URLs are remote, any other scheme is unsupported, and
// everything else is taken as a local path.
func Classify(value string) Source {
	v := strings.TrimSpace(value)
	lower := strings.ToLower(v)
	switch {
	case v == "":
		return Source{Kind: KindUnsupported, Raw: value}
	case strings.HasPrefix(lower, "data:"):
		header, payload, _ := strings.Cut(v[len("data:"):], ",")
		mt, _, _ := strings.Cut(header, ";")
		return Source{
			Kind:    KindDataURL,
			MIME:    strings.ToLower(strings.TrimSpace(mt)),
			Payload: payload,
			Raw:     value,
		}
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return Source{Kind: KindRemote, URL: v, Raw: value}
	case strings.Contains(v, "://"):
		return Source{Kind: KindUnsupported, Raw: value}
	}
	return Source{Kind: KindLocal, Path: v, Raw: value}
}

// Format is an image encoding.
type Format string

const (
	FormatUnknown Format = ""
	PNG           Format = "png"
	JPEG          Format = "jpeg"
)

// formatFromMIME maps a media type to a format. Other image types are
// returned as their subtype so callers can name them in errors.
func formatFromMIME(mt string) Format {
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	switch strings.ToLower(mt) {
	case "image/png":
		return PNG
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return JPEG
	}
	if sub, ok := strings.CutPrefix(strings.ToLower(mt), "image/"); ok && sub != "" {
		return Format(sub)
	}
	return FormatUnknown
}

func formatFromExt(p string) Format {
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return PNG
	case ".jpg", ".jpeg":
		return JPEG
	}
	return FormatUnknown
}

func (f Format) supported() bool {
	return f == PNG || f == JPEG
}
