// Package fonts builds the per-document font registry and resolves a
// (family, weight, style) request to a concrete font key.
//
// Resolution never fails: every request ends in a usable key, falling back
// to the global default Helvetica when nothing better matches.
package fonts

import "sort"

// DefaultKey is the global fallback font key.
const DefaultKey = "Helvetica"

// Weights are the nine canonical font weights.
var Weights = [...]int{100, 200, 300, 400, 500, 600, 700, 800, 900}

// Style is the slant of a face.
type Style string

const (
	Normal Style = "normal"
	Italic Style = "italic"
)

// Variant addresses one face within a family.
type Variant struct {
	Weight int
	Style  Style
}

// Family is a named group of faces.
type Family struct {
	DefaultKey string
	Keys       map[Variant]string
}

// Face is how a font key is selected in the document: a family/style pair in
// gofpdf's terms, and whether text must be passed as UTF-8 (embedded
// TrueType) or translated to the core font code page.
type Face struct {
	Family string
	Style  string // "", "B", "I" or "BI"
	UTF8   bool
}

// Request describes the font a text directive asks for.
type Request struct {
	Key    string // explicit key; returned unchanged when set
	Family string
	Weight int // 0 means unspecified
	Style  Style
}

// Registry is the set of faces available in one document plus the family
// table used for resolution. A Registry belongs to a single render.
type Registry struct {
	faces    map[string]Face
	families map[string]Family
}

// Resolve maps req to a font key.
//
// An explicit key is returned as is, without checking that it exists. An
// unknown family yields DefaultKey. Otherwise the weight is snapped to the
// nearest canonical weight and the lookup falls back from (weight, style) to
// (weight, normal), (400, style), the family default and finally DefaultKey.
func (r *Registry) Resolve(req Request) string {
	if req.Key != "" {
		return req.Key
	}
	fam, ok := r.families[req.Family]
	if !ok {
		return DefaultKey
	}
	w := NearestWeight(req.Weight)
	style := req.Style
	if style == "" {
		style = Normal
	}
	for _, v := range []Variant{{w, style}, {w, Normal}, {400, style}} {
		if k, ok := fam.Keys[v]; ok && k != "" {
			return k
		}
	}
	if fam.DefaultKey != "" {
		return fam.DefaultKey
	}
	return DefaultKey
}

// Face returns how key is selected in the document.
func (r *Registry) Face(key string) (Face, bool) {
	f, ok := r.faces[key]
	return f, ok
}

// Families returns the registered family names, sorted.
func (r *Registry) Families() []string {
	names := make([]string, 0, len(r.families))
	for n := range r.families {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NearestWeight snaps requested to the closest canonical weight. Zero means
// unspecified and yields 400. The scan runs from light to heavy and only a
// strictly closer weight replaces the running best, so ties resolve to the
// lighter weight: 650 gives 600.
func NearestWeight(requested int) int {
	if requested == 0 {
		return 400
	}
	best := Weights[0]
	for _, w := range Weights[1:] {
		if abs(w-requested) < abs(best-requested) {
			best = w
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
