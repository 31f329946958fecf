package fonts

// Embedder is the part of a document that accepts TrueType fonts.
// *gofpdf.Fpdf satisfies it.
type Embedder interface {
	AddUTF8FontFromBytes(familyStr, styleStr string, utf8Bytes []byte)
}

type standardFace struct {
	key     string
	variant Variant
	face    Face
}

// The standard set: two core families in four faces each. Core fonts are
// built into every PDF reader and need no embedding.
var standard = map[string][]standardFace{
	"Helvetica": {
		{"Helvetica", Variant{400, Normal}, Face{Family: "Helvetica"}},
		{"Helvetica-Bold", Variant{700, Normal}, Face{Family: "Helvetica", Style: "B"}},
		{"Helvetica-Oblique", Variant{400, Italic}, Face{Family: "Helvetica", Style: "I"}},
		{"Helvetica-BoldOblique", Variant{700, Italic}, Face{Family: "Helvetica", Style: "BI"}},
	},
	"TimesRoman": {
		{"TimesRoman", Variant{400, Normal}, Face{Family: "Times"}},
		{"TimesRoman-Bold", Variant{700, Normal}, Face{Family: "Times", Style: "B"}},
		{"TimesRoman-Italic", Variant{400, Italic}, Face{Family: "Times", Style: "I"}},
		{"TimesRoman-BoldItalic", Variant{700, Italic}, Face{Family: "Times", Style: "BI"}},
	},
}

// Build registers the standard faces and every font of set into doc and
// returns the registry for that document. set may be nil.
func Build(doc Embedder, set *Set) *Registry {
	r := &Registry{
		faces:    make(map[string]Face),
		families: make(map[string]Family),
	}
	for name, faces := range standard {
		fam := Family{DefaultKey: faces[0].key, Keys: make(map[Variant]string)}
		for _, sf := range faces {
			r.faces[sf.key] = sf.face
			fam.Keys[sf.variant] = sf.key
		}
		r.families[name] = fam
	}

	for _, c := range set.Fonts() {
		doc.AddUTF8FontFromBytes(c.Key, "", c.Data)
		r.faces[c.Key] = Face{Family: c.Key, UTF8: true}

		fam, ok := r.families[c.Family]
		if !ok {
			fam = Family{DefaultKey: c.Key, Keys: make(map[Variant]string)}
		}
		v := Variant{NearestWeight(c.Weight), c.Style}
		if _, taken := fam.Keys[v]; !taken {
			fam.Keys[v] = c.Key
		}
		if v == (Variant{400, Normal}) {
			fam.DefaultKey = fam.Keys[v]
		}
		r.families[c.Family] = fam
	}
	return r
}
