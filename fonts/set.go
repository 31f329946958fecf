package fonts

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"seehuhn.de/go/sfnt"
)

// Custom is a TrueType font loaded from the asset font directory.
type Custom struct {
	Key    string // file base name without extension
	Family string
	Weight int
	Style  Style
	Data   []byte
}

// Set is the process-wide collection of custom fonts. It is read once at
// startup and shared, read-only, by every render.
type Set struct {
	fonts []Custom
}

// Fonts returns the custom fonts sorted by key.
func (s *Set) Fonts() []Custom {
	if s == nil {
		return nil
	}
	out := make([]Custom, len(s.fonts))
	copy(out, s.fonts)
	return out
}

// LoadDir reads every .ttf file in dir. Family, weight and slant come from
// the font's own name and OS/2 tables. A missing directory yields an empty
// set; an unreadable or corrupt font file is an error.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return &Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fonts: reading %s: %w", dir, err)
	}

	s := &Set{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ttf") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("fonts: reading %s: %w", path, err)
		}
		key := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		c, err := Describe(key, data)
		if err != nil {
			return nil, fmt.Errorf("fonts: %s: %w", path, err)
		}
		s.fonts = append(s.fonts, c)
	}
	return s, nil
}

// Describe reads the family, weight and slant of a TrueType font.
func Describe(key string, data []byte) (Custom, error) {
	info, err := sfnt.Read(bytes.NewReader(data))
	if err != nil {
		return Custom{}, err
	}
	c := Custom{
		Key:    key,
		Family: info.FamilyName,
		Weight: int(info.Weight),
		Style:  Normal,
		Data:   data,
	}
	if c.Family == "" {
		c.Family = key
	}
	if c.Weight == 0 {
		c.Weight = 400
	}
	if info.IsItalic {
		c.Style = Italic
	}
	return c, nil
}
