package placement

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/lvillar/pdfstamp"
)

// MaxFileSize limits placement files to keep a bad path from exhausting memory.
const MaxFileSize = 1 << 20

// Parse decodes and compiles a YAML or JSON placement table. Unknown keys
// are rejected.
func Parse(data []byte) (*Table, error) {
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("placement: table exceeds %d bytes: %w", MaxFileSize, pdfstamp.ErrValidation)
	}
	var f File
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("placement: parsing table: %w: %w", pdfstamp.ErrValidation, err)
	}
	t, err := Compile(f)
	if err != nil {
		return nil, fmt.Errorf("placement: %w", err)
	}
	return t, nil
}

// Load reads and compiles the placement table at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("placement: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal encodes t back to YAML.
func Marshal(t *Table) ([]byte, error) {
	out, err := yaml.Marshal(t.Spec())
	if err != nil {
		return nil, fmt.Errorf("placement: encoding table: %w", err)
	}
	return out, nil
}
