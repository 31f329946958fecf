package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/lvillar/pdfstamp"
)

// Blobs keeps rendered files in one directory. Names never leave it.
type Blobs struct {
	root *os.Root
	now  func() time.Time
}

// OpenBlobs opens dir, creating it when missing.
func OpenBlobs(dir string) (*Blobs, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("store: creating blob dir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("store: opening blob dir: %w", err)
	}
	return &Blobs{root: root, now: time.Now}, nil
}

// Save writes data under a fresh name and returns the name.
func (b *Blobs) Save(data []byte) (string, error) {
	name := fmt.Sprintf("filled_%d_%s.pdf", b.now().UnixMilli(), uuid.NewString())
	f, err := b.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("store: creating %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		b.root.Remove(name)
		return "", fmt.Errorf("store: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		b.root.Remove(name)
		return "", fmt.Errorf("store: writing %s: %w", name, err)
	}
	return name, nil
}

// Open returns the file called name. The caller closes it.
func (b *Blobs) Open(name string) (io.ReadSeekCloser, int64, error) {
	f, err := b.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, pdfstamp.Errorf("store open", "%w: file %s", pdfstamp.ErrNotFound, name)
		}
		return nil, 0, fmt.Errorf("store: opening %s: %w", name, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("store: opening %s: %w", name, err)
	}
	return f, st.Size(), nil
}

// Remove deletes the file called name. A missing file is not an error.
func (b *Blobs) Remove(name string) error {
	err := b.root.Remove(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: removing %s: %w", name, err)
	}
	return nil
}

func (b *Blobs) Close() error { return b.root.Close() }
