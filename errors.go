package pdfstamp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the render failure taxonomy. Components wrap them with
// %w so callers can classify any failure with errors.Is.
var (
	ErrNotFound          = errors.New("pdfstamp: not found")
	ErrInvalidFormat     = errors.New("pdfstamp: invalid image format")
	ErrUnsupportedSource = errors.New("pdfstamp: unsupported image source")
	ErrFetchFailed       = errors.New("pdfstamp: remote fetch failed")
	ErrTimeout           = errors.New("pdfstamp: remote fetch timed out")
	ErrValidation        = errors.New("pdfstamp: invalid placement configuration")
	ErrInvalidTemplate   = errors.New("pdfstamp: invalid template document")
)

// Error represents a failure during a specific render operation.
// It wraps an underlying error and includes the operation name for context.
type Error struct {
	Op  string // operation name, e.g. "imagepipe.Resolve"
	Err error  // underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unknown error", e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf returns an *Error for op whose message is formatted from format and
// args. Use %w in format to attach one of the sentinel errors.
func Errorf(op, format string, args ...any) error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...)}
}
