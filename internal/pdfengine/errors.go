package pdfengine

import (
	"errors"
	"strings"
)

var (
	// ErrCorrupt marks input that pdfcpu could not parse as a PDF.
	ErrCorrupt = errors.New("corrupt or invalid pdf")
	// ErrEncrypted marks password-protected input, which no operation accepts.
	ErrEncrypted = errors.New("password-protected pdf")
	// ErrInternal wraps unexpected transform failures.
	ErrInternal = errors.New("pdf transform failed")
)

// classify maps pdfcpu failures onto the engine's error taxonomy so handlers
// can answer with a category-specific message instead of a generic failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password") || strings.Contains(msg, "encrypt"):
		return errors.Join(ErrEncrypted, err)
	case strings.Contains(msg, "validat") ||
		strings.Contains(msg, "xref") ||
		strings.Contains(msg, "no pdf") ||
		strings.Contains(msg, "header") ||
		strings.Contains(msg, "corrupt") ||
		strings.Contains(msg, "eof"):
		return errors.Join(ErrCorrupt, err)
	default:
		return errors.Join(ErrInternal, err)
	}
}
