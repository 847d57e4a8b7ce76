// Package render wraps the external PDF engine behind a small
// rasterization interface. The pipeline only ever asks it for page
// counts, intrinsic page sizes, and decoded RGB bitmaps at a given
// scale; everything about parsing and drawing PDFs lives behind these
// interfaces.
package render

import (
	"errors"

	"github.com/ykori/colorvisionflow/internal/colorsim"
)

var (
	// ErrEncrypted marks a password-protected document. Such documents
	// are skipped at admission and never rasterized.
	ErrEncrypted = errors.New("render: document is password protected")

	// ErrUnreadable marks bytes that could not be decoded as a PDF,
	// even after a repair attempt.
	ErrUnreadable = errors.New("render: document is unreadable")
)

// Renderer opens uploaded bytes as a document handle.
type Renderer interface {
	Open(data []byte) (Document, error)
}

// Document is an opened PDF. It is read-only for its lifetime and must
// be closed exactly once, on every exit path.
type Document interface {
	PageCount() int
	// Page loads the page with the given 1-based number.
	Page(number int) (Page, error)
	Close() error
}

// Page is one loaded page, valid only until its document is closed.
type Page interface {
	// Size returns the intrinsic page size in points, used for
	// pre-flight pixel estimation before any allocation happens.
	Size() (width, height float64)
	// Rasterize decodes the page into an RGB bitmap at the given
	// scale (1.0 = 72 DPI). Alpha is dropped.
	Rasterize(scale float64) (*colorsim.Bitmap, error)
}
