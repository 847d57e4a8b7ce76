// Package archive assembles the batch output: one compressed zip blob
// holding every rendition of every processed page, organized under
// variant directories.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/ykori/colorvisionflow/internal/colorsim"
)

// Assembler accumulates named PNG blobs into a single in-memory zip.
// Entries are written in insertion order. It is not safe for
// concurrent use; callers serialize Put.
type Assembler struct {
	buf     bytes.Buffer
	zw      *zip.Writer
	entries int
}

// NewAssembler returns an empty assembler using maximum deflate
// compression.
func NewAssembler() *Assembler {
	a := &Assembler{}
	a.zw = zip.NewWriter(&a.buf)
	a.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return a
}

// Put appends one page rendition at "{variant}/{name}_p{page}.png".
// name must already be sanitized (see SanitizeName); page is 1-based.
// Distinct source documents may sanitize to the same name, in which
// case duplicate paths are preserved as-is — zip permits them, and
// collapsing silently would drop a caller's page.
func (a *Assembler) Put(variant colorsim.Variant, name string, page int, data []byte) error {
	entry := fmt.Sprintf("%s/%s_p%d.png", variant.Dir(), name, page)
	// Header timestamps are left at their zero value so identical
	// inputs produce byte-identical archives.
	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:   entry,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", entry, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", entry, err)
	}
	a.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (a *Assembler) Entries() int { return a.entries }

// Finalize closes the container and returns the complete zip blob.
// The assembler must not be used afterwards.
func (a *Assembler) Finalize() ([]byte, error) {
	if err := a.zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return a.buf.Bytes(), nil
}
