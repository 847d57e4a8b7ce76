package render

import (
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/ykori/colorvisionflow/internal/colorsim"
)

// FitzRenderer renders PDF pages with MuPDF via go-fitz.
type FitzRenderer struct{}

// NewFitzRenderer returns the production renderer.
func NewFitzRenderer() *FitzRenderer { return &FitzRenderer{} }

// Open decodes data as a PDF. Password-protected documents surface as
// ErrEncrypted. Bytes MuPDF rejects outright are run once through the
// pdfcpu repair pass and retried; if that also fails the document is
// ErrUnreadable.
func (r *FitzRenderer) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err == nil {
		return &fitzDocument{doc: doc}, nil
	}
	if errors.Is(err, fitz.ErrNeedsPassword) {
		return nil, ErrEncrypted
	}

	repaired, rerr := repair(data)
	if rerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	doc, err = fitz.NewFromMemory(repaired)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int { return d.doc.NumPage() }

func (d *fitzDocument) Page(number int) (Page, error) {
	index := number - 1
	if index < 0 || index >= d.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", number, d.doc.NumPage())
	}
	bounds, err := d.doc.Bound(index)
	if err != nil {
		return nil, fmt.Errorf("load page %d: %w", number, err)
	}
	return &fitzPage{doc: d.doc, index: index, bounds: bounds}, nil
}

func (d *fitzDocument) Close() error { return d.doc.Close() }

type fitzPage struct {
	doc    *fitz.Document
	index  int
	bounds image.Rectangle
}

// Size returns the page box in points (go-fitz bounds are at 72 DPI).
func (p *fitzPage) Size() (float64, float64) {
	return float64(p.bounds.Dx()), float64(p.bounds.Dy())
}

func (p *fitzPage) Rasterize(scale float64) (*colorsim.Bitmap, error) {
	img, err := p.doc.ImageDPI(p.index, 72.0*scale)
	if err != nil {
		return nil, fmt.Errorf("rasterize page %d: %w", p.index+1, err)
	}
	return fromRGBA(img), nil
}

// fromRGBA drops the alpha channel MuPDF hands back.
func fromRGBA(img *image.RGBA) *colorsim.Bitmap {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	bmp := colorsim.NewBitmap(w, h)
	di := 0
	for y := 0; y < h; y++ {
		si := y * img.Stride
		for x := 0; x < w; x++ {
			bmp.Pix[di+0] = img.Pix[si+0]
			bmp.Pix[di+1] = img.Pix[si+1]
			bmp.Pix[di+2] = img.Pix[si+2]
			si += 4
			di += 3
		}
	}
	return bmp
}
