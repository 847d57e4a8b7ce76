package colorsim

import (
	"fmt"
	"image"
)

// Bitmap is a decoded page image: tightly packed RGB bytes, no alpha
// channel. Alpha is dropped at rasterization time to keep per-page
// memory and archive size down.
type Bitmap struct {
	Width  int
	Height int
	// Pix holds 3*Width*Height bytes in R, G, B order, row-major.
	Pix []byte
}

// NewBitmap allocates a zeroed RGB bitmap of the given dimensions.
func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{
		Width:  width,
		Height: height,
		Pix:    make([]byte, 3*width*height),
	}
}

// Clone returns a deep copy sharing no pixel storage with the receiver.
func (b *Bitmap) Clone() *Bitmap {
	out := &Bitmap{
		Width:  b.Width,
		Height: b.Height,
		Pix:    make([]byte, len(b.Pix)),
	}
	copy(out.Pix, b.Pix)
	return out
}

// Image converts the bitmap into an opaque NRGBA image for encoding.
func (b *Bitmap) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	si := 0
	for y := 0; y < b.Height; y++ {
		di := y * img.Stride
		for x := 0; x < b.Width; x++ {
			img.Pix[di+0] = b.Pix[si+0]
			img.Pix[di+1] = b.Pix[si+1]
			img.Pix[di+2] = b.Pix[si+2]
			img.Pix[di+3] = 0xff
			si += 3
			di += 4
		}
	}
	return img
}

func (b *Bitmap) validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("bitmap has non-positive dimensions %dx%d", b.Width, b.Height)
	}
	if len(b.Pix) != 3*b.Width*b.Height {
		return fmt.Errorf("bitmap buffer length %d does not match %dx%d RGB", len(b.Pix), b.Width, b.Height)
	}
	return nil
}
