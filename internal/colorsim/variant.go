package colorsim

import "fmt"

// Variant identifies one of the five output renditions of a page.
// The set is closed: every switch over it matches all five values, and
// an out-of-range value is a programming error, not a runtime input.
type Variant int

const (
	// Common is the unmodified rendition (normal color vision).
	Common Variant = iota
	// Protanopia simulates loss of the L (long wavelength) cones.
	Protanopia
	// Deuteranopia simulates loss of the M (medium wavelength) cones.
	Deuteranopia
	// Tritanopia simulates loss of the S (short wavelength) cones.
	Tritanopia
	// Achromat simulates total cone loss (luminance-only vision).
	Achromat
)

// Variants lists all renditions in the fixed processing and archive
// order. Batch progress accounting depends on this order being stable.
var Variants = [...]Variant{Common, Protanopia, Deuteranopia, Tritanopia, Achromat}

// Dir returns the archive directory name for the variant.
func (v Variant) Dir() string {
	switch v {
	case Common:
		return "common"
	case Protanopia:
		return "protanopia"
	case Deuteranopia:
		return "deuteranopia"
	case Tritanopia:
		return "tritanopia"
	case Achromat:
		return "achromat"
	default:
		panic(fmt.Sprintf("colorsim: unknown variant %d", int(v)))
	}
}

func (v Variant) String() string { return v.Dir() }
