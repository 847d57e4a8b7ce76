// Package colorsim implements the colorimetric simulation of
// color-vision deficiencies over rasterized page images.
//
// Dichromacy variants follow the classic pipeline: undo sRGB gamma,
// convert linear RGB to XYZ and on to LMS cone-response space, project
// onto the deficiency's confusion plane with a fixed cone-collapse
// matrix, and convert back. The matrix constants are the established
// Brettel/Viénot-style approximations and are reproduced exactly;
// they are reference domain knowledge, not derived values.
package colorsim

import (
	"fmt"
	"math"
)

type matrix3 [3][3]float64

func (m matrix3) apply(v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// sRGB primaries, D65 white point.
var srgbToXYZ = matrix3{
	{0.4124, 0.3576, 0.1805},
	{0.2126, 0.7152, 0.0722},
	{0.0193, 0.1192, 0.9505},
}

// Hunt-Pointer-Estevez-type approximation.
var xyzToLMS = matrix3{
	{0.4002, 0.7075, -0.0808},
	{-0.2263, 1.1653, 0.0457},
	{0.0, 0.0, 0.9182},
}

// Fixed inverses, stated as constants so output matches the reference
// implementation bit-for-bit rather than depending on a runtime
// matrix inversion.
var lmsToXYZ = matrix3{
	{1.8599, -1.1294, 0.2199},
	{0.3612, 0.6388, 0.0},
	{0.0, 0.0, 1.0891},
}

var xyzToSRGB = matrix3{
	{3.2406, -1.5372, -0.4986},
	{-0.9689, 1.8758, 0.0415},
	{0.0557, -0.2040, 1.0570},
}

// Cone-collapse projections. Each reconstructs the missing cone
// response from the remaining two, mapping every color to its
// representative on the deficiency's confusion line. All three are
// exact projections (M·M == M) in linear LMS space.
var coneCollapse = map[Variant]matrix3{
	Protanopia: {
		{0, 1.208, -0.208},
		{0, 1, 0},
		{0, 0, 1},
	},
	Deuteranopia: {
		{1, 0, 0},
		{0.8278, 0, 0.1722},
		{0, 0, 1},
	},
	Tritanopia: {
		{1, 0, 0},
		{0, 1, 0},
		{-0.5254, 1.5254, 0},
	},
}

// linearLUT maps an sRGB byte to linear light.
var linearLUT = func() [256]float64 {
	var lut [256]float64
	for i := range lut {
		c := float64(i) / 255.0
		if c <= 0.04045 {
			lut[i] = c / 12.92
		} else {
			lut[i] = math.Pow((c+0.055)/1.055, 2.4)
		}
	}
	return lut
}()

// gammaEncode converts one linear-light channel back to a clamped sRGB
// byte. Linear-space matrix math overshoots [0,1] at saturated colors,
// so the clamp is mandatory.
func gammaEncode(c float64) byte {
	var g float64
	if c <= 0.0031308 {
		g = 12.92 * c
	} else {
		g = 1.055*math.Pow(c, 1/2.4) - 0.055
	}
	g = g*255.0 + 0.5
	if g < 0 {
		return 0
	}
	if g > 255 {
		return 255
	}
	return byte(g)
}

// Simulate derives the given variant from src, returning a new bitmap
// of identical dimensions. src is never mutated, so the five variants
// of one page may be derived concurrently from the same source.
// An unknown variant panics: the variant set is closed and a value
// outside it means the caller is broken, not the input.
func Simulate(src *Bitmap, v Variant) (*Bitmap, error) {
	if err := src.validate(); err != nil {
		return nil, fmt.Errorf("simulate %s: %w", v, err)
	}
	switch v {
	case Common:
		return src.Clone(), nil
	case Achromat:
		return desaturate(src), nil
	case Protanopia, Deuteranopia, Tritanopia:
		return dichromacy(src, coneCollapse[v]), nil
	default:
		panic(fmt.Sprintf("colorsim: unknown variant %d", int(v)))
	}
}

func dichromacy(src *Bitmap, collapse matrix3) *Bitmap {
	out := NewBitmap(src.Width, src.Height)
	for i := 0; i < len(src.Pix); i += 3 {
		lin := [3]float64{
			linearLUT[src.Pix[i+0]],
			linearLUT[src.Pix[i+1]],
			linearLUT[src.Pix[i+2]],
		}
		lms := xyzToLMS.apply(srgbToXYZ.apply(lin))
		rgb := xyzToSRGB.apply(lmsToXYZ.apply(collapse.apply(lms)))
		out.Pix[i+0] = gammaEncode(rgb[0])
		out.Pix[i+1] = gammaEncode(rgb[1])
		out.Pix[i+2] = gammaEncode(rgb[2])
	}
	return out
}

// desaturate is the achromatopsia rendition: the rounded arithmetic
// mean of each RGB triple replicated to all three channels. Total cone
// loss has no confusion line to project onto, so no colorimetric
// round-trip is involved.
func desaturate(src *Bitmap) *Bitmap {
	out := NewBitmap(src.Width, src.Height)
	for i := 0; i < len(src.Pix); i += 3 {
		sum := int(src.Pix[i+0]) + int(src.Pix[i+1]) + int(src.Pix[i+2])
		m := byte((sum + 1) / 3)
		out.Pix[i+0] = m
		out.Pix[i+1] = m
		out.Pix[i+2] = m
	}
	return out
}
