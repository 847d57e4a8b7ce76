// Package governor bounds the resources a batch may consume. The
// pixel, page and file ceilings are the pipeline's only backpressure
// mechanism: there are no internal timeouts, so worst-case memory and
// latency are bounded entirely by these limits.
package governor

import "math"

// Default ceilings, fixed at process start.
const (
	DefaultMaxFiles         = 200
	DefaultMaxPagesPerFile  = 200
	DefaultMaxPixelsPerPage = 1_000_000_000

	// MinScale prevents a zero-pixel render when callers request
	// vanishingly small scales.
	MinScale = 0.1
	MaxScale = 1.0
)

// Limits is the immutable resource configuration for one batch run.
// It is constructed once and threaded explicitly; nothing reads these
// values from ambient global state.
type Limits struct {
	MaxFiles         int
	MaxPagesPerFile  int
	MaxPixelsPerPage int
	MinScale         float64
	MaxScale         float64
}

// DefaultLimits returns the production ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:         DefaultMaxFiles,
		MaxPagesPerFile:  DefaultMaxPagesPerFile,
		MaxPixelsPerPage: DefaultMaxPixelsPerPage,
		MinScale:         MinScale,
		MaxScale:         MaxScale,
	}
}

// ClampScale forces a requested render scale into [MinScale, MaxScale].
// Non-finite values fall back to MaxScale.
func (l Limits) ClampScale(scale float64) float64 {
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return l.MaxScale
	}
	return math.Max(l.MinScale, math.Min(l.MaxScale, scale))
}

// AdmitFiles returns how many of count files may enter the batch and
// whether the batch was truncated to MaxFiles. Admission preserves the
// original order; callers report each dropped file individually.
func (l Limits) AdmitFiles(count int) (int, bool) {
	if count > l.MaxFiles {
		return l.MaxFiles, true
	}
	return count, false
}

// AdmitPages caps a document's page count at MaxPagesPerFile.
func (l Limits) AdmitPages(pageCount int) (usable int, truncated bool) {
	if pageCount > l.MaxPagesPerFile {
		return l.MaxPagesPerFile, true
	}
	return pageCount, false
}

// ResolveScale computes the effective render scale for a page of the
// given intrinsic size (in points). If the estimated pixel count at
// the requested scale exceeds MaxPixelsPerPage, the scale is reduced
// by the square root of the overshoot so the rendered area lands at
// the ceiling, then clamped into [MinScale, requested]. The scale is
// only ever reduced here, never increased: oversized pages render at
// reduced fidelity instead of driving unbounded allocation.
func (l Limits) ResolveScale(width, height, requested float64) float64 {
	estW := math.Max(1, math.Floor(width*requested))
	estH := math.Max(1, math.Floor(height*requested))
	pixels := estW * estH
	if pixels <= float64(l.MaxPixelsPerPage) {
		return requested
	}
	adjusted := requested * math.Sqrt(float64(l.MaxPixelsPerPage)/pixels)
	return math.Max(l.MinScale, math.Min(adjusted, requested))
}
