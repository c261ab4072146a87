package mvs

import "fmt"

// Range is a half-open index interval [Begin, End).
type Range struct {
	Begin int
	End   int
}

// Size returns the number of indices covered by the range.
func (r Range) Size() int { return r.End - r.Begin }

// IsEmpty reports whether the range covers no indices.
func (r Range) IsEmpty() bool { return r.End <= r.Begin }

// Contains reports whether i lies inside the range.
func (r Range) Contains(i int) bool { return i >= r.Begin && i < r.End }

// ROI is a rectangular pixel region of one view, in image coordinates.
type ROI struct {
	X Range
	Y Range
}

// NewROI builds an ROI from an origin and a size.
func NewROI(x, y, width, height int) ROI {
	return ROI{
		X: Range{Begin: x, End: x + width},
		Y: Range{Begin: y, End: y + height},
	}
}

// Width returns the ROI width in pixels.
func (r ROI) Width() int { return r.X.Size() }

// Height returns the ROI height in pixels.
func (r ROI) Height() int { return r.Y.Size() }

// IsEmpty reports whether the ROI covers no pixels.
func (r ROI) IsEmpty() bool { return r.X.IsEmpty() || r.Y.IsEmpty() }

func (r ROI) String() string {
	return fmt.Sprintf("x[%d-%d] y[%d-%d]", r.X.Begin, r.X.End, r.Y.Begin, r.Y.End)
}

// DivideRoundUp returns ceil(a/b) for positive b.
func DivideRoundUp(a, b int) int { return (a + b - 1) / b }

// DownscaleRange maps a full-resolution range into a downscaled grid.
// The end is rounded up so that every source pixel remains covered.
func DownscaleRange(r Range, downscale int) Range {
	return Range{Begin: r.Begin / downscale, End: DivideRoundUp(r.End, downscale)}
}

// DownscaleROI maps a full-resolution ROI into a downscaled grid.
func DownscaleROI(roi ROI, downscale int) ROI {
	return ROI{
		X: DownscaleRange(roi.X, downscale),
		Y: DownscaleRange(roi.Y, downscale),
	}
}
