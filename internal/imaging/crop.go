package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// PaddedRegion expands region by 5% of its larger side on every edge and clamps
// the result to bounds. The result may be empty when region does not overlap
// bounds.
func PaddedRegion(bounds, region image.Rectangle) image.Rectangle {
	pad := int(0.05 * float64(max(region.Dx(), region.Dy())))
	padded := image.Rect(region.Min.X-pad, region.Min.Y-pad, region.Max.X+pad, region.Max.Y+pad)
	return padded.Intersect(bounds)
}

// ExtractRegion crops the padded region from img.
//
// The returned image has bounds starting at (0,0). The second result is the
// padded rectangle in img coordinates. When that rectangle has zero area the
// crop is nil and the caller should skip the region.
func ExtractRegion(img image.Image, region image.Rectangle) (*image.NRGBA, image.Rectangle) {
	r := PaddedRegion(img.Bounds(), region)
	if r.Empty() {
		return nil, image.Rectangle{}
	}
	return imaging.Crop(img, r), r
}
