package imaging

import "image"

// AdaptiveThreshold binarizes gray against a Gaussian-weighted local mean.
//
// For every pixel the threshold is the Gaussian-weighted mean of its
// block x block neighborhood minus c. Pixels strictly brighter than their
// threshold become 255, the rest 0. block is coerced to an odd value of at
// least 3.
func AdaptiveThreshold(gray *image.Gray, block, c int) *image.Gray {
	block = oddSize(block)
	if block < 3 {
		block = 3
	}
	src := Gray(gray)
	b := src.Bounds()
	out := image.NewGray(b)
	if b.Empty() {
		return out
	}

	mean := separable(src, gaussianWeights(block))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := int(src.Pix[y*src.Stride+x])
			t := int(mean.Pix[y*mean.Stride+x]) - c
			if v > t {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
