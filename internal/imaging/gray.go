package imaging

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/disintegration/imaging"
)

// Gray converts img to a single-channel intensity image with bounds starting at
// (0,0). Luminance uses the ITU-R BT.601 weights of color.GrayModel.
// A *image.Gray already anchored at the origin is returned as is.
func Gray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Upscale2x doubles both dimensions of a grayscale image with Catmull-Rom
// (bicubic) interpolation.
func Upscale2x(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	if b.Empty() {
		return gray
	}
	return Gray(imaging.Resize(gray, b.Dx()*2, b.Dy()*2, imaging.CatmullRom))
}

// GaussianBlur smooths gray with a square Gaussian kernel of the given size.
// Even sizes are rounded up to the next odd value; sizes below 1 become 1,
// which returns a copy of the input.
//
// The standard deviation follows the usual derivation from kernel size:
//
//	sigma = 0.3*((size-1)*0.5 - 1) + 0.8
//
// The kernel is separable and applied as a horizontal then a vertical pass.
// Border pixels use replicated edge values.
func GaussianBlur(gray *image.Gray, size int) *image.Gray {
	size = oddSize(size)
	if size == 1 {
		return Gray(imaging.Clone(gray))
	}
	return separable(gray, gaussianWeights(size))
}

// oddSize mirrors config.OddKernel so the package stays usable on its own.
func oddSize(k int) int {
	if k < 1 {
		return 1
	}
	if k%2 == 0 {
		return k + 1
	}
	return k
}

// gaussianWeights returns a normalized 1-D Gaussian kernel of odd length n.
func gaussianWeights(n int) []float64 {
	sigma := 0.3*(float64(n-1)*0.5-1) + 0.8
	w := make([]float64, n)
	half := n / 2
	var sum float64
	for i := range w {
		d := float64(i - half)
		w[i] = gaussExp(d, sigma)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// separable convolves gray with the 1-D kernel along X and then along Y.
func separable(gray *image.Gray, weights []float64) *image.Gray {
	n := len(weights)
	horiz := convolution.NewKernel(n, 1)
	vert := convolution.NewKernel(1, n)
	for i, v := range weights {
		horiz.Matrix[i] = v
		vert.Matrix[i] = v
	}
	// A bias of 0.5 rounds instead of truncating when channels are stored back.
	opts := &convolution.Options{Bias: 0.5, Wrap: false, KeepAlpha: true}
	pass := convolution.Convolve(gray, horiz, opts)
	pass = convolution.Convolve(pass, vert, opts)
	return Gray(pass)
}
