package imaging

import (
	"image"
	"math"
)

// EdgeMask runs the classical plate preprocessing chain on img: intensity
// conversion, Gaussian smoothing with an odd kernel of blurSize, Canny edge
// detection with the two hysteresis thresholds, and one 3x3 dilation to close
// small gaps. Edge pixels are 255, everything else is 0.
func EdgeMask(img image.Image, blurSize, low, high int) *image.Gray {
	gray := Gray(img)
	blurred := GaussianBlur(gray, blurSize)
	return Dilate3x3(Canny(blurred, low, high))
}

// Canny performs Canny edge detection on an already smoothed intensity image.
//
// # Algorithm
//
//  1. Gradient computation: Sobel operators for X and Y gradients on the 0-255
//     intensity scale, magnitude = sqrt(Gx² + Gy²), direction = atan2(Gy, Gx)
//
//  2. Non-maximum suppression: thin edges by keeping only local maxima in the
//     gradient direction
//
//  3. Hysteresis: pixels at or above high are strong edges. Pixels at or above
//     low are kept only when 8-connected, directly or through other weak
//     pixels, to a strong edge.
//
// Thresholds are on the same scale as the gradient magnitude, so the usual
// pairs such as 50/150 or 100/200 apply directly.
func Canny(gray *image.Gray, low, high int) *image.Gray {
	gray = Gray(gray)
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return out
	}

	at := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return float64(gray.Pix[y*gray.Stride+x])
	}

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := at(x+kx, y+ky)
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			magnitude[y*width+x] = math.Sqrt(gx*gx + gy*gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression; the outermost ring is never an edge.
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			angle := direction[i]
			mag := magnitude[i]
			if mag == 0 {
				continue
			}

			var n1, n2 float64
			if (angle >= -math.Pi/8 && angle < math.Pi/8) || (angle >= 7*math.Pi/8 || angle < -7*math.Pi/8) {
				n1 = magnitude[i-1]
				n2 = magnitude[i+1]
			} else if (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8) {
				n1 = magnitude[i-width-1]
				n2 = magnitude[i+width+1]
			} else if (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8) {
				n1 = magnitude[i-width]
				n2 = magnitude[i+width]
			} else {
				n1 = magnitude[i-width+1]
				n2 = magnitude[i+width-1]
			}

			if mag >= n1 && mag >= n2 {
				suppressed[i] = mag
			}
		}
	}

	lowThresh := float64(low)
	highThresh := float64(high)

	// Seed from strong edges and grow through weak ones.
	stack := make([]int, 0, width)
	for i, v := range suppressed {
		if v >= highThresh && v > 0 {
			out.Pix[i] = 255
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if out.Pix[j] != 0 || suppressed[j] < lowThresh || suppressed[j] == 0 {
					continue
				}
				out.Pix[j] = 255
				stack = append(stack, j)
			}
		}
	}

	return out
}

// Dilate3x3 grows every non-zero pixel of mask into its 8 neighbors, the
// equivalent of one dilation with a 3x3 square structuring element.
func Dilate3x3(mask *image.Gray) *image.Gray {
	src := Gray(mask)
	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if src.Pix[y*src.Stride+x] == 0 {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width {
						continue
					}
					out.Pix[ny*out.Stride+nx] = 255
				}
			}
		}
	}
	return out
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func gaussExp(d, sigma float64) float64 {
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}
