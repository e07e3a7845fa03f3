package imaging

import (
	"image"
	"image/color"
)

// createInMemoryImage creates a solid color test image
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createFilledRectImage creates a black image with a filled white rectangle
func createFilledRectImage(width, height int, r image.Rectangle) *image.RGBA {
	img := createInMemoryImage(width, height, color.Black)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func countNonZero(g *image.Gray) int {
	n := 0
	for _, v := range g.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}
