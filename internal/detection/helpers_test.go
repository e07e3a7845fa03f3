package detection

import (
	"image"
	"image/color"
)

// createFilledRectImage creates a black RGBA image with a filled white rectangle.
func createFilledRectImage(width, height int, r image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.Color(color.Black)
			if (image.Point{X: x, Y: y}).In(r) {
				c = color.White
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// drawOutline sets a one pixel rectangular outline on mask.
func drawOutline(mask *image.Gray, r image.Rectangle) {
	for x := r.Min.X; x < r.Max.X; x++ {
		mask.SetGray(x, r.Min.Y, color.Gray{Y: 255})
		mask.SetGray(x, r.Max.Y-1, color.Gray{Y: 255})
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		mask.SetGray(r.Min.X, y, color.Gray{Y: 255})
		mask.SetGray(r.Max.X-1, y, color.Gray{Y: 255})
	}
}
