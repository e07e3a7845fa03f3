// Package annotate draws detection boxes and labels onto a copy of an image.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// labelOffset is the gap in pixels between the label baseline and the box top.
const labelOffset = 8

// Label is one box to draw.
type Label struct {
	Text       string
	Confidence float64
	Box        image.Rectangle
}

// Options controls the overlay style.
type Options struct {
	Color     color.Color
	Thickness int
}

// DefaultOptions draws 2px green boxes.
func DefaultOptions() Options {
	return Options{Color: color.RGBA{G: 255, A: 255}, Thickness: 2}
}

// ParseColor parses a "#RRGGBB" hex color.
func ParseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Caption formats the text drawn above a box.
func Caption(l Label) string {
	return fmt.Sprintf("%s (%.0f)", l.Text, l.Confidence)
}

// Annotate returns a new image with the same bounds as img, with an unfilled
// rectangle and caption for every label. img is not modified.
//
// *image.RGBA and *image.NRGBA inputs yield a copy of the same type. Other
// formats (YCbCr from JPEG, Gray, paletted) cannot hold the colored overlay
// in place and are copied into *image.RGBA.
func Annotate(img image.Image, labels []Label, opts Options) draw.Image {
	if opts.Color == nil {
		opts.Color = DefaultOptions().Color
	}
	if opts.Thickness < 1 {
		opts.Thickness = 1
	}

	out := canvas(img)
	src := image.NewUniform(opts.Color)
	for _, l := range labels {
		drawBox(out, l.Box, opts.Thickness, src)
		drawCaption(out, l.Box, Caption(l), src)
	}
	return out
}

// canvas copies img into a writable image of the same pixel format when
// possible.
func canvas(img image.Image) draw.Image {
	b := img.Bounds()
	var out draw.Image
	switch img.(type) {
	case *image.NRGBA:
		out = image.NewNRGBA(b)
	default:
		out = image.NewRGBA(b)
	}
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

// drawBox paints the rectangle outline inward from box, clipped to dst.
func drawBox(dst draw.Image, box image.Rectangle, thickness int, src image.Image) {
	box = box.Canon()
	t := min(thickness, (box.Dx()+1)/2, (box.Dy()+1)/2)
	if t < 1 {
		return
	}
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+t),
		image.Rect(box.Min.X, box.Max.Y-t, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+t, box.Max.Y),
		image.Rect(box.Max.X-t, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, e := range edges {
		e = e.Intersect(dst.Bounds())
		if !e.Empty() {
			draw.Draw(dst, e, src, image.Point{}, draw.Src)
		}
	}
}

// drawCaption writes text with its baseline labelOffset pixels above box,
// moved down when it would leave the top of dst.
func drawCaption(dst draw.Image, box image.Rectangle, text string, src image.Image) {
	face := basicfont.Face7x13
	ascent := face.Metrics().Ascent.Ceil()

	x := max(box.Min.X, dst.Bounds().Min.X)
	y := box.Min.Y - labelOffset
	if y-ascent < dst.Bounds().Min.Y {
		y = dst.Bounds().Min.Y + ascent
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// SaveJPEG writes img to path, creating parent directories.
func SaveJPEG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to save annotated image: %w", err)
	}
	return nil
}
