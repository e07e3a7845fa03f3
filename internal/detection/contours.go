package detection

import (
	"image"

	"github.com/ironsheep/visionguard/internal/imaging"
)

// Contour is one external connected component of an edge mask.
type Contour struct {
	// Points are the component's edge pixels in discovery order.
	Points []image.Point

	// Bounds is the bounding rectangle; Max is exclusive.
	Bounds image.Rectangle

	// Area is the number of pixels enclosed by the component, its own pixels
	// included.
	Area int
}

// ExternalContours finds the outermost contours of a binary mask. Any non-zero
// pixel is foreground. Coordinates are relative to mask.Bounds().Min.
func ExternalContours(mask *image.Gray) []Contour {
	mask = imaging.Gray(mask)
	width, height := mask.Bounds().Dx(), mask.Bounds().Dy()
	if width == 0 || height == 0 {
		return nil
	}

	edges := make([]bool, width*height)
	for y := 0; y < height; y++ {
		row := mask.Pix[y*mask.Stride:]
		for x := 0; x < width; x++ {
			edges[y*width+x] = row[x] != 0
		}
	}

	outside := outsideBackground(edges, width, height)

	visited := make([]bool, width*height)
	contours := make([]Contour, 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if !edges[i] || visited[i] {
				continue
			}
			points := floodFill(edges, visited, x, y, width, height)
			if !isExternal(points, outside, width, height) {
				continue
			}
			bounds := boundsOf(points)
			contours = append(contours, Contour{
				Points: points,
				Bounds: bounds,
				Area:   enclosedArea(points, bounds),
			})
		}
	}

	return contours
}

// outsideBackground marks background pixels 4-connected to the image border.
// 4-connected background is the dual of 8-connected foreground, so a closed
// 8-connected ring blocks it.
func outsideBackground(edges []bool, width, height int) []bool {
	outside := make([]bool, width*height)
	stack := make([]int, 0, 2*(width+height))
	push := func(x, y int) {
		i := y*width + x
		if edges[i] || outside[i] {
			return
		}
		outside[i] = true
		stack = append(stack, i)
	}
	for x := 0; x < width; x++ {
		push(x, 0)
		push(x, height-1)
	}
	for y := 0; y < height; y++ {
		push(0, y)
		push(width-1, y)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		if x > 0 {
			push(x-1, y)
		}
		if x < width-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < height-1 {
			push(x, y+1)
		}
	}
	return outside
}

// floodFill collects the 8-connected edge component containing (startX, startY).
//
// Uses a stack-based approach (not recursive) to avoid stack overflow
// on large contours.
func floodFill(edges, visited []bool, startX, startY, width, height int) []image.Point {
	contour := make([]image.Point, 0)
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		i := p.Y*width + p.X
		if visited[i] || !edges[i] {
			continue
		}

		visited[i] = true
		contour = append(contour, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return contour
}

// isExternal reports whether a component touches the border or outside
// background.
func isExternal(points []image.Point, outside []bool, width, height int) bool {
	for _, p := range points {
		if p.X == 0 || p.Y == 0 || p.X == width-1 || p.Y == height-1 {
			return true
		}
		i := p.Y*width + p.X
		if outside[i-1] || outside[i+1] || outside[i-width] || outside[i+width] {
			return true
		}
	}
	return false
}

func boundsOf(points []image.Point) image.Rectangle {
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// enclosedArea counts the pixels of bounds that cannot reach the margin around
// bounds without crossing the component.
func enclosedArea(points []image.Point, bounds image.Rectangle) int {
	w, h := bounds.Dx()+2, bounds.Dy()+2
	member := make([]bool, w*h)
	for _, p := range points {
		member[(p.Y-bounds.Min.Y+1)*w+(p.X-bounds.Min.X+1)] = true
	}

	reached := make([]bool, w*h)
	stack := []int{0}
	reached[0] = true
	count := 1
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			j := ny*w + nx
			if reached[j] || member[j] {
				continue
			}
			reached[j] = true
			count++
			stack = append(stack, j)
		}
	}
	return w*h - count
}
