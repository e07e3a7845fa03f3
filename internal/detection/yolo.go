package detection

import (
	"fmt"
	"image"
	"math"
)

// YOLOOutput is a raw single-image detector tensor.
//
// Two layouts are understood, told apart by shape:
//
//   - [1, N, 5+C]: one row per prediction, cx, cy, w, h, objectness, then C
//     class scores (YOLOv5 style)
//   - [1, 4+C, N]: one column per prediction, cx, cy, w, h, then C class
//     scores and no objectness (YOLOv8 style)
//
// The batch dimension may be omitted.
type YOLOOutput struct {
	Data []float32
	Dims []int
}

// DecodeOptions maps a tensor back onto the source image.
type DecodeOptions struct {
	Labels         []string
	InputSize      int
	ImageBounds    image.Rectangle
	ScoreThreshold float64
}

// DecodeYOLO converts a YOLO tensor to boxes in image coordinates. The model
// input is assumed to be the whole image resized, without letterboxing, to
// InputSize x InputSize.
func DecodeYOLO(out YOLOOutput, opts DecodeOptions) ([]Box, error) {
	dims := out.Dims
	if len(dims) == 3 {
		if dims[0] != 1 {
			return nil, fmt.Errorf("%w: batch size %d", ErrModelUnavailable, dims[0])
		}
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: unexpected output shape %v", ErrModelUnavailable, out.Dims)
	}
	rows, cols := dims[0], dims[1]
	if rows*cols != len(out.Data) {
		return nil, fmt.Errorf("%w: output shape %v does not match %d values", ErrModelUnavailable, out.Dims, len(out.Data))
	}
	if opts.InputSize <= 0 {
		return nil, fmt.Errorf("%w: input size %d", ErrModelUnavailable, opts.InputSize)
	}

	transposed := rows < cols && rows >= 5
	if n := len(opts.Labels); n > 0 {
		switch {
		case cols == n+5 || cols == n+4:
			transposed = false
		case rows == n+5 || rows == n+4:
			transposed = true
		}
	}
	attrs, preds := cols, rows
	if transposed {
		attrs, preds = rows, cols
	}
	at := func(i, a int) float64 {
		if transposed {
			return float64(out.Data[a*preds+i])
		}
		return float64(out.Data[i*attrs+a])
	}

	hasObj := !transposed
	switch len(opts.Labels) {
	case attrs - 5:
		hasObj = true
	case attrs - 4:
		hasObj = false
	}
	first := 4
	if hasObj {
		first = 5
	}
	if attrs <= first {
		return nil, fmt.Errorf("%w: %d attributes per prediction", ErrModelUnavailable, attrs)
	}

	bounds := opts.ImageBounds
	sx := float64(bounds.Dx()) / float64(opts.InputSize)
	sy := float64(bounds.Dy()) / float64(opts.InputSize)

	boxes := make([]Box, 0)
	for i := 0; i < preds; i++ {
		obj := 1.0
		if hasObj {
			obj = at(i, 4)
		}
		class, best := -1, 0.0
		for a := first; a < attrs; a++ {
			if v := at(i, a); v > best {
				class, best = a-first, v
			}
		}
		score := obj * best
		if class < 0 || score < opts.ScoreThreshold {
			continue
		}

		cx, cy, w, h := at(i, 0)*sx, at(i, 1)*sy, at(i, 2)*sx, at(i, 3)*sy
		r := image.Rect(
			int(math.Round(cx-w/2)), int(math.Round(cy-h/2)),
			int(math.Round(cx+w/2)), int(math.Round(cy+h/2)),
		).Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}

		label := fmt.Sprintf("class_%d", class)
		if class < len(opts.Labels) {
			label = opts.Labels[class]
		}
		boxes = append(boxes, Box{Bounds: r, Class: class, Label: label, Score: score})
	}
	return boxes, nil
}
