package detection

import (
	"errors"
	"image"
	"testing"
)

func TestDecodeYOLO_V5Layout(t *testing.T) {
	labels := []string{"car", "license_plate"}
	// Two predictions, 5+2 attributes each, on a 640 input.
	data := []float32{
		320, 320, 64, 32, 0.9, 0.1, 0.8,
		100, 100, 20, 20, 0.1, 0.5, 0.1,
	}
	boxes, err := DecodeYOLO(YOLOOutput{Data: data, Dims: []int{1, 2, 7}}, DecodeOptions{
		Labels:         labels,
		InputSize:      640,
		ImageBounds:    image.Rect(0, 0, 1280, 640),
		ScoreThreshold: 0.25,
	})
	if err != nil {
		t.Fatalf("DecodeYOLO failed: %v", err)
	}
	if len(boxes) != 1 {
		t.Fatalf("expected 1 box above threshold, got %d", len(boxes))
	}
	b := boxes[0]
	if b.Label != "license_plate" || b.Class != 1 {
		t.Errorf("label = %q class = %d", b.Label, b.Class)
	}
	if want := image.Rect(576, 304, 704, 336); b.Bounds != want {
		t.Errorf("bounds = %v, want %v", b.Bounds, want)
	}
	if b.Score < 0.71 || b.Score > 0.73 {
		t.Errorf("score = %f, want objectness * class score", b.Score)
	}
}

func TestDecodeYOLO_V8Layout(t *testing.T) {
	// 4+2 attributes by 3 predictions, column major per prediction.
	data := []float32{
		10, 300, 600, // cx
		10, 300, 600, // cy
		20, 100, 200, // w
		20, 50, 200, // h
		0.1, 0.2, 0.9, // class 0
		0.1, 0.7, 0.0, // class 1
	}
	boxes, err := DecodeYOLO(YOLOOutput{Data: data, Dims: []int{1, 6, 3}}, DecodeOptions{
		Labels:         []string{"car", "truck"},
		InputSize:      640,
		ImageBounds:    image.Rect(0, 0, 640, 640),
		ScoreThreshold: 0.5,
	})
	if err != nil {
		t.Fatalf("DecodeYOLO failed: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}
	if boxes[0].Label != "truck" || boxes[0].Bounds != image.Rect(250, 275, 350, 325) {
		t.Errorf("first box = %+v", boxes[0])
	}
	// The third box extends past the image and is clamped.
	if boxes[1].Label != "car" || boxes[1].Bounds != image.Rect(500, 500, 640, 640) {
		t.Errorf("second box = %+v", boxes[1])
	}
}

func TestDecodeYOLO_UnknownLabel(t *testing.T) {
	data := []float32{50, 50, 10, 10, 1, 0, 0, 0.9}
	boxes, err := DecodeYOLO(YOLOOutput{Data: data, Dims: []int{1, 8}}, DecodeOptions{
		InputSize:   100,
		ImageBounds: image.Rect(0, 0, 100, 100),
	})
	if err != nil {
		t.Fatalf("DecodeYOLO failed: %v", err)
	}
	if len(boxes) != 1 || boxes[0].Label != "class_2" {
		t.Fatalf("boxes = %+v", boxes)
	}
}

func TestDecodeYOLO_BadShape(t *testing.T) {
	tests := []struct {
		name string
		out  YOLOOutput
		opts DecodeOptions
	}{
		{"size mismatch", YOLOOutput{Data: make([]float32, 5), Dims: []int{1, 2, 7}}, DecodeOptions{InputSize: 640}},
		{"rank", YOLOOutput{Data: make([]float32, 8), Dims: []int{1, 2, 2, 2}}, DecodeOptions{InputSize: 640}},
		{"batch", YOLOOutput{Data: make([]float32, 14), Dims: []int{2, 1, 7}}, DecodeOptions{InputSize: 640}},
		{"input size", YOLOOutput{Data: make([]float32, 7), Dims: []int{1, 7}}, DecodeOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeYOLO(tt.out, tt.opts)
			if !errors.Is(err, ErrModelUnavailable) {
				t.Errorf("expected ErrModelUnavailable, got %v", err)
			}
		})
	}
}

func TestNMS(t *testing.T) {
	boxes := []Box{
		{Bounds: image.Rect(0, 0, 100, 100), Score: 0.6},
		{Bounds: image.Rect(5, 5, 105, 105), Score: 0.9},
		{Bounds: image.Rect(200, 200, 260, 240), Score: 0.5},
	}
	kept := NMS(boxes, 0.45)
	if len(kept) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(kept))
	}
	if kept[0].Score != 0.9 || kept[1].Score != 0.5 {
		t.Errorf("unexpected order: %+v", kept)
	}
	if boxes[0].Score != 0.6 {
		t.Error("NMS must not reorder its input")
	}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	if got := IoU(a, a); got != 1 {
		t.Errorf("IoU(a, a) = %f", got)
	}
	if got := IoU(a, image.Rect(20, 20, 30, 30)); got != 0 {
		t.Errorf("disjoint IoU = %f", got)
	}
	if got := IoU(a, image.Rect(5, 0, 15, 10)); got < 0.333 || got > 0.334 {
		t.Errorf("half overlap IoU = %f", got)
	}
}
