package config

import "fmt"

// Processing is the immutable set of thresholds used by every pipeline stage.
//
// Build it with NewProcessing so the kernel sizes are coerced and the ordering
// invariants are checked. Values are copied, never shared by pointer.
type Processing struct {
	MinPlateArea  int     // minimum enclosed candidate area in pixels²
	MaxPlateArea  int     // maximum enclosed candidate area in pixels²
	GaussianBlur  int     // blur kernel size, always odd and >= 1
	CannyLow      int     // hysteresis low threshold
	CannyHigh     int     // hysteresis high threshold
	AspectLow     float64 // minimum width/height
	AspectHigh    float64 // maximum width/height
	AdaptiveBlock int     // adaptive threshold neighborhood, always odd and >= 3
	AdaptiveC     int     // constant subtracted from the weighted local mean
}

// DefaultProcessing returns the stock thresholds.
func DefaultProcessing() Processing {
	return Processing{
		MinPlateArea:  4500,
		MaxPlateArea:  250000,
		GaussianBlur:  3,
		CannyLow:      50,
		CannyHigh:     150,
		AspectLow:     2.0,
		AspectHigh:    6.0,
		AdaptiveBlock: 31,
		AdaptiveC:     7,
	}
}

// NewProcessing coerces kernel sizes and validates p.
func NewProcessing(p Processing) (Processing, error) {
	p.GaussianBlur = OddKernel(p.GaussianBlur)
	p.AdaptiveBlock = OddKernel(p.AdaptiveBlock)
	if p.AdaptiveBlock < 3 {
		p.AdaptiveBlock = 3
	}

	if p.MinPlateArea < 0 || p.MinPlateArea > p.MaxPlateArea {
		return Processing{}, fmt.Errorf("%w: plate area bounds [%d, %d]", ErrInvalidConfig, p.MinPlateArea, p.MaxPlateArea)
	}
	if p.AspectLow < 0 || p.AspectLow > p.AspectHigh {
		return Processing{}, fmt.Errorf("%w: aspect bounds [%g, %g]", ErrInvalidConfig, p.AspectLow, p.AspectHigh)
	}
	if p.CannyLow < 0 || p.CannyLow > p.CannyHigh {
		return Processing{}, fmt.Errorf("%w: canny thresholds [%d, %d]", ErrInvalidConfig, p.CannyLow, p.CannyHigh)
	}
	return p, nil
}

// OddKernel returns k when it is odd and positive, k+1 when it is even, and 1
// for anything below 1.
func OddKernel(k int) int {
	if k < 1 {
		return 1
	}
	if k%2 == 0 {
		return k + 1
	}
	return k
}
