package detection

import (
	"errors"
	"image"
)

// ErrModelUnavailable is returned when a detector model cannot be loaded or
// produces output in an unexpected shape.
var ErrModelUnavailable = errors.New("detector model unavailable")

// CandidateRegion is a rectangle proposed as a possible plate location.
type CandidateRegion struct {
	// Bounds is the axis-aligned bounding rectangle in source image coordinates.
	Bounds image.Rectangle `json:"bounds"`

	// Contour holds the contour pixels when the region came from edge geometry.
	Contour []image.Point `json:"-"`

	// Area is the enclosed contour area, or the box area for detector output.
	Area int `json:"area"`

	// Label and Score are set by detector-based proposers.
	Label string  `json:"label,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// Proposer produces candidate plate regions for one image. Implementations hold
// no per-call state, so a new slice is computed on every call.
type Proposer interface {
	Propose(img image.Image) ([]CandidateRegion, error)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(img image.Image) ([]CandidateRegion, error)

// Propose calls f(img).
func (f ProposerFunc) Propose(img image.Image) ([]CandidateRegion, error) {
	return f(img)
}
