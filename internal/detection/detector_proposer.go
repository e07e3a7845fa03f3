package detection

import (
	"fmt"
	"image"
	"sort"
	"strings"
)

// Box is one decoded detector output in source image coordinates.
type Box struct {
	Bounds image.Rectangle
	Class  int
	Label  string
	Score  float64
}

// Detector runs a frozen object-detection model over an image.
type Detector interface {
	Detect(img image.Image) ([]Box, error)
}

// DetectorOptions filters detector output.
type DetectorOptions struct {
	// Classes lists the labels to keep, compared case-insensitively. Empty keeps
	// every class.
	Classes []string

	// ScoreThreshold drops boxes scoring below it.
	ScoreThreshold float64

	// NMSThreshold is the IoU above which the lower scoring of two boxes is
	// dropped. Zero or negative disables suppression.
	NMSThreshold float64
}

// DetectorProposer exposes a Detector as a Proposer.
type DetectorProposer struct {
	det  Detector
	keep map[string]bool
	opts DetectorOptions
}

// NewDetectorProposer wraps det.
func NewDetectorProposer(det Detector, opts DetectorOptions) *DetectorProposer {
	keep := make(map[string]bool, len(opts.Classes))
	for _, c := range opts.Classes {
		keep[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return &DetectorProposer{det: det, keep: keep, opts: opts}
}

// Propose runs the detector and keeps boxes of an accepted class.
func (p *DetectorProposer) Propose(img image.Image) ([]CandidateRegion, error) {
	boxes, err := p.det.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detector failed: %w", err)
	}

	kept := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.Score < p.opts.ScoreThreshold {
			continue
		}
		if len(p.keep) > 0 && !p.keep[strings.ToLower(b.Label)] {
			continue
		}
		b.Bounds = b.Bounds.Intersect(img.Bounds())
		if b.Bounds.Empty() {
			continue
		}
		kept = append(kept, b)
	}
	if p.opts.NMSThreshold > 0 {
		kept = NMS(kept, p.opts.NMSThreshold)
	}

	candidates := make([]CandidateRegion, 0, len(kept))
	for _, b := range kept {
		candidates = append(candidates, CandidateRegion{
			Bounds: b.Bounds,
			Area:   b.Bounds.Dx() * b.Bounds.Dy(),
			Label:  b.Label,
			Score:  b.Score,
		})
	}
	return candidates, nil
}

// NMS performs greedy non-maximum suppression, highest score first. Boxes are
// suppressed across classes.
func NMS(boxes []Box, iouThreshold float64) []Box {
	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	kept := make([]Box, 0, len(sorted))
	for _, b := range sorted {
		suppressed := false
		for _, k := range kept {
			if IoU(b.Bounds, k.Bounds) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, b)
		}
	}
	return kept
}

// IoU returns the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}
