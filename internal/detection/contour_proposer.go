package detection

import (
	"image"

	"github.com/ironsheep/visionguard/internal/config"
	"github.com/ironsheep/visionguard/internal/imaging"
)

// ContourProposer finds plate candidates from edge geometry.
type ContourProposer struct {
	cfg config.Processing
}

// NewContourProposer creates a proposer using the thresholds in cfg. The blur
// kernel is coerced to an odd size here so that a hand-built Processing value
// behaves the same as one produced by config.NewProcessing.
func NewContourProposer(cfg config.Processing) *ContourProposer {
	cfg.GaussianBlur = config.OddKernel(cfg.GaussianBlur)
	return &ContourProposer{cfg: cfg}
}

// Propose returns every external contour of the edge mask whose enclosed area
// and aspect ratio are within the configured bounds.
//
// # Algorithm
//
//  1. Convert to single-channel intensity
//  2. Gaussian blur with the odd kernel size from config
//  3. Canny edges with the configured low/high thresholds, then one 3x3 dilation
//  4. External contours only
//  5. Keep a contour when MinPlateArea <= area <= MaxPlateArea and
//     AspectLow <= width / max(height, 1) <= AspectHigh
func (p *ContourProposer) Propose(img image.Image) ([]CandidateRegion, error) {
	mask := imaging.EdgeMask(img, p.cfg.GaussianBlur, p.cfg.CannyLow, p.cfg.CannyHigh)
	origin := img.Bounds().Min

	candidates := make([]CandidateRegion, 0)
	for _, c := range ExternalContours(mask) {
		if !Accept(p.cfg, c.Area, c.Bounds) {
			continue
		}
		points := make([]image.Point, len(c.Points))
		for i, pt := range c.Points {
			points[i] = pt.Add(origin)
		}
		candidates = append(candidates, CandidateRegion{
			Bounds:  c.Bounds.Add(origin),
			Contour: points,
			Area:    c.Area,
		})
	}
	return candidates, nil
}

// Accept applies the area and aspect-ratio filter to one contour.
func Accept(cfg config.Processing, area int, bounds image.Rectangle) bool {
	if area < cfg.MinPlateArea || area > cfg.MaxPlateArea {
		return false
	}
	aspect := float64(bounds.Dx()) / float64(max(bounds.Dy(), 1))
	return aspect >= cfg.AspectLow && aspect <= cfg.AspectHigh
}
