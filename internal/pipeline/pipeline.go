// Package pipeline chains the plate reading stages for one image:
//
//	propose -> extract -> recognize -> clean -> persist
//
// Candidates are handled independently. A region whose crop is empty, whose
// OCR fails, or whose text cleans to nothing is skipped without affecting the
// others. Only invalid input, proposer failure, cancellation, and store write
// failures are returned to the caller.
//
// A Pipeline owns its Recognizer, so give each concurrent worker its own
// Pipeline. The Recorder is the only resource shared between them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ironsheep/visionguard/internal/annotate"
	"github.com/ironsheep/visionguard/internal/detection"
	"github.com/ironsheep/visionguard/internal/imaging"
	"github.com/ironsheep/visionguard/internal/ocr"
	"github.com/ironsheep/visionguard/internal/store"
)

// Recognizer reads the text in a cropped region.
type Recognizer interface {
	Recognize(ctx context.Context, region image.Image) (ocr.Result, error)
}

// Cleaner turns raw OCR text into a plate string. It never fails.
type Cleaner interface {
	Clean(ctx context.Context, raw string) string
}

// Recorder persists one detection.
type Recorder interface {
	Insert(ctx context.Context, rec store.Record) (int64, error)
}

// Detection is one accepted plate reading.
type Detection struct {
	// ID is the store id, or 0 when the pipeline has no Recorder.
	ID         int64           `json:"id,omitempty"`
	Plate      string          `json:"plate"`
	RawText    string          `json:"raw_text"`
	Confidence float64         `json:"confidence"`
	Bounds     image.Rectangle `json:"bounds"`
	Source     string          `json:"source"`

	// Label is the detector class for detector-proposed regions.
	Label string `json:"label,omitempty"`
}

// Options wires a Pipeline.
type Options struct {
	Proposer   detection.Proposer
	Recognizer Recognizer
	Cleaner    Cleaner

	// Recorder may be nil to run without persistence.
	Recorder Recorder

	// OCRTimeout bounds each region's recognition. Zero means no bound.
	OCRTimeout time.Duration

	// Closer, when set, is closed by Close. It typically owns the OCR engine.
	Closer io.Closer

	Logger zerolog.Logger
}

// Pipeline processes images one at a time.
type Pipeline struct {
	opts Options
	log  zerolog.Logger
}

// New validates opts.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Proposer == nil:
		return nil, errors.New("pipeline: proposer is required")
	case opts.Recognizer == nil:
		return nil, errors.New("pipeline: recognizer is required")
	case opts.Cleaner == nil:
		return nil, errors.New("pipeline: cleaner is required")
	}
	return &Pipeline{opts: opts, log: opts.Logger}, nil
}

// Process runs every stage over img and returns the accepted detections.
//
// Cancellation is checked before each candidate; the detections completed so
// far are returned with ctx.Err(). When some writes fail the successfully
// persisted detections are still returned, alongside an error wrapping
// store.ErrWrite.
func (p *Pipeline) Process(ctx context.Context, img image.Image, source string) ([]Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", imaging.ErrInvalidImage)
	}

	log := p.log.With().Str("run", uuid.NewString()).Str("source", source).Logger()

	candidates, err := p.opts.Proposer.Propose(img)
	if err != nil {
		return nil, fmt.Errorf("region proposal failed: %w", err)
	}
	log.Debug().Int("candidates", len(candidates)).Msg("regions proposed")

	detections := make([]Detection, 0)
	var writeErrs []error

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return detections, err
		}

		d, ok := p.read(ctx, log, img, c)
		if !ok {
			continue
		}
		d.Source = source

		if p.opts.Recorder != nil {
			conf := d.Confidence
			id, err := p.opts.Recorder.Insert(ctx, store.Record{
				Plate:      d.Plate,
				Confidence: &conf,
				Source:     source,
			})
			if err != nil {
				log.Error().Err(err).Str("plate", d.Plate).Msg("detection not persisted")
				writeErrs = append(writeErrs, err)
				continue
			}
			d.ID = id
		}

		log.Info().Str("plate", d.Plate).Float64("conf", d.Confidence).Int64("id", d.ID).Msg("plate detected")
		detections = append(detections, d)
	}

	return detections, errors.Join(writeErrs...)
}

// read extracts, recognizes, and cleans one candidate.
func (p *Pipeline) read(ctx context.Context, log zerolog.Logger, img image.Image, c detection.CandidateRegion) (Detection, bool) {
	crop, padded := imaging.ExtractRegion(img, c.Bounds)
	if crop == nil {
		return Detection{}, false
	}

	rctx := ctx
	if p.opts.OCRTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, p.opts.OCRTimeout)
		defer cancel()
	}

	res, err := p.opts.Recognizer.Recognize(rctx, crop)
	if err != nil {
		log.Warn().Err(err).Stringer("region", padded).Msg("recognition failed")
		return Detection{}, false
	}
	if res.Text == "" {
		return Detection{}, false
	}

	plate := p.opts.Cleaner.Clean(ctx, res.Text)
	if plate == "" {
		return Detection{}, false
	}

	return Detection{
		Plate:      plate,
		RawText:    res.Text,
		Confidence: res.Confidence,
		Bounds:     c.Bounds,
		Label:      c.Label,
	}, true
}

// Close releases the Closer given in Options.
func (p *Pipeline) Close() error {
	if p.opts.Closer != nil {
		return p.opts.Closer.Close()
	}
	return nil
}

// Labels converts detections to annotation labels.
func Labels(detections []Detection) []annotate.Label {
	labels := make([]annotate.Label, len(detections))
	for i, d := range detections {
		labels[i] = annotate.Label{Text: d.Plate, Confidence: d.Confidence, Box: d.Bounds}
	}
	return labels
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, region image.Image) (ocr.Result, error)

// Recognize calls f(ctx, region).
func (f RecognizerFunc) Recognize(ctx context.Context, region image.Image) (ocr.Result, error) {
	return f(ctx, region)
}

// WithoutRecorder returns a copy of p that does not persist detections. The
// copy shares p's stages and Closer; close only one of them.
func (p *Pipeline) WithoutRecorder() *Pipeline {
	opts := p.opts
	opts.Recorder = nil
	return &Pipeline{opts: opts, log: p.log}
}
