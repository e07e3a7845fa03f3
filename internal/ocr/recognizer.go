package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/ironsheep/visionguard/internal/config"
	"github.com/ironsheep/visionguard/internal/imaging"
)

// PlateChars is the character whitelist passed to the engine.
const PlateChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Token is one word-level engine output.
type Token struct {
	Text string `json:"text"`

	// Confidence is on a 0-100 scale. Negative means the engine reported none.
	Confidence float64 `json:"confidence"`
}

// Engine recognizes a single text line in a prepared binary image.
type Engine interface {
	Tokens(ctx context.Context, img image.Image) ([]Token, error)
}

// Result is the recognized text of one region.
type Result struct {
	// Text is the tokens concatenated, uppercased, with every non-alphanumeric
	// character removed.
	Text string `json:"text"`

	// Confidence is the mean token confidence on a 0-100 scale.
	Confidence float64 `json:"confidence"`

	// Bounds is the candidate rectangle in source image coordinates. A crop
	// does not know where it came from, so Recognize leaves it empty; the
	// pipeline reports the candidate rectangle on its Detection.
	Bounds image.Rectangle `json:"bounds"`
}

// Aggregate joins token texts and averages the available confidences.
func Aggregate(tokens []Token) Result {
	var sb strings.Builder
	sum, n := 0.0, 0
	for _, tok := range tokens {
		sb.WriteString(tok.Text)
		if tok.Confidence >= 0 {
			sum += tok.Confidence
			n++
		}
	}

	res := Result{Text: plateText(sb.String())}
	if n > 0 {
		res.Confidence = sum / float64(n)
	}
	return res
}

func plateText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
}

// Recognizer runs preprocessing and the engine for one region at a time. It is
// safe for concurrent use when its Engine is.
type Recognizer struct {
	engine Engine
	cfg    config.Processing
	log    zerolog.Logger
}

// NewRecognizer creates a recognizer over engine using the adaptive threshold
// settings in cfg.
func NewRecognizer(engine Engine, cfg config.Processing, log zerolog.Logger) *Recognizer {
	cfg.AdaptiveBlock = max(config.OddKernel(cfg.AdaptiveBlock), 3)
	return &Recognizer{engine: engine, cfg: cfg, log: log}
}

// Preprocess returns the binary image handed to the engine.
func (r *Recognizer) Preprocess(region image.Image) *image.Gray {
	gray := imaging.Gray(region)
	up := imaging.Upscale2x(gray)
	return imaging.AdaptiveThreshold(up, r.cfg.AdaptiveBlock, r.cfg.AdaptiveC)
}

// Recognize reads the text in region. An empty Text is a valid result.
func (r *Recognizer) Recognize(ctx context.Context, region image.Image) (Result, error) {
	if region == nil || region.Bounds().Empty() {
		return Result{}, nil
	}

	tokens, err := r.engine.Tokens(ctx, r.Preprocess(region))
	if err != nil {
		return Result{}, fmt.Errorf("OCR failed: %w", err)
	}

	res := Aggregate(tokens)
	r.log.Debug().
		Int("tokens", len(tokens)).
		Str("text", res.Text).
		Float64("conf", res.Confidence).
		Msg("region recognized")
	return res, nil
}
