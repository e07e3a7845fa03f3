// Package normalize cleans raw OCR text into a canonical plate string.
//
// The local step (uppercase, keep letters and digits) always runs. When a
// Generator is configured, the raw text is also sent to a generative model and
// its answer passed through the same filter; any failure, timeout, or empty
// answer falls back to the local result. Clean never returns an error.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a remote cleanup call when Options.Timeout is zero.
const DefaultTimeout = 8 * time.Second

// ErrEmptyResponse is reported by Remote when the model answer contains no
// letters or digits.
var ErrEmptyResponse = errors.New("empty cleanup response")

// Generator returns a plain-text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f(ctx, prompt).
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Cleanup is the outcome of one remote cleanup attempt. Exactly one of Text
// and Err is set.
type Cleanup struct {
	Text string
	Err  error
}

// OK reports whether the attempt produced usable text.
func (c Cleanup) OK() bool {
	return c.Err == nil && c.Text != ""
}

// Options configures a Normalizer.
type Options struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Normalizer applies local and optional remote cleanup. It is safe for
// concurrent use when its Generator is.
type Normalizer struct {
	gen     Generator
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a normalizer. A nil gen disables remote cleanup.
func New(gen Generator, opts Options) *Normalizer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Normalizer{gen: gen, timeout: opts.Timeout, log: opts.Logger}
}

// Local uppercases s and drops everything that is not a letter or digit.
func Local(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
}

// Prompt builds the instruction sent to the model.
func Prompt(raw string) string {
	return "Given noisy OCR output of a vehicle license plate, return only the most " +
		"likely cleaned plate text, uppercase alphanumeric, no spaces, no punctuation. " +
		fmt.Sprintf("OCR: %q", raw)
}

// RemoteEnabled reports whether a Generator is configured.
func (n *Normalizer) RemoteEnabled() bool {
	return n.gen != nil
}

// Clean returns the cleaned plate text for raw. Text with no letters or digits
// yields "" without consulting the model.
func (n *Normalizer) Clean(ctx context.Context, raw string) string {
	base := Local(raw)
	if n.gen == nil || base == "" {
		return base
	}

	c := n.Remote(ctx, raw)
	if !c.OK() {
		n.log.Debug().Err(c.Err).Str("raw", raw).Msg("remote cleanup fell back to local")
		return base
	}
	return c.Text
}

// Remote runs one bounded cleanup call.
func (n *Normalizer) Remote(ctx context.Context, raw string) Cleanup {
	if n.gen == nil {
		return Cleanup{Err: errors.New("remote cleanup disabled")}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		text, err := n.gen.Generate(ctx, Prompt(raw))
		done <- answer{text, err}
	}()

	select {
	case <-ctx.Done():
		return Cleanup{Err: fmt.Errorf("remote cleanup: %w", ctx.Err())}
	case a := <-done:
		if a.err != nil {
			return Cleanup{Err: fmt.Errorf("remote cleanup: %w", a.err)}
		}
		text := Local(strings.TrimSpace(a.text))
		if text == "" {
			return Cleanup{Err: ErrEmptyResponse}
		}
		return Cleanup{Text: text}
	}
}
