package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOptions configures a Tesseract engine.
type TesseractOptions struct {
	// Language is the Tesseract language code. Defaults to "eng".
	Language string

	// TessdataPrefix overrides the language data directory when set.
	TessdataPrefix string
}

// Tesseract is an Engine backed by one long-lived gosseract client.
//
// The client is not safe for concurrent use, so calls are serialized. Give each
// worker its own engine to recognize regions in parallel.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates and configures a client for single-line plate text.
func NewTesseract(opts TesseractOptions) (*Tesseract, error) {
	if opts.Language == "" {
		opts.Language = "eng"
	}

	client := gosseract.NewClient()
	if opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(opts.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := client.SetWhitelist(PlateChars); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}

	// Plates are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &Tesseract{client: client}, nil
}

// Tokens runs OCR on img and returns word-level tokens.
//
// The engine call itself cannot be interrupted. When ctx ends first, Tokens
// returns ctx.Err() and the pending call finishes in the background while
// holding the engine.
func (t *Tesseract) Tokens(ctx context.Context, img image.Image) ([]Token, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	type result struct {
		tokens []Token
		err    error
	}
	done := make(chan result, 1)
	go func() {
		tokens, err := t.run(buf.Bytes())
		done <- result{tokens, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.tokens, r.err
	}
}

func (t *Tesseract) run(data []byte) ([]Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
	}

	tokens := make([]Token, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		tokens = append(tokens, Token{Text: box.Word, Confidence: box.Confidence})
	}
	return tokens, nil
}

// Close releases the Tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

// Version returns the installed Tesseract version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

// Info describes OCR availability.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
	Backend   string `json:"backend"`
}

// GetInfo probes the engine with the given options.
func GetInfo(opts TesseractOptions) Info {
	engine, err := NewTesseract(opts)
	if err != nil {
		return Info{Available: false, Error: err.Error(), Backend: "gosseract"}
	}
	defer engine.Close()
	return Info{Available: true, Version: Version(), Backend: "gosseract"}
}
