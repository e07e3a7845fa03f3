package normalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/ironsheep/visionguard/internal/config"
)

// ErrNoCredentials is returned when remote cleanup is enabled without an API
// key.
var ErrNoCredentials = errors.New("GEMINI_API_KEY not set")

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a client for cfg.Model using cfg.APIKey.
func NewGemini(ctx context.Context, cfg config.Gemini) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredentials
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

// Generate sends prompt as a single user turn and returns the response text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// FromConfig builds a Normalizer for cfg. Remote cleanup is enabled only when
// cfg.Enable is set and a client can be created; otherwise the result is local
// only and the reason is logged.
func FromConfig(ctx context.Context, cfg config.Gemini, log zerolog.Logger) *Normalizer {
	opts := Options{Timeout: cfg.Timeout, Logger: log}
	if !cfg.Enable {
		return New(nil, opts)
	}

	gen, err := NewGemini(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("remote cleanup disabled")
		return New(nil, opts)
	}
	log.Info().Str("model", cfg.Model).Msg("remote cleanup enabled")
	return New(gen, opts)
}
