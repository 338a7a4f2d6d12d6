// Package gemini streams completions from Google Gemini.
package gemini

import (
	"context"
	"iter"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/collab-hub/relay/internal/assistant"
)

const providerName = "gemini"

// Client is a Gemini provider.
type Client struct {
	client *genai.Client
	cfg    Config
	log    zerolog.Logger
}

// NewClient creates a Gemini provider. Without an API key the client is still
// usable but every stream fails.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg: cfg,
		log: log.With().Str("module", "gemini").Logger(),
	}
	if cfg.APIKey == "" {
		c.log.Warn().Msg("GEMINI_API_KEY not set, AI requests will fail")
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, &assistant.ProviderError{
			Provider: providerName,
			Code:     assistant.ErrCodeAPIKey,
			Message:  "Failed to create Gemini client",
			Err:      err,
		}
	}
	c.client = client
	return c, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// Stream streams the answer to p. A model that is missing or rate limited
// before it yields anything is skipped for the next one.
func (c *Client) Stream(ctx context.Context, p assistant.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if c.client == nil {
			yield("", &assistant.ProviderError{
				Provider: providerName,
				Code:     assistant.ErrCodeAPIKey,
				Message:  "GEMINI_API_KEY is not configured",
			})
			return
		}

		config := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
			Temperature:       genai.Ptr(c.cfg.Temperature),
			TopP:              genai.Ptr(c.cfg.TopP),
			TopK:              genai.Ptr(c.cfg.TopK),
			MaxOutputTokens:   c.cfg.MaxOutputTokens,
		}

		var lastErr error
	models:
		for _, model := range c.cfg.Models {
			started := false
			for resp, err := range c.client.Models.GenerateContentStream(ctx, model, genai.Text(p.User), config) {
				if err != nil {
					pe := wrapError(model, err)
					if !started && retryable(pe) && ctx.Err() == nil {
						c.log.Debug().Str("model", model).Str("code", pe.Code).Msg("trying next model")
						lastErr = pe
						continue models
					}
					yield("", pe)
					return
				}
				if resp == nil {
					continue
				}
				text := resp.Text()
				if text == "" {
					continue
				}
				started = true
				if !yield(text, nil) {
					return
				}
			}
			return
		}

		if lastErr == nil {
			lastErr = &assistant.ProviderError{
				Provider: providerName,
				Code:     assistant.ErrCodeModelNotFound,
				Message:  "no models configured",
			}
		}
		yield("", lastErr)
	}
}

func retryable(pe *assistant.ProviderError) bool {
	return pe.Code == assistant.ErrCodeModelNotFound || pe.Code == assistant.ErrCodeRateLimit
}

// wrapError classifies err by its text. The API reports the HTTP status and
// RPC status in the message.
func wrapError(model string, err error) *assistant.ProviderError {
	msg := strings.ToLower(err.Error())
	code := assistant.ErrCodeServiceDown
	switch {
	case containsAny(msg, "429", "quota", "rate limit", "resource_exhausted"):
		code = assistant.ErrCodeRateLimit
	case containsAny(msg, "401", "403", "unauthorized", "api key", "api_key", "permission_denied"):
		code = assistant.ErrCodeAPIKey
	case containsAny(msg, "404", "not found", "not supported"):
		code = assistant.ErrCodeModelNotFound
	case containsAny(msg, "400", "invalid_argument"):
		code = assistant.ErrCodeInvalidInput
	}
	return &assistant.ProviderError{
		Provider: providerName,
		Code:     code,
		Message:  "model " + model + " failed",
		Err:      err,
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
