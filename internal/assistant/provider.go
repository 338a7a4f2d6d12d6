package assistant

import (
	"context"
	"errors"
	"iter"
)

// Provider streams a completion for a prompt. The sequence is lazy and
// finite; it yields text fragments and stops after the first error.
// Iterating it again issues a new request.
type Provider interface {
	Name() string
	Stream(ctx context.Context, p Prompt) iter.Seq2[string, error]
}

// ProviderError is an error from an AI provider.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider error codes.
const (
	ErrCodeAPIKey        = "invalid_api_key"
	ErrCodeRateLimit     = "rate_limit_exceeded"
	ErrCodeServiceDown   = "service_unavailable"
	ErrCodeModelNotFound = "model_not_found"
	ErrCodeInvalidInput  = "invalid_input"
)

// DefaultErrorMessage is shown when a failure has no better description.
const DefaultErrorMessage = "Failed to get AI response. Please try again."

var codeMessages = map[string]string{
	ErrCodeAPIKey:        "The AI assistant is not configured with a valid Gemini API key.",
	ErrCodeRateLimit:     "Rate limit exceeded. Please wait a minute and try again.",
	ErrCodeServiceDown:   "The AI service is unavailable right now. Please try again later.",
	ErrCodeModelNotFound: "No configured Gemini model is available.",
	ErrCodeInvalidInput:  "The AI service could not process this request.",
}

// UserMessage turns a provider failure into text fit for the room.
func UserMessage(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "The AI request was cancelled."
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if msg, ok := codeMessages[pe.Code]; ok {
			return msg
		}
		if pe.Message != "" {
			return pe.Message
		}
	}
	return DefaultErrorMessage
}
