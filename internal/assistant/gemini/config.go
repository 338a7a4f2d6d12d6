package gemini

import "net/http"

// DefaultModels are tried in order, fastest first.
var DefaultModels = []string{
	"gemini-2.0-flash-lite-001",
	"gemini-2.0-flash-lite",
	"gemini-2.5-flash-lite",
	"gemini-flash-lite-latest",
	"gemini-2.0-flash",
	"gemini-2.5-flash",
	"gemini-flash-latest",
}

// Config holds Gemini-specific configuration.
type Config struct {
	// APIKey may be empty; every request then fails with invalid_api_key.
	APIKey string

	// Models are tried in order until one starts answering.
	Models []string

	// BaseURL and APIVersion override the public endpoint.
	BaseURL    string
	APIVersion string

	HTTPClient *http.Client

	Temperature float32
	TopP        float32
	TopK        float32

	// MaxOutputTokens caps the length of an answer.
	MaxOutputTokens int32
}

func (c Config) withDefaults() Config {
	if len(c.Models) == 0 {
		c.Models = DefaultModels
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.TopP == 0 {
		c.TopP = 0.9
	}
	if c.TopK == 0 {
		c.TopK = 40
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 800
	}
	return c
}
