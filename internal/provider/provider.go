package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	NameTogether = "together"
	NameArk      = "ark"
	NameGemini   = "gemini"

	defaultTimeout = 60 * time.Second
)

var ErrUnknownProvider = fmt.Errorf("unknown provider")

type Config struct {
	Name string `mapstructure:"name"`

	// APIKey is the server default, used when the caller brings no key.
	APIKey string `mapstructure:"apiKey"`

	BaseURL string `mapstructure:"baseURL"`

	HeliconeAPIKey string `mapstructure:"heliconeAPIKey"`

	Timeout time.Duration `mapstructure:"timeout"`
}

type Request struct {
	Prompt string

	Model string

	Width int

	Height int

	Steps int

	// nil lets the provider pick a random seed
	Seed *int64

	APIKey string

	// BYOK marks keys supplied by the caller
	BYOK bool
}

type Image struct {
	Index int

	B64JSON string

	// Inference is in seconds, zero when the provider does not report it.
	Inference float64
}

type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Image, error)
}

// APIError carries the provider's own message so it can be shown to the caller as is.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Name) {
	case "", NameTogether:
		return NewTogether(cfg), nil
	case NameArk:
		return NewArk(cfg), nil
	case NameGemini:
		return NewGemini(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Name)
	}
}

// DefaultModel is used when generation.model is not configured.
func DefaultModel(name string) string {
	switch strings.ToLower(name) {
	case NameArk:
		return "doubao-seedream-3-0-t2i-250415"
	case NameGemini:
		return "imagen-4.0-generate-001"
	default:
		return "black-forest-labs/FLUX.1-schnell"
	}
}

// ErrorMessage pulls a human readable message out of an error body.
func ErrorMessage(statusCode int, body []byte) string {
	for _, path := range []string{"error.message", "message", "error"} {
		if result := gjson.GetBytes(body, path); result.Type == gjson.String && result.String() != "" {
			return result.String()
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !gjson.ValidBytes(body) {
		return text
	}
	return fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
}

func timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultTimeout
	}
	return timeout
}
