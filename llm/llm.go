// Package llm talks to text-generation services. The rest of newsmood only
// needs one capability from them: given a system instruction and a user
// text, return the raw reply.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

var (
	ErrNoAPIKey     = errors.New("llm: API key not configured")
	ErrProviderDown = errors.New("llm: provider unavailable")
	ErrEmptyReply   = errors.New("llm: empty reply")
)

// Completer returns the model's raw reply to a system instruction and a user
// text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// New creates the Completer named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, client)
	case ProviderOllama:
		return NewOllama(cfg.BaseURL, cfg.Model, client), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q (valid: openai, ollama, gemini)", cfg.Provider)
	}
}

func statusError(provider string, resp *http.Response) error {
	return fmt.Errorf("%w: %s returned status %d", ErrProviderDown, provider, resp.StatusCode)
}
