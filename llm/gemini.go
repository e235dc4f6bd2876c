package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Completer with the Google Generative AI SDK.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini backend. model defaults to gemini-1.5-flash.
func NewGemini(ctx context.Context, apiKey, model string, temperature float64) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(float32(temperature))
	m.ResponseMIMEType = "application/json"

	return &Gemini{client: client, model: m}, nil
}

// Complete generates one reply. The system instruction is set per call, so a
// Gemini value must not be shared between goroutines.
func (p *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	p.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := p.model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderDown, err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyReply
	}
	return b.String(), nil
}

// Close releases the underlying client.
func (p *Gemini) Close() error {
	return p.client.Close()
}
