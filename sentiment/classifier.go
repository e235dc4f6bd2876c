package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pevans/newsmood/llm"
)

// ErrMalformedResponse is returned when a model reply cannot be read as a
// probability distribution.
var ErrMalformedResponse = errors.New("malformed model response")

// Classifier predicts a probability distribution for a piece of text.
type Classifier interface {
	Predict(ctx context.Context, text string) (Distribution, error)
}

// Instruction is the fixed system prompt sent to text-generation services.
const Instruction = `You are a sentiment classifier for news articles.
Rate the overall sentiment of the text the user sends.
Respond with ONLY a JSON object of three probabilities that sum to 1, exactly like this:
{"positive": 0.0, "negative": 0.0, "neutral": 0.0}`

// maxPromptRunes bounds the text sent to a text-generation service.
const maxPromptRunes = 8000

// LLMClassifier classifies text with a text-generation service.
type LLMClassifier struct {
	completer llm.Completer
}

// NewLLMClassifier wraps completer as a Classifier.
func NewLLMClassifier(completer llm.Completer) *LLMClassifier {
	return &LLMClassifier{completer: completer}
}

// Predict asks the model for a distribution and parses its reply.
func (c *LLMClassifier) Predict(ctx context.Context, text string) (Distribution, error) {
	if runes := []rune(text); len(runes) > maxPromptRunes {
		text = string(runes[:maxPromptRunes])
	}

	reply, err := c.completer.Complete(ctx, Instruction, text)
	if err != nil {
		return Distribution{}, err
	}
	return ParseReply(reply)
}

// ParseReply reads a JSON distribution out of a model reply. Surrounding prose
// and code fences are ignored. The result is normalized.
func ParseReply(reply string) (Distribution, error) {
	start := strings.Index(reply, "{")
	if start < 0 {
		return Distribution{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(reply, 80))
	}

	var d Distribution
	if err := json.NewDecoder(strings.NewReader(reply[start:])).Decode(&d); err != nil {
		return Distribution{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := d.Validate(); err != nil {
		return Distribution{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return d.Normalize(), nil
}

// HTTPClassifier calls a text-classification inference endpoint that accepts
// {"inputs": text} and answers with label/score pairs, such as a Hugging Face
// inference server running a German news sentiment model.
type HTTPClassifier struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPClassifier creates a classifier for the endpoint at url. token is
// sent as a bearer token when set.
func NewHTTPClassifier(url, token string, client *http.Client) *HTTPClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClassifier{url: url, token: token, client: client}
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Predict posts text to the endpoint.
func (c *HTTPClassifier) Predict(ctx context.Context, text string) (Distribution, error) {
	data, err := json.Marshal(map[string]any{
		"inputs":  text,
		"options": map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return Distribution{}, fmt.Errorf("classifier: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return Distribution{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Distribution{}, fmt.Errorf("classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Distribution{}, fmt.Errorf("classifier: status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Distribution{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return parseLabelScores(raw)
}

// parseLabelScores accepts both [{label,score}] and [[{label,score}]].
func parseLabelScores(raw json.RawMessage) (Distribution, error) {
	var pairs []labelScore
	if err := json.Unmarshal(raw, &pairs); err != nil {
		var nested [][]labelScore
		if err := json.Unmarshal(raw, &nested); err != nil || len(nested) == 0 {
			return Distribution{}, fmt.Errorf("%w: unexpected classifier payload", ErrMalformedResponse)
		}
		pairs = nested[0]
	}

	var d Distribution
	for _, p := range pairs {
		label := strings.ToLower(p.Label)
		switch {
		case strings.HasPrefix(label, "pos"):
			d.Positive += p.Score
		case strings.HasPrefix(label, "neg"):
			d.Negative += p.Score
		case strings.HasPrefix(label, "neu"):
			d.Neutral += p.Score
		}
	}
	if err := d.Validate(); err != nil {
		return Distribution{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return d.Normalize(), nil
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return s
}
