// Package sentiment scores article bodies. Four methods are available and
// any subset can run side by side on the same article:
//
//   - keyword: counts positive and negative keywords in the text
//   - lexicon: sums per-word polarity scores from a lexicon
//   - external: asks a text-generation service for a distribution
//   - sentence: classifies each sentence and sums the distributions
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"

	"github.com/pevans/newsmood/discovery"
	"github.com/pevans/newsmood/lexicon"
	"github.com/pevans/newsmood/llm"
	"github.com/pevans/newsmood/wordlist"
)

// Method names a scoring method.
type Method string

const (
	MethodKeyword  Method = "keyword"
	MethodLexicon  Method = "lexicon"
	MethodExternal Method = "external"
	MethodSentence Method = "sentence"
)

// ErrNotConfigured is returned when a method's collaborator is missing.
var ErrNotConfigured = errors.New("scoring method not configured")

// ParseMethods converts method names, rejecting unknown ones and duplicates.
func ParseMethods(names []string) ([]Method, error) {
	seen := map[Method]bool{}
	var methods []Method
	for _, name := range names {
		m := Method(strings.ToLower(strings.TrimSpace(name)))
		switch m {
		case MethodKeyword, MethodLexicon, MethodExternal, MethodSentence:
		default:
			return nil, fmt.Errorf("unknown scoring method %q", name)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		return nil, errors.New("no scoring method selected")
	}
	return methods, nil
}

// Result is the outcome of one method on one article.
type Result struct {
	URL          string       `json:"url"`
	Method       Method       `json:"method"`
	Label        Label        `json:"label"`
	Score        float64      `json:"score"`
	Distribution Distribution `json:"distribution"`
	Error        string       `json:"error,omitempty"`
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Scorer runs the scoring methods.
type Scorer struct {
	lexicon    lexicon.Lexicon
	positive   wordlist.Set
	negative   wordlist.Set
	external   Classifier
	classifier Classifier
	logger     *log.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithLexicon enables the lexicon method.
func WithLexicon(lex lexicon.Lexicon) Option {
	return func(s *Scorer) { s.lexicon = lex }
}

// WithKeywords enables the keyword method.
func WithKeywords(positive, negative wordlist.Set) Option {
	return func(s *Scorer) {
		s.positive = positive
		s.negative = negative
	}
}

// WithCompleter enables the external method.
func WithCompleter(c llm.Completer) Option {
	return func(s *Scorer) { s.external = NewLLMClassifier(c) }
}

// WithClassifier enables the sentence method.
func WithClassifier(c Classifier) Option {
	return func(s *Scorer) { s.classifier = c }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(l *log.Logger) Option {
	return func(s *Scorer) { s.logger = l }
}

// NewScorer creates a scorer. Methods whose collaborator is not supplied
// report ErrNotConfigured from Supports.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supports checks that every method has what it needs.
func (s *Scorer) Supports(methods []Method) error {
	for _, m := range methods {
		var ok bool
		switch m {
		case MethodKeyword:
			ok = len(s.positive) > 0 || len(s.negative) > 0
		case MethodLexicon:
			ok = len(s.lexicon) > 0
		case MethodExternal:
			ok = s.external != nil
		case MethodSentence:
			ok = s.classifier != nil
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotConfigured, m)
		}
	}
	return nil
}

// Score runs every method on the article and returns one result per method,
// in the order given. Failures never abort: a failing method yields a neutral
// result carrying the error.
func (s *Scorer) Score(ctx context.Context, article discovery.Article, methods []Method) []Result {
	results := make([]Result, 0, len(methods))
	for _, m := range methods {
		var r Result
		switch m {
		case MethodKeyword:
			r = s.Keyword(article.Body)
		case MethodLexicon:
			r = s.Lexicon(article.Body)
		case MethodExternal:
			r = s.External(ctx, article.Body)
		case MethodSentence:
			r = s.Sentences(ctx, article.Body)
		default:
			r = neutralResult(m, fmt.Errorf("unknown scoring method %q", m))
		}
		r.URL = article.URL
		if r.Error != "" {
			s.logger.Printf("WARN: %s scoring of %s: %s", m, article.URL, r.Error)
		}
		results = append(results, r)
	}
	return results
}

// Keyword counts occurrences of positive and negative keywords in text.
func (s *Scorer) Keyword(text string) Result {
	lower := strings.ToLower(text)

	var d Distribution
	for term := range s.positive {
		d.Positive += float64(strings.Count(lower, term))
	}
	for term := range s.negative {
		d.Negative += float64(strings.Count(lower, term))
	}

	score := d.Positive - d.Negative
	return Result{
		Method:       MethodKeyword,
		Label:        labelForScore(score),
		Score:        score,
		Distribution: d.Normalize(),
	}
}

// Lexicon sums the lexicon scores of every word in text. The label follows
// the sign of the sum; the distribution splits positive and negative mass.
func (s *Scorer) Lexicon(text string) Result {
	var sum float64
	var d Distribution
	for _, token := range Tokenize(text) {
		v := s.lexicon.Score(token)
		sum += v
		switch {
		case v > 0:
			d.Positive += v
		case v < 0:
			d.Negative -= v
		}
	}

	return Result{
		Method:       MethodLexicon,
		Label:        labelForScore(sum),
		Score:        sum,
		Distribution: d.Normalize(),
	}
}

// External classifies the whole text with the text-generation service.
func (s *Scorer) External(ctx context.Context, text string) Result {
	if s.external == nil {
		return neutralResult(MethodExternal, ErrNotConfigured)
	}

	d, err := s.external.Predict(ctx, text)
	if err != nil {
		return neutralResult(MethodExternal, err)
	}
	return Result{
		Method:       MethodExternal,
		Label:        d.Dominant(),
		Score:        d.Positive - d.Negative,
		Distribution: d,
	}
}

// Sentences classifies each sentence, sums the distributions and normalizes
// the sum. Sentences the classifier fails on contribute nothing.
func (s *Scorer) Sentences(ctx context.Context, text string) Result {
	if s.classifier == nil {
		return neutralResult(MethodSentence, ErrNotConfigured)
	}

	var sum Distribution
	var failures int
	var lastErr error
	sentences := SplitSentences(text)
	for _, sentence := range sentences {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		d, err := s.classifier.Predict(ctx, sentence)
		if err != nil {
			failures++
			lastErr = err
			continue
		}
		sum = sum.Add(d)
	}

	d := sum.Normalize()
	r := Result{
		Method:       MethodSentence,
		Label:        d.Dominant(),
		Score:        d.Positive - d.Negative,
		Distribution: d,
	}
	if lastErr != nil {
		r.Error = fmt.Sprintf("%d of %d sentences failed: %v", failures, len(sentences), lastErr)
	}
	return r
}

func neutralResult(m Method, err error) Result {
	return Result{
		Method:       m,
		Label:        Neutral,
		Distribution: NeutralDistribution(),
		Error:        err.Error(),
	}
}

// Tokenize splits text into lowercase word-like tokens.
func Tokenize(text string) []string {
	tokens := wordPattern.FindAllString(text, -1)
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return tokens
}

// SplitSentences splits text after ".", "!" or "?" followed by whitespace,
// and at line breaks. Empty sentences are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			flush()
		}
	}
	flush()
	return sentences
}
