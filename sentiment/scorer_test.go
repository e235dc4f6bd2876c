package sentiment

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pevans/newsmood/discovery"
	"github.com/pevans/newsmood/lexicon"
	"github.com/pevans/newsmood/wordlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCompleter returns canned replies keyed by a substring of the user text.
type stubCompleter struct {
	replies map[string]string
	err     error
	calls   int
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.calls++
	if system != Instruction {
		return "", errors.New("unexpected system prompt")
	}
	if s.err != nil {
		return "", s.err
	}
	for key, reply := range s.replies {
		if strings.Contains(user, key) {
			return reply, nil
		}
	}
	return `{"positive":0,"negative":0,"neutral":1}`, nil
}

// stubClassifier maps sentences containing a key to a fixed distribution.
type stubClassifier map[string]Distribution

func (s stubClassifier) Predict(_ context.Context, text string) (Distribution, error) {
	for key, d := range s {
		if strings.Contains(text, key) {
			return d, nil
		}
	}
	return Distribution{}, errors.New("classifier unavailable")
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

// TestLexicon_SumsTokenScores verifies the documented example body
func TestLexicon_SumsTokenScores(t *testing.T) {
	s := NewScorer(WithLexicon(lexicon.Lexicon{"innovativ": 0.9, "effizient": 0.8}))

	r := s.Lexicon("Das Auto ist sehr innovativ und effizient")

	assert.InDelta(t, 1.7, r.Score, 1e-9)
	assert.Equal(t, Positive, r.Label)
	assert.Equal(t, MethodLexicon, r.Method)
	assert.InDelta(t, 1.0, r.Distribution.Positive, 1e-9)
}

// TestLexicon_Labels verifies negative and neutral sums
func TestLexicon_Labels(t *testing.T) {
	s := NewScorer(WithLexicon(lexicon.Lexicon{"gut": 0.5, "mängel": -0.7}))

	r := s.Lexicon("Gut, aber MÄNGEL.")
	assert.InDelta(t, -0.2, r.Score, 1e-9)
	assert.Equal(t, Negative, r.Label)
	assert.InDelta(t, 0.5/1.2, r.Distribution.Positive, 1e-9)
	assert.InDelta(t, 0.7/1.2, r.Distribution.Negative, 1e-9)

	r = s.Lexicon("Nichts Bekanntes hier")
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, Neutral, r.Label)
	assert.Equal(t, NeutralDistribution(), r.Distribution)
}

// TestKeyword_CountsSubstrings verifies keyword counting
func TestKeyword_CountsSubstrings(t *testing.T) {
	s := NewScorer(WithKeywords(wordlist.New("erfolg", "gut"), wordlist.New("krise")))

	r := s.Keyword("Erfolgreich und gut, trotz Krise. Guter Start.")

	assert.Equal(t, 2.0, r.Score, "erfolg + gut + gut - krise")
	assert.Equal(t, Positive, r.Label)
	assert.InDelta(t, 0.75, r.Distribution.Positive, 1e-9)
	assert.InDelta(t, 0.25, r.Distribution.Negative, 1e-9)
}

// TestExternal_ParsesDistribution verifies the external method label
func TestExternal_ParsesDistribution(t *testing.T) {
	completer := &stubCompleter{replies: map[string]string{
		"Rekord": "```json\n{\"positive\": 0.6, \"negative\": 0.3, \"neutral\": 0.1}\n```",
	}}
	s := NewScorer(WithCompleter(completer))

	r := s.External(context.Background(), "Rekordabsatz im März")

	assert.Equal(t, Positive, r.Label)
	assert.InDelta(t, 0.6, r.Distribution.Positive, 1e-9)
	assert.InDelta(t, 0.3, r.Score, 1e-9)
	assert.Empty(t, r.Error)
}

// TestScore_ExternalFailureDoesNotAbort verifies a failing article degrades to
// neutral and the next article is still scored
func TestScore_ExternalFailureDoesNotAbort(t *testing.T) {
	completer := &stubCompleter{replies: map[string]string{
		"kaputt": "not json at all",
		"Rekord": `{"positive":0.9,"negative":0.05,"neutral":0.05}`,
	}}
	s := NewScorer(WithCompleter(completer), WithLogger(quietLogger()))
	methods := []Method{MethodExternal}

	first := s.Score(context.Background(), discovery.Article{URL: "u1", Body: "kaputt"}, methods)
	second := s.Score(context.Background(), discovery.Article{URL: "u2", Body: "Rekord"}, methods)

	require.Len(t, first, 1)
	assert.Equal(t, NeutralDistribution(), first[0].Distribution)
	assert.Equal(t, Neutral, first[0].Label)
	assert.Contains(t, first[0].Error, ErrMalformedResponse.Error())
	assert.Equal(t, "u1", first[0].URL)

	require.Len(t, second, 1)
	assert.Equal(t, Positive, second[0].Label)
	assert.Equal(t, 2, completer.calls)
}

// TestScore_TransportFailure verifies network failures degrade to neutral
func TestScore_TransportFailure(t *testing.T) {
	s := NewScorer(WithCompleter(&stubCompleter{err: errors.New("connection refused")}), WithLogger(quietLogger()))

	r := s.External(context.Background(), "text")

	assert.Equal(t, NeutralDistribution(), r.Distribution)
	assert.Contains(t, r.Error, "connection refused")
}

// TestScore_SideBySide verifies every selected method yields its own result
func TestScore_SideBySide(t *testing.T) {
	s := NewScorer(
		WithLexicon(lexicon.Lexicon{"innovativ": 0.9}),
		WithKeywords(wordlist.New("innovativ"), wordlist.New("teuer")),
		WithCompleter(&stubCompleter{}),
		WithLogger(quietLogger()),
	)
	methods := []Method{MethodLexicon, MethodKeyword, MethodExternal}

	results := s.Score(context.Background(), discovery.Article{URL: "u", Body: "innovativ"}, methods)

	require.Len(t, results, 3)
	assert.Equal(t, MethodLexicon, results[0].Method)
	assert.Equal(t, MethodKeyword, results[1].Method)
	assert.Equal(t, MethodExternal, results[2].Method)
	assert.Equal(t, Neutral, results[2].Label)
}

// TestSentences_SumsAndNormalizes verifies sentence aggregation
func TestSentences_SumsAndNormalizes(t *testing.T) {
	classifier := stubClassifier{
		"schnell": {Positive: 0.8, Negative: 0.1, Neutral: 0.1},
		"teuer":   {Positive: 0.1, Negative: 0.7, Neutral: 0.2},
	}
	s := NewScorer(WithClassifier(classifier))

	r := s.Sentences(context.Background(), "Das Auto ist schnell. Leider teuer! Sonst nichts?")

	assert.Equal(t, Positive, r.Label)
	assert.InDelta(t, 0.9/2.0, r.Distribution.Positive, 1e-9)
	assert.InDelta(t, 0.8/2.0, r.Distribution.Negative, 1e-9)
	assert.InDelta(t, 1.0, r.Distribution.Total(), 1e-9)
	assert.Contains(t, r.Error, "1 of 3 sentences failed")
}

// TestSentences_NoSentences verifies the neutral fallback
func TestSentences_NoSentences(t *testing.T) {
	s := NewScorer(WithClassifier(stubClassifier{}))

	r := s.Sentences(context.Background(), "   ")

	assert.Equal(t, NeutralDistribution(), r.Distribution)
	assert.Equal(t, Neutral, r.Label)
	assert.Empty(t, r.Error)
}

// TestSupports verifies missing collaborators are reported
func TestSupports(t *testing.T) {
	s := NewScorer(WithLexicon(lexicon.Lexicon{"gut": 1}))

	assert.NoError(t, s.Supports([]Method{MethodLexicon}))
	assert.ErrorIs(t, s.Supports([]Method{MethodLexicon, MethodSentence}), ErrNotConfigured)
	assert.ErrorIs(t, s.Supports([]Method{MethodKeyword}), ErrNotConfigured)

	r := s.External(context.Background(), "x")
	assert.Equal(t, ErrNotConfigured.Error(), r.Error)
}

// TestParseMethods verifies method name parsing
func TestParseMethods(t *testing.T) {
	methods, err := ParseMethods([]string{"Lexicon", " external", "lexicon"})
	require.NoError(t, err)
	assert.Equal(t, []Method{MethodLexicon, MethodExternal}, methods)

	_, err = ParseMethods([]string{"vibes"})
	assert.Error(t, err)

	_, err = ParseMethods(nil)
	assert.Error(t, err)
}

// TestSplitSentences verifies sentence boundaries
func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Erster Satz. Zweiter Satz! Version 2.0 ist da?\nNeue Zeile ohne Punkt")

	assert.Equal(t, []string{
		"Erster Satz.",
		"Zweiter Satz!",
		"Version 2.0 ist da?",
		"Neue Zeile ohne Punkt",
	}, got)
}

// TestTokenize verifies lowercase word tokens including umlauts
func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"größer", "schöner", "e", "auto", "2024"}, Tokenize("Größer, schöner: E-Auto 2024!"))
}

// TestHTTPClassifier_Predict verifies both payload shapes
func TestHTTPClassifier_Predict(t *testing.T) {
	payload := `[[{"label":"positive","score":0.7},{"label":"negative","score":0.2},{"label":"neutral","score":0.1}]]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		if strings.Contains(r.URL.Path, "flat") {
			w.Write([]byte(`[{"label":"NEGATIVE","score":0.9},{"label":"NEUTRAL","score":0.1}]`))
			return
		}
		w.Write([]byte(payload))
	}))
	defer server.Close()

	d, err := NewHTTPClassifier(server.URL+"/nested", "hf-token", server.Client()).Predict(context.Background(), "Satz")
	require.NoError(t, err)
	assert.Equal(t, Positive, d.Dominant())
	assert.InDelta(t, 0.7, d.Positive, 1e-9)

	d, err = NewHTTPClassifier(server.URL+"/flat", "hf-token", server.Client()).Predict(context.Background(), "Satz")
	require.NoError(t, err)
	assert.Equal(t, Negative, d.Dominant())
}

// TestParseReply verifies malformed replies are rejected
func TestParseReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		ok    bool
	}{
		{"plain json", `{"positive":0.2,"negative":0.2,"neutral":0.6}`, true},
		{"prose around json", `Sure! {"Positive": 1, "Negative": 1, "Neutral": 2} done`, true},
		{"brace in trailing prose", `{"positive":0.7,"negative":0.1,"neutral":0.2} (scale {0..1})`, true},
		{"no json", `positive`, false},
		{"broken json", `{"positive": }`, false},
		{"negative value", `{"positive":-1,"negative":0.5,"neutral":0.5}`, false},
		{"all zero", `{"positive":0,"negative":0,"neutral":0}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseReply(tt.reply)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 1.0, d.Total(), 1e-9)
		})
	}
}

// TestDistribution_Dominant verifies tie-breaking order
func TestDistribution_Dominant(t *testing.T) {
	assert.Equal(t, Positive, Distribution{Positive: 0.4, Negative: 0.4, Neutral: 0.2}.Dominant())
	assert.Equal(t, Negative, Distribution{Positive: 0.2, Negative: 0.4, Neutral: 0.4}.Dominant())
	assert.Equal(t, Positive, Distribution{}.Dominant())
	assert.Equal(t, Neutral, NeutralDistribution().Dominant())
}
