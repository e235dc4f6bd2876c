package newsmood

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/pevans/newsmood/aggregate"
	"github.com/pevans/newsmood/config"
	"github.com/pevans/newsmood/discovery"
	"github.com/pevans/newsmood/llm"
	"github.com/pevans/newsmood/results"
	"github.com/pevans/newsmood/sentiment"
)

// BuildScorer creates a scorer with the collaborators the given methods
// need. The returned closers release backend clients.
func BuildScorer(ctx context.Context, cfg *config.Config, res *config.Resources, methods []sentiment.Method, logger *log.Logger) (*sentiment.Scorer, []io.Closer, error) {
	opts := []sentiment.Option{
		sentiment.WithLexicon(res.Lexicon),
		sentiment.WithKeywords(res.Positive, res.Negative),
		sentiment.WithLogger(logger),
	}
	var closers []io.Closer

	var completer llm.Completer
	needsCompleter := slices.Contains(methods, sentiment.MethodExternal) ||
		(slices.Contains(methods, sentiment.MethodSentence) && cfg.Classifier.URL == "")
	if needsCompleter {
		c, err := llm.New(ctx, cfg.LLMSettings())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		if closer, ok := c.(io.Closer); ok {
			closers = append(closers, closer)
		}
		completer = c
		opts = append(opts, sentiment.WithCompleter(completer))
	}

	if slices.Contains(methods, sentiment.MethodSentence) {
		if cfg.Classifier.URL != "" {
			client := &http.Client{Timeout: cfg.LLM.Timeout}
			opts = append(opts, sentiment.WithClassifier(sentiment.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Token, client)))
		} else {
			opts = append(opts, sentiment.WithClassifier(sentiment.NewLLMClassifier(completer)))
		}
	}

	scorer := sentiment.NewScorer(opts...)
	if err := scorer.Supports(methods); err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}
	return scorer, closers, nil
}

// Setup loads every resource named by cfg and assembles a Runner. Missing
// resources are fatal. The returned cleanup function closes the result store
// and backend clients.
func Setup(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Runner, func(), error) {
	if logger == nil {
		logger = log.Default()
	}

	res, err := config.LoadResources(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Printf("INFO: loaded %d context words, %d blacklist words, %d lexicon entries for %s",
		len(res.ContextWords), len(res.Blacklist), len(res.Lexicon), res.Profile.BaseURL)
	logger.Printf("INFO: context words: %s", strings.Join(res.ContextWords.Sorted(), ", "))

	methods, err := cfg.Methods()
	if err != nil {
		return nil, nil, err
	}

	scorer, closers, err := BuildScorer(ctx, cfg, res, methods, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := results.NewStore(cfg.Store.DSN)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}
	closers = append(closers, store)

	runner := NewRunner(RunnerConfig{
		Client:       discovery.NewClient(cfg.Crawl.Timeout),
		Profile:      res.Profile,
		ContextWords: res.ContextWords,
		Blacklist:    res.Blacklist,
		Scorer:       scorer,
		Store:        store,
		Grouping:     aggregate.Grouping(cfg.Scoring.Grouping),
		LogDir:       cfg.Log.Dir,
		Logger:       logger,
	})

	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Printf("WARN: cleanup: %v", err)
			}
		}
	}
	return runner, cleanup, nil
}

// Store returns the runner's result store.
func (rn *Runner) Store() *results.Store {
	return rn.store
}

// Grouping returns the aggregation grouping of the runner.
func (rn *Runner) Grouping() aggregate.Grouping {
	return rn.grouping
}
