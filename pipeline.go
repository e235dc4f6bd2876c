package newsmood

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pevans/newsmood/aggregate"
	"github.com/pevans/newsmood/discovery"
	"github.com/pevans/newsmood/results"
	"github.com/pevans/newsmood/runlog"
	"github.com/pevans/newsmood/scraper"
	"github.com/pevans/newsmood/sentiment"
	"github.com/pevans/newsmood/wordlist"
)

// ErrRunInProgress is returned by Start while another run is in flight.
var ErrRunInProgress = errors.New("a run is already in progress")

// eventBuffer is the capacity of a run's event channel.
const eventBuffer = 64

// Share of the progress bar spent on discovery; fetching and scoring take the
// rest.
const discoveryShare = 40

// EventKind discriminates events.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
	EventResult   EventKind = "result"
)

// Event is a message to the presentation layer.
type Event struct {
	Kind    EventKind `json:"kind"`
	RunID   uuid.UUID `json:"run_id"`
	Percent int       `json:"percent,omitempty"`
	Text    string    `json:"text"`
}

// RunRequest parameterizes one run.
type RunRequest struct {
	Start       time.Time
	End         time.Time
	MaxArticles int
	MaxPages    int
	Methods     []sentiment.Method
}

// Validate checks the request before any resources are used.
func (r RunRequest) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("start and end dates are required")
	}
	if r.End.Before(r.Start) {
		return errors.New("end date is before start date")
	}
	if r.MaxArticles < 1 || r.MaxPages < 1 {
		return errors.New("max articles and max pages must be at least 1")
	}
	if len(r.Methods) == 0 {
		return errors.New("no scoring method selected")
	}
	return nil
}

// Summary is the outcome of a finished run.
type Summary struct {
	RunID      uuid.UUID          `json:"run_id"`
	State      discovery.State    `json:"state"`
	Reason     string             `json:"reason"`
	Discovered int                `json:"discovered"`
	Scored     int                `json:"scored"`
	Periods    []aggregate.Period `json:"periods"`
	LogPath    string             `json:"log_path,omitempty"`
	Err        error              `json:"-"`
}

// Run is a run in flight.
type Run struct {
	ID      uuid.UUID
	Request RunRequest

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	sum    *Summary
}

// Events returns the event channel. It is closed when the run ends.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Done is closed when the run ends.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel asks the run to stop after the current page or article.
func (r *Run) Cancel() {
	r.cancel()
}

// Summary returns the outcome, or nil while the run is in flight.
func (r *Run) Summary() *Summary {
	select {
	case <-r.done:
		return r.sum
	default:
		return nil
	}
}

// Runner executes runs one at a time: discovery, fetching, scoring and
// aggregation, in a single background goroutine per run.
type Runner struct {
	client       *discovery.Client
	profile      *scraper.SiteProfile
	contextWords wordlist.Set
	blacklist    wordlist.Set
	scorer       *sentiment.Scorer
	store        *results.Store
	grouping     aggregate.Grouping
	logDir       string
	logger       *log.Logger
	guard        *semaphore.Weighted

	mu      sync.Mutex
	current *Run
}

// RunnerConfig holds the collaborators of a Runner.
type RunnerConfig struct {
	Client       *discovery.Client
	Profile      *scraper.SiteProfile
	ContextWords wordlist.Set
	Blacklist    wordlist.Set
	Scorer       *sentiment.Scorer
	Store        *results.Store
	Grouping     aggregate.Grouping
	// LogDir receives one log file per run. Empty disables run log files.
	LogDir string
	Logger *log.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Client == nil {
		cfg.Client = discovery.NewClient(discovery.DefaultTimeout)
	}
	return &Runner{
		client:       cfg.Client,
		profile:      cfg.Profile,
		contextWords: cfg.ContextWords,
		blacklist:    cfg.Blacklist,
		scorer:       cfg.Scorer,
		store:        cfg.Store,
		grouping:     cfg.Grouping,
		logDir:       cfg.LogDir,
		logger:       cfg.Logger,
		guard:        semaphore.NewWeighted(1),
	}
}

// Current returns the most recently started run, or nil.
func (rn *Runner) Current() *Run {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.current
}

// Start launches a run in the background. It fails with ErrRunInProgress
// while another run has not finished. Cancelling ctx cancels the run.
func (rn *Runner) Start(ctx context.Context, req RunRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := rn.scorer.Supports(req.Methods); err != nil {
		return nil, err
	}
	if !rn.guard.TryAcquire(1) {
		return nil, ErrRunInProgress
	}

	record, err := rn.store.CreateRun(req.Start, req.End, req.Methods, string(discovery.StatePaging))
	if err != nil {
		rn.guard.Release(1)
		return nil, err
	}

	logger := rn.logger
	var logFile *runlog.Log
	if rn.logDir != "" {
		logFile, err = runlog.Open(rn.logDir, record.StartedAt, rn.logger.Writer())
		if err != nil {
			if ferr := rn.store.FinishRun(record.RunID, string(discovery.StateError), "", err); ferr != nil {
				rn.logger.Printf("ERROR: recording run %s: %v", record.RunID, ferr)
			}
			rn.guard.Release(1)
			return nil, err
		}
		logger = logFile.Logger
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:      record.RunID,
		Request: req,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	rn.mu.Lock()
	rn.current = run
	rn.mu.Unlock()

	go func() {
		defer close(run.done)
		defer rn.guard.Release(1)
		defer close(run.events)
		defer cancel()

		sum := rn.execute(runCtx, run, logger)
		if logFile != nil {
			sum.LogPath = logFile.Path()
			logFile.Close()
		}
		run.sum = sum
	}()

	return run, nil
}

// execute runs the pipeline. It never panics on item failures; those are
// logged and skipped.
func (rn *Runner) execute(ctx context.Context, run *Run, logger *log.Logger) *Summary {
	req := run.Request
	sum := &Summary{RunID: run.ID}
	emit := eventSender{run: run, ctx: ctx}

	logger.Printf("INFO: run %s: %s to %s, up to %d articles from %d pages, methods %v",
		run.ID, req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly),
		req.MaxArticles, req.MaxPages, req.Methods)
	emit.status(fmt.Sprintf("Searching %s for articles", rn.profile.BaseURL))

	crawler := discovery.NewCrawler(rn.client, rn.profile, logger)
	crawler.OnProgress(func(discovered, maxArticles, page int) {
		emit.progress(discoveryShare*discovered/maxArticles,
			fmt.Sprintf("Page %d: %d of %d articles found", page, discovered, maxArticles))
	})

	query := discovery.Query{
		MaxArticles:  req.MaxArticles,
		MaxPages:     req.MaxPages,
		Start:        req.Start,
		End:          req.End,
		ContextWords: rn.contextWords,
		Blacklist:    rn.blacklist,
	}
	found, err := crawler.Discover(ctx, query)
	if found == nil {
		sum.State, sum.Err = discovery.StateError, err
		return rn.finish(run, sum, logger, &emit)
	}
	if err != nil {
		// Partial discovery results are still fetched and scored.
		sum.Err = err
		emit.status(fmt.Sprintf("Discovery stopped early: %v", err))
	}
	sum.State, sum.Reason = found.State, found.Reason
	sum.Discovered = len(found.Candidates)
	emit.status(fmt.Sprintf("Found %d articles (%s)", sum.Discovered, found.Reason))

	fetcher, err := discovery.NewFetcher(rn.client, rn.profile, logger)
	if err != nil {
		sum.State, sum.Err = discovery.StateError, err
		return rn.finish(run, sum, logger, &emit)
	}

	agg := aggregate.New(rn.grouping)
	agg.Cover(req.Start, req.End, req.Methods)
	for i, candidate := range found.Candidates {
		if ctx.Err() != nil {
			logger.Printf("WARN: run %s cancelled after %d of %d articles", run.ID, i, len(found.Candidates))
			sum.State, sum.Reason = discovery.StateAborted, discovery.ReasonCancelled
			break
		}

		article, err := fetcher.FetchCandidate(ctx, candidate)
		if err != nil {
			logger.Printf("ERROR: skipping article %s: %v", candidate.URL, err)
			continue
		}
		if !rn.resolveDate(article, query) {
			logger.Printf("WARN: skipping article %s: no publication date within the window", candidate.URL)
			continue
		}

		if err := rn.store.RecordArticle(run.ID, *article); err != nil {
			logger.Printf("ERROR: recording article %s: %v", article.URL, err)
			continue
		}

		for _, r := range rn.scorer.Score(ctx, *article, req.Methods) {
			if err := rn.store.RecordResult(run.ID, r); err != nil {
				logger.Printf("ERROR: recording %s result for %s: %v", r.Method, r.URL, err)
			}
			agg.Add(r, article.PublishedAt)
			logger.Printf("INFO: %s %s: %s %.3f (%s)", r.Method, article.URL, r.Label, r.Score, r.Distribution)
			emit.result(fmt.Sprintf("%s [%s] %s: %s", article.Title, r.Method, r.Label, r.Distribution))
		}
		sum.Scored++

		done := discoveryShare + (100-discoveryShare)*(i+1)/len(found.Candidates)
		emit.progress(done, fmt.Sprintf("Scored %d of %d articles", i+1, len(found.Candidates)))
	}

	sum.Periods = agg.Periods()
	for _, p := range sum.Periods {
		text := fmt.Sprintf("%s [%s] %d articles: %s (%s)", p.Key, p.Method, p.Count, p.Dominant, p.Normalized)
		logger.Printf("INFO: %s", text)
		emit.result(text)
	}

	return rn.finish(run, sum, logger, &emit)
}

// resolveDate settles the date an article is aggregated under. It reports
// false when the article has no usable date inside the run window.
func (rn *Runner) resolveDate(article *discovery.Article, q discovery.Query) bool {
	date, ok := discovery.ApplyDatePolicy(rn.profile.DatePolicy, article.PublishedAt, q.End)
	if !ok || !q.Contains(*date) {
		return false
	}
	if article.PublishedAt == nil {
		article.DateSource = discovery.DateFromWindowEnd
	}
	article.PublishedAt = date
	return true
}

// Scored is an article scored outside a run.
type Scored struct {
	Article discovery.Article  `json:"article"`
	Results []sentiment.Result `json:"results"`
}

// ScoreURLs fetches and scores article pages directly, without discovery or
// a date window. Nothing is recorded in the result store. Pages that fail are
// logged and skipped.
func (rn *Runner) ScoreURLs(ctx context.Context, urls []string, methods []sentiment.Method) ([]Scored, error) {
	if len(methods) == 0 {
		return nil, errors.New("no scoring method selected")
	}
	if err := rn.scorer.Supports(methods); err != nil {
		return nil, err
	}
	fetcher, err := discovery.NewFetcher(rn.client, rn.profile, rn.logger)
	if err != nil {
		return nil, err
	}

	articles := fetcher.FetchArticles(ctx, urls)
	scored := make([]Scored, 0, len(articles))
	for _, article := range articles {
		scored = append(scored, Scored{
			Article: article,
			Results: rn.scorer.Score(ctx, article, methods),
		})
	}
	return scored, nil
}

func (rn *Runner) finish(run *Run, sum *Summary, logger *log.Logger, emit *eventSender) *Summary {
	if err := rn.store.FinishRun(run.ID, string(sum.State), sum.Reason, sum.Err); err != nil {
		logger.Printf("ERROR: recording run %s: %v", run.ID, err)
	}

	if sum.State == discovery.StateError && sum.Discovered == 0 {
		logger.Printf("ERROR: run %s failed: %v", run.ID, sum.Err)
		emit.final(EventStatus, fmt.Sprintf("Run failed: %v", sum.Err))
		return sum
	}

	logger.Printf("INFO: run %s %s (%s): %d discovered, %d scored", run.ID, sum.State, sum.Reason, sum.Discovered, sum.Scored)
	emit.final(EventProgress, "Done")
	emit.final(EventStatus, fmt.Sprintf("Run %s: %d of %d articles scored", sum.State, sum.Scored, sum.Discovered))
	return sum
}

// eventSender writes events for one run. Progress events are dropped when
// the buffer is full; other events wait for the reader or cancellation.
type eventSender struct {
	run *Run
	ctx context.Context
}

func (e *eventSender) progress(percent int, text string) {
	select {
	case e.run.events <- Event{Kind: EventProgress, RunID: e.run.ID, Percent: percent, Text: text}:
	default:
	}
}

func (e *eventSender) status(text string) {
	e.send(Event{Kind: EventStatus, RunID: e.run.ID, Text: text})
}

func (e *eventSender) result(text string) {
	e.send(Event{Kind: EventResult, RunID: e.run.ID, Text: text})
}

func (e *eventSender) send(ev Event) {
	select {
	case e.run.events <- ev:
	case <-e.ctx.Done():
	}
}

// final sends a closing event. After cancellation it is only delivered when
// the buffer has room.
func (e *eventSender) final(kind EventKind, text string) {
	ev := Event{Kind: kind, RunID: e.run.ID, Text: text}
	if kind == EventProgress {
		ev.Percent = 100
	}
	if e.ctx.Err() == nil {
		e.send(ev)
		return
	}
	select {
	case e.run.events <- ev:
	default:
	}
}
