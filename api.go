package newsmood

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pevans/newsmood/aggregate"
	"github.com/pevans/newsmood/config"
	"github.com/pevans/newsmood/results"
	"github.com/pevans/newsmood/sentiment"
)

// APIServer exposes runs, their event streams and the result buffer over
// HTTP.
type APIServer struct {
	runner *Runner
	cfg    *config.Config

	mu   sync.Mutex
	logs map[uuid.UUID]*eventLog
}

// NewAPIServer creates an API server. cfg supplies request defaults.
func NewAPIServer(runner *Runner, cfg *config.Config) *APIServer {
	return &APIServer{
		runner: runner,
		cfg:    cfg,
		logs:   make(map[uuid.UUID]*eventLog),
	}
}

// RunRequestBody is the body of POST /api/v1/runs. Omitted fields take the
// configured defaults.
type RunRequestBody struct {
	Start       string   `json:"start" binding:"required"`
	End         string   `json:"end" binding:"required"`
	MaxArticles int      `json:"max_articles"`
	MaxPages    int      `json:"max_pages"`
	Methods     []string `json:"methods"`
}

// RunResponse describes a run.
type RunResponse struct {
	RunID   uuid.UUID `json:"run_id"`
	Running bool      `json:"running"`
	Summary *Summary  `json:"summary,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// SetupRouter configures the Gin router.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	{
		api.POST("/runs", s.HandleStartRun)
		api.GET("/runs/current", s.HandleGetCurrentRun)
		api.DELETE("/runs/current", s.HandleCancelRun)
		api.GET("/runs/current/events", s.HandleRunEvents)
		api.GET("/results", s.HandleListResults)
		api.GET("/periods", s.HandleListPeriods)
	}
	config.NewAPIHandler(s.cfg).RegisterRoutes(api)

	return router
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// HandleStartRun handles POST /api/v1/runs.
func (s *APIServer) HandleStartRun(c *gin.Context) {
	var body RunRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}

	req, err := s.buildRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	// The run outlives the request.
	run, err := s.runner.Start(context.Background(), req)
	switch {
	case errors.Is(err, ErrRunInProgress):
		c.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
		return
	case errors.Is(err, sentiment.ErrNotConfigured):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", err.Error()))
		return
	}

	s.record(run)
	c.JSON(http.StatusAccepted, RunResponse{RunID: run.ID, Running: true})
}

func (s *APIServer) buildRequest(body RunRequestBody) (RunRequest, error) {
	start, err := ParseDay(body.Start)
	if err != nil {
		return RunRequest{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := ParseDay(body.End)
	if err != nil {
		return RunRequest{}, fmt.Errorf("invalid end: %w", err)
	}

	req := RunRequest{
		Start:       start,
		End:         end,
		MaxArticles: s.cfg.Crawl.MaxArticles,
		MaxPages:    s.cfg.Crawl.MaxPages,
	}
	if body.MaxArticles > 0 {
		req.MaxArticles = body.MaxArticles
	}
	if body.MaxPages > 0 {
		req.MaxPages = body.MaxPages
	}

	names := body.Methods
	if len(names) == 0 {
		names = s.cfg.Scoring.Methods
	}
	req.Methods, err = sentiment.ParseMethods(names)
	if err != nil {
		return RunRequest{}, err
	}
	return req, req.Validate()
}

// record drains the run's events into a replayable log.
func (s *APIServer) record(run *Run) *eventLog {
	l := newEventLog()

	s.mu.Lock()
	s.logs = map[uuid.UUID]*eventLog{run.ID: l}
	s.mu.Unlock()

	go func() {
		for ev := range run.Events() {
			l.append(ev)
		}
		l.close()
	}()
	return l
}

func (s *APIServer) currentLog() (*Run, *eventLog) {
	run := s.runner.Current()
	if run == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return run, s.logs[run.ID]
}

// HandleGetCurrentRun handles GET /api/v1/runs/current.
func (s *APIServer) HandleGetCurrentRun(c *gin.Context) {
	run := s.runner.Current()
	if run == nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "no run has been started"))
		return
	}

	resp := RunResponse{RunID: run.ID}
	if sum := run.Summary(); sum != nil {
		resp.Summary = sum
		if sum.Err != nil {
			resp.Error = sum.Err.Error()
		}
	} else {
		resp.Running = true
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCancelRun handles DELETE /api/v1/runs/current.
func (s *APIServer) HandleCancelRun(c *gin.Context) {
	run := s.runner.Current()
	if run == nil || run.Summary() != nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "no run in progress"))
		return
	}
	run.Cancel()
	c.Status(http.StatusNoContent)
}

// HandleRunEvents handles GET /api/v1/runs/current/events as a server-sent
// event stream. Earlier events of the run are replayed first.
func (s *APIServer) HandleRunEvents(c *gin.Context) {
	_, l := s.currentLog()
	if l == nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "no run has been started"))
		return
	}

	next := 0
	c.Stream(func(w io.Writer) bool {
		events, done, wait := l.since(next)
		for _, ev := range events {
			c.SSEvent(string(ev.Kind), ev)
		}
		next += len(events)
		if len(events) > 0 {
			return true
		}
		if done {
			return false
		}

		select {
		case <-wait:
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// HandleListResults handles GET /api/v1/results. Without run_id the latest
// run is listed.
func (s *APIServer) HandleListResults(c *gin.Context) {
	store := s.runner.Store()

	runID, ok := s.runIDParam(c, store)
	if !ok {
		return
	}

	filter := results.ResultFilter{RunID: &runID}
	if m := c.Query("method"); m != "" {
		methods, err := sentiment.ParseMethods([]string{m})
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
			return
		}
		filter.Method = &methods[0]
	}
	if l := c.Query("label"); l != "" {
		label := sentiment.Label(l)
		switch label {
		case sentiment.Positive, sentiment.Negative, sentiment.Neutral:
		default:
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "label must be positive, negative or neutral"))
			return
		}
		filter.Label = &label
	}

	var err error
	if filter.Limit, err = intParam(c, "limit", 100); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
		return
	}
	if filter.Offset, err = intParam(c, "offset", 0); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
		return
	}

	records, err := store.ListResults(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to list results"))
		return
	}
	if records == nil {
		records = []results.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":  runID,
		"results": records,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// HandleListPeriods handles GET /api/v1/periods.
func (s *APIServer) HandleListPeriods(c *gin.Context) {
	store := s.runner.Store()

	runID, ok := s.runIDParam(c, store)
	if !ok {
		return
	}

	grouping := s.runner.Grouping()
	if g := c.Query("grouping"); g != "" {
		grouping = aggregate.Grouping(g)
		if grouping != aggregate.GroupQuarter && grouping != aggregate.GroupAll {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "grouping must be quarter or all"))
			return
		}
	}

	periods, err := store.Periods(runID, grouping)
	if errors.Is(err, results.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "run not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to aggregate results"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":   runID,
		"grouping": grouping,
		"periods":  periods,
	})
}

// runIDParam reads ?run_id or falls back to the latest run. It writes the
// error response itself.
func (s *APIServer) runIDParam(c *gin.Context, store *results.Store) (uuid.UUID, bool) {
	if param := c.Query("run_id"); param != "" {
		id, err := uuid.Parse(param)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "run_id must be a UUID"))
			return uuid.Nil, false
		}
		return id, true
	}

	run, err := store.LatestRun()
	if errors.Is(err, results.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "no run has been started"))
		return uuid.Nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to look up run"))
		return uuid.Nil, false
	}
	return run.RunID, true
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return n, nil
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// eventLog keeps every event of a run so late subscribers can replay them.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	done   bool
	notify chan struct{}
}

func newEventLog() *eventLog {
	return &eventLog{notify: make(chan struct{})}
}

func (l *eventLog) append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	close(l.notify)
	l.notify = make(chan struct{})
}

func (l *eventLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done = true
	close(l.notify)
	l.notify = make(chan struct{})
}

// since returns the events from index i on, whether the run has ended, and a
// channel closed on the next change.
func (l *eventLog) since(i int) ([]Event, bool, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i > len(l.events) {
		i = len(l.events)
	}
	return append([]Event(nil), l.events[i:]...), l.done, l.notify
}
