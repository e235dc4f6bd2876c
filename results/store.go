// Package results buffers the articles and sentiment results of runs in an
// SQLite database. The default database lives in memory and is discarded with
// the process.
package results

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/newsmood/aggregate"
	"github.com/pevans/newsmood/discovery"
	"github.com/pevans/newsmood/sentiment"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

var ErrRunNotFound = errors.New("run not found")

// Store records runs, articles and results.
type Store struct {
	db *sql.DB
}

// Run describes one pipeline run.
type Run struct {
	RunID      uuid.UUID          `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Methods    []sentiment.Method `json:"methods"`
	State      string             `json:"state"`
	Reason     string             `json:"reason,omitempty"`
	LastError  *string            `json:"last_error,omitempty"`
}

// Record is one stored result joined with its article.
type Record struct {
	sentiment.Result
	RunID       uuid.UUID  `json:"run_id"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ResultFilter narrows ListResults.
type ResultFilter struct {
	RunID  *uuid.UUID
	Method *sentiment.Method
	Label  *sentiment.Label
	Limit  int
	Offset int
}

// NewStore opens the database at dsn. Pass MemoryDSN for a throwaway buffer.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		methods TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		reason TEXT,
		last_error TEXT
	);

	CREATE TABLE IF NOT EXISTS articles (
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		published_at TEXT,
		date_source TEXT,
		body_source TEXT,
		body_length INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, url),
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		method TEXT NOT NULL,
		label TEXT NOT NULL,
		score REAL NOT NULL,
		positive REAL NOT NULL,
		negative REAL NOT NULL,
		neutral REAL NOT NULL,
		error TEXT,
		FOREIGN KEY (run_id, url) REFERENCES articles(run_id, url) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id, method);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun registers a new run scoring methods over the window [start, end].
func (s *Store) CreateRun(start, end time.Time, methods []sentiment.Method, state string) (*Run, error) {
	run := &Run{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Start:     start,
		End:       end,
		Methods:   methods,
		State:     state,
	}

	query := `
		INSERT INTO runs (run_id, started_at, window_start, window_end, methods, state)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.RunID.String(),
		formatTime(&run.StartedAt),
		formatTime(&run.Start),
		formatTime(&run.End),
		joinMethods(methods),
		run.State,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final state of a run. runErr may be nil.
func (s *Store) FinishRun(runID uuid.UUID, state, reason string, runErr error) error {
	var lastError *string
	if runErr != nil {
		msg := runErr.Error()
		lastError = &msg
	}
	now := time.Now()

	result, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, state = ?, reason = ?, last_error = ? WHERE run_id = ?",
		formatTime(&now), state, reason, lastError, runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID uuid.UUID) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, window_start, window_end, methods, state, reason, last_error
		FROM runs WHERE run_id = ?
	`, runID.String())
	return scanRun(row)
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, window_start, window_end, methods, state, reason, last_error
		FROM runs ORDER BY rowid DESC LIMIT 1
	`)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*Run, error) {
	var runIDStr, startedAtStr, startStr, endStr, methods, state string
	var finishedAtStr, reason, lastError sql.NullString

	err := row.Scan(&runIDStr, &startedAtStr, &finishedAtStr, &startStr, &endStr, &methods, &state, &reason, &lastError)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid run_id: %w", err)
	}

	run := &Run{
		RunID:     runID,
		StartedAt: parseTime(startedAtStr),
		Start:     parseTime(startStr),
		End:       parseTime(endStr),
		Methods:   splitMethods(methods),
		State:     state,
		Reason:    reason.String,
	}
	if finishedAtStr.Valid {
		t := parseTime(finishedAtStr.String)
		run.FinishedAt = &t
	}
	if lastError.Valid {
		run.LastError = &lastError.String
	}
	return run, nil
}

// RecordArticle stores a fetched article. Recording the same URL twice for a
// run replaces the earlier row.
func (s *Store) RecordArticle(runID uuid.UUID, a discovery.Article) error {
	query := `
		INSERT OR REPLACE INTO articles (
			run_id, url, title, published_at, date_source, body_source, body_length
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		runID.String(),
		a.URL,
		a.Title,
		formatTime(a.PublishedAt),
		a.DateSource,
		a.BodySource,
		len([]rune(a.Body)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// RecordResult stores one scoring result for an article already recorded.
func (s *Store) RecordResult(runID uuid.UUID, r sentiment.Result) error {
	var errStr *string
	if r.Error != "" {
		errStr = &r.Error
	}

	query := `
		INSERT INTO results (
			run_id, url, method, label, score, positive, negative, neutral, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		runID.String(),
		r.URL,
		string(r.Method),
		string(r.Label),
		r.Score,
		r.Distribution.Positive,
		r.Distribution.Negative,
		r.Distribution.Neutral,
		errStr,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// ListResults returns results in insertion order.
func (s *Store) ListResults(filter ResultFilter) ([]Record, error) {
	query := `
		SELECT r.run_id, r.url, r.method, r.label, r.score,
		       r.positive, r.negative, r.neutral, r.error,
		       a.title, a.published_at
		FROM results r
		JOIN articles a ON a.run_id = r.run_id AND a.url = r.url
		WHERE 1=1
	`
	var args []any

	if filter.RunID != nil {
		query += " AND r.run_id = ?"
		args = append(args, filter.RunID.String())
	}
	if filter.Method != nil {
		query += " AND r.method = ?"
		args = append(args, string(*filter.Method))
	}
	if filter.Label != nil {
		query += " AND r.label = ?"
		args = append(args, string(*filter.Label))
	}

	query += " ORDER BY r.id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var runIDStr, url, method, label, title string
		var score, pos, neg, neu float64
		var errStr, publishedAtStr sql.NullString

		if err := rows.Scan(
			&runIDStr, &url, &method, &label, &score,
			&pos, &neg, &neu, &errStr,
			&title, &publishedAtStr,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		runID, err := uuid.Parse(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid run_id: %w", err)
		}

		rec := Record{
			Result: sentiment.Result{
				URL:          url,
				Method:       sentiment.Method(method),
				Label:        sentiment.Label(label),
				Score:        score,
				Distribution: sentiment.Distribution{Positive: pos, Negative: neg, Neutral: neu},
				Error:        errStr.String,
			},
			RunID: runID,
			Title: title,
		}
		if publishedAtStr.Valid {
			t := parseTime(publishedAtStr.String)
			rec.PublishedAt = &t
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Periods aggregates the stored results of a run. Every group of the run
// window is reported for each of the run's methods.
func (s *Store) Periods(runID uuid.UUID, grouping aggregate.Grouping) ([]aggregate.Period, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	records, err := s.ListResults(ResultFilter{RunID: &runID})
	if err != nil {
		return nil, err
	}

	agg := aggregate.New(grouping)
	agg.Cover(run.Start, run.End, run.Methods)
	for _, rec := range records {
		agg.Add(rec.Result, rec.PublishedAt)
	}
	return agg.Periods(), nil
}

func joinMethods(methods []sentiment.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return strings.Join(names, ",")
}

func splitMethods(s string) []sentiment.Method {
	if s == "" {
		return nil
	}
	var methods []sentiment.Method
	for _, name := range strings.Split(s, ",") {
		methods = append(methods, sentiment.Method(name))
	}
	return methods
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
