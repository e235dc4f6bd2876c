// Package aggregate folds per-article sentiment results into period totals.
package aggregate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pevans/newsmood/sentiment"
)

// Grouping selects how results are bucketed.
type Grouping string

const (
	GroupQuarter Grouping = "quarter"
	GroupAll     Grouping = "all"
)

const (
	// AllKey is the key of the single group used with GroupAll.
	AllKey = "all"
	// UndatedKey collects articles without a publication date when grouping
	// by quarter.
	UndatedKey = "undated"
)

// Quarter is a calendar quarter.
type Quarter struct {
	Year int `json:"year"`
	Q    int `json:"quarter"`
}

// QuarterOf returns the quarter t falls in.
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// Next returns the quarter after q.
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// Quarters lists the quarters from the one containing start through the one
// containing end.
func Quarters(start, end time.Time) []Quarter {
	last := QuarterOf(end)
	var out []Quarter
	for q := QuarterOf(start); q.Year < last.Year || (q.Year == last.Year && q.Q <= last.Q); q = q.Next() {
		out = append(out, q)
	}
	return out
}

// String formats q as "2024-Q1".
func (q Quarter) String() string {
	return fmt.Sprintf("%d-Q%d", q.Year, q.Q)
}

// Period is the aggregate of one method's results within one group.
type Period struct {
	Key        string                 `json:"key"`
	Method     sentiment.Method       `json:"method"`
	Count      int                    `json:"count"`
	Sum        sentiment.Distribution `json:"sum"`
	ScoreSum   float64                `json:"score_sum"`
	Normalized sentiment.Distribution `json:"normalized"`
	Dominant   sentiment.Label        `json:"dominant"`
}

type groupKey struct {
	key    string
	method sentiment.Method
}

// Aggregator accumulates results. It is safe for concurrent use.
type Aggregator struct {
	grouping Grouping

	mu      sync.Mutex
	groups  map[groupKey]*Period
	covered []groupKey
}

// New creates an aggregator. An unknown grouping falls back to GroupAll.
func New(grouping Grouping) *Aggregator {
	if grouping != GroupQuarter {
		grouping = GroupAll
	}
	return &Aggregator{
		grouping: grouping,
		groups:   make(map[groupKey]*Period),
	}
}

// Grouping returns the grouping in use.
func (a *Aggregator) Grouping() Grouping {
	return a.grouping
}

// KeyFor returns the group key for an article published at publishedAt.
func (a *Aggregator) KeyFor(publishedAt *time.Time) string {
	if a.grouping == GroupAll {
		return AllKey
	}
	if publishedAt == nil {
		return UndatedKey
	}
	return QuarterOf(*publishedAt).String()
}

// Cover makes Periods report every group of the window [start, end] for each
// method, including groups that receive no results.
func (a *Aggregator) Cover(start, end time.Time, methods []sentiment.Method) {
	keys := []string{AllKey}
	if a.grouping == GroupQuarter {
		keys = keys[:0]
		for _, q := range Quarters(start, end) {
			keys = append(keys, q.String())
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, key := range keys {
		for _, m := range methods {
			a.covered = append(a.covered, groupKey{key: key, method: m})
		}
	}
}

// Add folds a result into the group of its article.
func (a *Aggregator) Add(r sentiment.Result, publishedAt *time.Time) {
	k := groupKey{key: a.KeyFor(publishedAt), method: r.Method}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.groups[k]
	if !ok {
		p = &Period{Key: k.key, Method: k.method}
		a.groups[k] = p
	}
	p.Count++
	p.Sum = p.Sum.Add(r.Distribution)
	p.ScoreSum += r.Score
}

// Periods returns every group, ordered by key then method. Normalized and
// Dominant are computed from the sums at call time. Covered groups without
// results are reported as Empty.
func (a *Aggregator) Periods() []Period {
	a.mu.Lock()
	periods := make([]Period, 0, len(a.groups)+len(a.covered))
	for _, p := range a.groups {
		p := *p
		p.Normalized = p.Sum.Normalize()
		p.Dominant = p.Normalized.Dominant()
		periods = append(periods, p)
	}
	seen := make(map[groupKey]bool, len(a.covered))
	for _, k := range a.covered {
		if _, ok := a.groups[k]; ok || seen[k] {
			continue
		}
		seen[k] = true
		periods = append(periods, Empty(k.key, k.method))
	}
	a.mu.Unlock()

	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Key != periods[j].Key {
			return lessKey(periods[i].Key, periods[j].Key)
		}
		return periods[i].Method < periods[j].Method
	})
	return periods
}

// Empty returns the aggregate of a group that received no results.
func Empty(key string, method sentiment.Method) Period {
	return Period{
		Key:        key,
		Method:     method,
		Normalized: sentiment.NeutralDistribution(),
		Dominant:   sentiment.Neutral,
	}
}

// lessKey orders quarter keys chronologically and puts undated last.
func lessKey(a, b string) bool {
	if a == UndatedKey {
		return false
	}
	if b == UndatedKey {
		return true
	}
	return a < b
}
