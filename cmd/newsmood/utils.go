package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/newsmood"
)

// parseDuration extends time.ParseDuration to support 'd' (days) and 'w'
// (weeks)
func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if !strings.HasSuffix(s, suffix) {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, suffix), "%d", &n); err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * unit, nil
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}

// parseWindow resolves the date window from the flags. end defaults to the
// day of now; start comes from --start, or from --since counted back from end.
func parseWindow(start, end, since string, now time.Time) (time.Time, time.Time, error) {
	var endDay time.Time
	if end == "" {
		endDay = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		var err error
		if endDay, err = newsmood.ParseDay(end); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
	}

	switch {
	case start != "":
		startDay, err := newsmood.ParseDay(start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		if endDay.Before(startDay) {
			return time.Time{}, time.Time{}, errors.New("--end is before --start")
		}
		return startDay, endDay, nil
	case since != "":
		d, err := parseDuration(since)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		startDay := endDay.Add(-d).Truncate(24 * time.Hour)
		return startDay, endDay, nil
	default:
		return time.Time{}, time.Time{}, errors.New("one of --start or --since is required")
	}
}
