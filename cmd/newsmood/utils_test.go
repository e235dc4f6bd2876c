package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"36h", 36 * time.Hour, true},
		{"30d", 30 * 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{"xd", 0, false},
		{"soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2024, 7, 15, 18, 30, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	start, end, err := parseWindow("2024-01-01", "2024-06-30", "", now)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 1), start)
	assert.Equal(t, day(2024, 6, 30), end)

	start, end, err = parseWindow("", "", "10d", now)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 7, 5), start)
	assert.Equal(t, day(2024, 7, 15), end)

	_, _, err = parseWindow("2024-06-30", "2024-01-01", "", now)
	assert.Error(t, err)

	_, _, err = parseWindow("", "2024-01-01", "", now)
	assert.Error(t, err)

	_, _, err = parseWindow("01.01.2024", "", "", now)
	assert.Error(t, err)
}
