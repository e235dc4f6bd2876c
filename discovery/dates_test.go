package discovery

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newsmood/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func newTestDateExtractor() *DateExtractor {
	return NewDateExtractor(scraper.DefaultProfile().Date)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TestDateExtractor_EachStrategy verifies every strategy is found on its own
func TestDateExtractor_EachStrategy(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		strategy string
		want     time.Time
	}{
		{
			name:     "time element with marker class",
			html:     `<html><body><time class="published" datetime="2024-03-05T10:15:00+01:00">5. März</time></body></html>`,
			strategy: DateFromTimeMarker,
			want:     day(2024, 3, 5),
		},
		{
			name:     "meta date",
			html:     `<html><head><meta name="date" content="2024-02-29"></head><body></body></html>`,
			strategy: DateFromMetaDate,
			want:     day(2024, 2, 29),
		},
		{
			name:     "meta published time",
			html:     `<html><head><meta property="article:published_time" content="2023-12-24T18:00:00Z"></head><body></body></html>`,
			strategy: DateFromMetaPublished,
			want:     day(2023, 12, 24),
		},
		{
			name:     "generic time element",
			html:     `<html><body><time datetime="2024/01/07">7.1.</time></body></html>`,
			strategy: DateFromTimeElement,
			want:     day(2024, 1, 7),
		},
		{
			name:     "dotted date in text",
			html:     `<html><body><p>Veröffentlicht am 09.04.2024, 12:30 Uhr</p></body></html>`,
			strategy: DateFromText,
			want:     day(2024, 4, 9),
		},
	}

	extractor := newTestDateExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, strategy := extractor.Extract(parseDoc(t, tt.html))

			require.NotNil(t, date)
			assert.Equal(t, tt.strategy, strategy)
			assert.True(t, tt.want.Equal(*date), "got %s", date)
		})
	}
}

// TestDateExtractor_Order verifies earlier strategies win
func TestDateExtractor_Order(t *testing.T) {
	html := `<html><head>
		<meta name="date" content="2024-01-02">
		<meta property="article:published_time" content="2024-01-03T00:00:00Z">
	</head><body>
		<time datetime="2024-01-04">x</time>
		<time class="published" datetime="2024-01-01">y</time>
		<p>05.01.2024</p>
	</body></html>`

	date, strategy := newTestDateExtractor().Extract(parseDoc(t, html))

	require.NotNil(t, date)
	assert.Equal(t, DateFromTimeMarker, strategy)
	assert.True(t, day(2024, 1, 1).Equal(*date))
}

// TestDateExtractor_FallsThroughUnparseable verifies a parse failure moves on
func TestDateExtractor_FallsThroughUnparseable(t *testing.T) {
	html := `<html><head><meta name="date" content="gestern"></head>
		<body><time class="published" datetime="soon">x</time><p>am 1.2.2024</p></body></html>`

	date, strategy := newTestDateExtractor().Extract(parseDoc(t, html))

	require.NotNil(t, date)
	assert.Equal(t, DateFromText, strategy)
	assert.True(t, day(2024, 2, 1).Equal(*date))
}

// TestDateExtractor_None verifies nil when no strategy applies
func TestDateExtractor_None(t *testing.T) {
	date, strategy := newTestDateExtractor().Extract(parseDoc(t, `<html><body><p>no date</p></body></html>`))

	assert.Nil(t, date)
	assert.Empty(t, strategy)
}

// TestDateExtractor_Parse verifies leading segment parsing
func TestDateExtractor_Parse(t *testing.T) {
	extractor := newTestDateExtractor()

	tests := []struct {
		value string
		ok    bool
		want  time.Time
	}{
		{"2024-03-05T10:15:00+01:00", true, day(2024, 3, 5)},
		{"05.03.2024, 10:15", true, day(2024, 3, 5)},
		{"5.3.2024 10:15", true, day(2024, 3, 5)},
		{"2024/03/05", true, day(2024, 3, 5)},
		{"  ", false, time.Time{}},
		{"March 5", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := extractor.Parse(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

// TestApplyDatePolicy verifies both unresolved-date policies
func TestApplyDatePolicy(t *testing.T) {
	end := day(2024, 6, 30)
	known := day(2024, 5, 1)

	got, ok := ApplyDatePolicy(scraper.DateExclude, &known, end)
	assert.True(t, ok)
	assert.Equal(t, &known, got)

	got, ok = ApplyDatePolicy(scraper.DateExclude, nil, end)
	assert.False(t, ok)
	assert.Nil(t, got)

	got, ok = ApplyDatePolicy(scraper.DateWindowEnd, nil, end)
	assert.True(t, ok)
	require.NotNil(t, got)
	assert.True(t, end.Equal(*got))
}
