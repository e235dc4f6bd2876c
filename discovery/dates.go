package discovery

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newsmood/scraper"
)

// Names of the date strategies, in the order they are tried.
const (
	DateFromTimeMarker    = "time-marker"
	DateFromMetaDate      = "meta-date"
	DateFromMetaPublished = "meta-published"
	DateFromTimeElement   = "time-element"
	DateFromText          = "text"
)

// Date sources outside the article page.
const (
	DateFromFeed      = "feed"
	DateFromWindowEnd = "window-end"
)

var dottedDate = regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{4}\b`)

// DateExtractor recovers the publication date of an article page.
type DateExtractor struct {
	markerClass string
	formats     []string
}

// NewDateExtractor creates an extractor for the given date markers.
func NewDateExtractor(cfg scraper.DateConfig) *DateExtractor {
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = scraper.DefaultProfile().Date.Formats
	}
	return &DateExtractor{
		markerClass: cfg.TimeMarkerClass,
		formats:     formats,
	}
}

// Extract returns the publication date of doc together with the name of the
// strategy that found it. It returns nil and "" when every strategy fails.
func (d *DateExtractor) Extract(doc *goquery.Document) (*time.Time, string) {
	type strategy struct {
		name       string
		candidates func() []string
	}

	strategies := []strategy{
		{DateFromTimeMarker, func() []string {
			if d.markerClass == "" {
				return nil
			}
			return attrs(doc.Find("time."+d.markerClass), "datetime")
		}},
		{DateFromMetaDate, func() []string {
			return attrs(doc.Find(`meta[name="date"]`), "content")
		}},
		{DateFromMetaPublished, func() []string {
			return attrs(doc.Find(`meta[property="article:published_time"], meta[name="article:published_time"]`), "content")
		}},
		{DateFromTimeElement, func() []string {
			return attrs(doc.Find("time[datetime]"), "datetime")
		}},
		{DateFromText, func() []string {
			return dottedDate.FindAllString(doc.Find("body").Text(), -1)
		}},
	}

	for _, s := range strategies {
		for _, candidate := range s.candidates() {
			if t, ok := d.Parse(candidate); ok {
				return &t, s.name
			}
		}
	}
	return nil, ""
}

// Parse parses the leading date segment of value, the part before any
// time-of-day or comma suffix, against the known formats.
func (d *DateExtractor) Parse(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if i := strings.IndexAny(value, "T ,"); i >= 0 {
		value = value[:i]
	}
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range d.formats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func attrs(sel *goquery.Selection, name string) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	})
	return out
}

// ApplyDatePolicy resolves a missing date according to policy. It returns
// false when the article must be excluded.
func ApplyDatePolicy(policy scraper.DatePolicy, date *time.Time, windowEnd time.Time) (*time.Time, bool) {
	if date != nil {
		return date, true
	}
	if policy == scraper.DateWindowEnd {
		end := windowEnd
		return &end, true
	}
	return nil, false
}
