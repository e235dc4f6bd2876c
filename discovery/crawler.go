package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/pevans/newsmood/scraper"
	"github.com/pevans/newsmood/wordlist"
)

// State is the state of a discovery run.
type State string

const (
	StateIdle      State = "idle"
	StatePaging    State = "paging"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateError     State = "error"
)

// Reasons a discovery run ends.
const (
	ReasonArticleBudget = "article budget reached"
	ReasonPageBudget    = "page budget reached"
	ReasonEmptyPage     = "listing page has no entries"
	ReasonDateCutoff    = "articles older than start date"
	ReasonCancelled     = "cancelled"
	ReasonTransport     = "listing page fetch failed"
)

// Query bounds one discovery run.
type Query struct {
	MaxArticles  int
	MaxPages     int
	Start        time.Time
	End          time.Time
	ContextWords wordlist.Set
	Blacklist    wordlist.Set
}

// Validate checks the query bounds.
func (q Query) Validate() error {
	if q.MaxArticles < 1 {
		return errors.New("max articles must be at least 1")
	}
	if q.MaxPages < 1 {
		return errors.New("max pages must be at least 1")
	}
	if q.End.Before(q.Start) {
		return errors.New("end date is before start date")
	}
	return nil
}

// Contains reports whether date lies within [Start, End].
func (q Query) Contains(date time.Time) bool {
	return !date.Before(q.Start) && !date.After(q.End)
}

// Candidate is an admitted listing entry. PublishedAt is the date that
// admitted it.
type Candidate struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	DateSource  string     `json:"date_source,omitempty"`

	// page is the article page when discovery had to fetch it for the date.
	page *goquery.Document
}

// Discovery is the outcome of a discovery run. Candidates keep discovery
// order and never contain the same URL twice.
type Discovery struct {
	Candidates []Candidate
	State      State
	Reason     string
	Pages      int
	Err        error
}

// URLs returns the admitted URLs in discovery order.
func (d *Discovery) URLs() []string {
	urls := make([]string, len(d.Candidates))
	for i, c := range d.Candidates {
		urls[i] = c.URL
	}
	return urls
}

func (d *Discovery) has(url string) bool {
	for _, c := range d.Candidates {
		if c.URL == url {
			return true
		}
	}
	return false
}

// ProgressFunc receives the number of discovered articles after each listing
// page.
type ProgressFunc func(discovered, maxArticles, page int)

// listingEntry is one entry of a listing page.
type listingEntry struct {
	Link        string
	Title       string
	PublishedAt *time.Time
}

// Crawler pages through the listing of one site and admits articles whose
// titles and dates match a query.
type Crawler struct {
	client   *Client
	profile  *scraper.SiteProfile
	dates    *DateExtractor
	logger   *log.Logger
	progress ProgressFunc
	state    State
}

// NewCrawler creates a crawler for the given site profile. A nil logger writes
// to the standard logger.
func NewCrawler(client *Client, profile *scraper.SiteProfile, logger *log.Logger) *Crawler {
	if logger == nil {
		logger = log.Default()
	}
	return &Crawler{
		client:  client,
		profile: profile,
		dates:   NewDateExtractor(profile.Date),
		logger:  logger,
		state:   StateIdle,
	}
}

// OnProgress registers a progress callback.
func (c *Crawler) OnProgress(fn ProgressFunc) {
	c.progress = fn
}

// State returns the current state of the crawler.
func (c *Crawler) State() State {
	return c.state
}

// Discover pages through listing pages 1..MaxPages and returns the admitted
// candidates. The returned Discovery is never nil: when a listing page fails
// the candidates found so far are kept, the state is StateError and the
// transport error is also returned.
//
// Listing pages are assumed to be newest first when the profile says so; in
// that case the first admitted-by-title entry older than Start ends the run.
func (c *Crawler) Discover(ctx context.Context, q Query) (*Discovery, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	c.state = StatePaging
	d := &Discovery{}

	finish := func(state State, reason string) (*Discovery, error) {
		c.state = state
		d.State = state
		d.Reason = reason
		c.logger.Printf("INFO: discovery %s (%s): %d articles from %d pages", state, reason, len(d.Candidates), d.Pages)
		return d, d.Err
	}

	for page := 1; page <= q.MaxPages; page++ {
		if ctx.Err() != nil {
			return finish(StateAborted, ReasonCancelled)
		}

		pageURL := c.profile.PageURL(page)
		entries, err := c.listEntries(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StateAborted, ReasonCancelled)
			}
			c.logger.Printf("ERROR: listing page %s: %v", pageURL, err)
			d.Err = err
			return finish(StateError, ReasonTransport)
		}
		d.Pages = page

		if len(entries) == 0 {
			c.report(d, q, page)
			return finish(StateCompleted, ReasonEmptyPage)
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				c.report(d, q, page)
				return finish(StateAborted, ReasonCancelled)
			}

			stop := c.consider(ctx, d, q, entry)
			if stop != "" {
				c.report(d, q, page)
				if stop == ReasonDateCutoff {
					return finish(StateAborted, stop)
				}
				return finish(StateCompleted, stop)
			}
		}

		c.report(d, q, page)
	}

	return finish(StateCompleted, ReasonPageBudget)
}

// consider admits entry when it qualifies. It returns a non-empty reason when
// discovery must stop.
func (c *Crawler) consider(ctx context.Context, d *Discovery, q Query, entry listingEntry) string {
	title := strings.ToLower(entry.Title)
	if !q.ContextWords.AnyIn(title) || q.Blacklist.AnyIn(title) {
		return ""
	}
	if d.has(entry.Link) {
		return ""
	}

	date, source := entry.PublishedAt, DateFromFeed
	var page *goquery.Document
	if date == nil {
		doc, err := c.client.FetchHTML(ctx, entry.Link)
		if err != nil {
			c.logger.Printf("ERROR: skipping %s: %v", entry.Link, err)
			return ""
		}
		page = doc
		date, source = c.dates.Extract(doc)
		if date == nil {
			source = DateFromWindowEnd
		}
	}

	date, ok := ApplyDatePolicy(c.profile.DatePolicy, date, q.End)
	if !ok {
		c.logger.Printf("WARN: skipping %s: %v", entry.Link, ErrNoDate)
		return ""
	}

	if !q.Contains(*date) {
		if date.Before(q.Start) && c.profile.Chronological {
			return ReasonDateCutoff
		}
		return ""
	}

	d.Candidates = append(d.Candidates, Candidate{
		URL:         entry.Link,
		Title:       entry.Title,
		PublishedAt: date,
		DateSource:  source,
		page:        page,
	})
	if len(d.Candidates) >= q.MaxArticles {
		return ReasonArticleBudget
	}
	return ""
}

func (c *Crawler) report(d *Discovery, q Query, page int) {
	if c.progress != nil {
		c.progress(len(d.Candidates), q.MaxArticles, page)
	}
}

func (c *Crawler) listEntries(ctx context.Context, pageURL string) ([]listingEntry, error) {
	body, err := c.client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if c.profile.List.Format == scraper.FormatFeed {
		return feedEntries(body, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}
	return c.htmlEntries(doc, pageURL), nil
}

// htmlEntries takes the first link of every entry and the best title found
// in it, preferring heading-like elements over the link text.
func (c *Crawler) htmlEntries(doc *goquery.Document, pageURL string) []listingEntry {
	var entries []listingEntry
	doc.Find(c.profile.List.EntrySelector).Each(func(_ int, s *goquery.Selection) {
		anchor := s.Find("a[href]").First()
		if anchor.Length() == 0 && s.Is("a[href]") {
			anchor = s
		}
		href, ok := anchor.Attr("href")
		if !ok {
			return
		}
		link, err := resolveURL(pageURL, href)
		if err != nil {
			return
		}

		title := ""
		for _, sel := range c.profile.List.TitleOrder {
			if title = normalizeWhitespace(s.Find(sel).First().Text()); title != "" {
				break
			}
		}
		if title == "" {
			title, _ = anchor.Attr("title")
			title = normalizeWhitespace(title)
		}
		if title == "" {
			title = normalizeWhitespace(anchor.Text())
		}

		entries = append(entries, listingEntry{Link: link, Title: title})
	})
	return entries
}

// feedEntries reads a listing page served as RSS or Atom.
func feedEntries(body []byte, pageURL string) ([]listingEntry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing feed: %w", err)
	}

	entries := make([]listingEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		link, err := resolveURL(pageURL, item.Link)
		if err != nil {
			continue
		}
		entry := listingEntry{Link: link, Title: normalizeWhitespace(item.Title)}
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil {
			y, m, d := published.UTC().Date()
			day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			entry.PublishedAt = &day
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
