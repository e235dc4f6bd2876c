package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pevans/newsmood/scraper"
	"github.com/pevans/newsmood/wordlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSite serves listing pages under /news/pN/ and article pages under
// /articles/<slug>. Dates are rendered with the default marker class; an
// empty date renders no date at all.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[int][]fakeEntry
	requests []string
	failPage int
}

type fakeEntry struct {
	slug  string
	title string
	date  string
}

func (s *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()

	var page int
	if _, err := fmt.Sscanf(r.URL.Path, "/news/p%d/", &page); err == nil {
		if page == s.failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var b strings.Builder
		b.WriteString("<html><body>")
		for _, e := range s.pages[page] {
			fmt.Fprintf(&b, `<article><a href="/articles/%s"><span>weiterlesen</span></a><h2>%s</h2></article>`, e.slug, e.title)
		}
		b.WriteString("</body></html>")
		w.Write([]byte(b.String()))
		return
	}

	slug := strings.TrimPrefix(r.URL.Path, "/articles/")
	for _, entries := range s.pages {
		for _, e := range entries {
			if e.slug != slug {
				continue
			}
			date := ""
			if e.date != "" {
				date = fmt.Sprintf(`<time class="published" datetime="%sT09:00:00+01:00"></time>`, e.date)
			}
			fmt.Fprintf(w, `<html><body><h2>%s</h2>%s<div data-type="text">Text</div></body></html>`, e.title, date)
			return
		}
	}
	http.NotFound(w, r)
}

func (s *fakeSite) fetched(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.requests {
		if p == path {
			return true
		}
	}
	return false
}

// Test helper: start a fake site and a crawler pointing at it
func newTestCrawler(t *testing.T, site *fakeSite, mutate func(*scraper.SiteProfile)) (*Crawler, *bytes.Buffer) {
	server := httptest.NewServer(site)
	t.Cleanup(server.Close)

	profile := scraper.DefaultProfile()
	profile.BaseURL = server.URL + "/news/"
	if mutate != nil {
		mutate(profile)
	}

	var buf bytes.Buffer
	return NewCrawler(NewClient(2*time.Second), profile, log.New(&buf, "", 0)), &buf
}

func testQuery() Query {
	return Query{
		MaxArticles:  10,
		MaxPages:     5,
		Start:        day(2024, 1, 1),
		End:          day(2024, 3, 31),
		ContextWords: wordlist.New("elektro", "hybrid"),
		Blacklist:    wordlist.New("rückruf"),
	}
}

func standardSite() *fakeSite {
	return &fakeSite{pages: map[int][]fakeEntry{
		1: {
			{"a1", "Neuer Elektro-SUV vorgestellt", "2024-03-20"},
			{"a2", "Kochrezept der Woche", "2024-03-19"},
			{"a3", "Elektro: Rückruf für Modell X", "2024-03-18"},
			{"a4", "Hybrid im Test", "2024-04-02"},
			{"a1", "Neuer Elektro-SUV vorgestellt", "2024-03-20"},
		},
		2: {
			{"a5", "Elektro-Kombi im Alltag", "2024-02-01"},
			{"a6", "Hybrid-Flotte wächst", "2023-12-15"},
			{"a7", "Elektro-Roadster", "2023-12-10"},
		},
		3: {
			{"a8", "Elektro-Bus", "2023-11-01"},
		},
	}}
}

// TestDiscover_FiltersAndTerminates verifies title filters, the date window,
// duplicate suppression and the early date cutoff
func TestDiscover_FiltersAndTerminates(t *testing.T) {
	site := standardSite()
	crawler, _ := newTestCrawler(t, site, nil)

	var progress []string
	crawler.OnProgress(func(discovered, max, page int) {
		progress = append(progress, fmt.Sprintf("%d/%d@%d", discovered, max, page))
	})

	d, err := crawler.Discover(context.Background(), testQuery())
	require.NoError(t, err)

	urls := d.URLs()
	require.Len(t, urls, 2)
	assert.True(t, strings.HasSuffix(urls[0], "/articles/a1"))
	assert.True(t, strings.HasSuffix(urls[1], "/articles/a5"))
	assert.Equal(t, "Neuer Elektro-SUV vorgestellt", d.Candidates[0].Title, "heading is preferred over link text")

	assert.Equal(t, StateAborted, d.State)
	assert.Equal(t, ReasonDateCutoff, d.Reason)
	assert.Equal(t, StateAborted, crawler.State())
	assert.Equal(t, 2, d.Pages)
	assert.Equal(t, []string{"1/10@1", "2/10@2"}, progress)

	assert.False(t, site.fetched("/articles/a2"), "non-matching titles are never fetched")
	assert.False(t, site.fetched("/articles/a3"), "blacklisted titles are never fetched")
	assert.False(t, site.fetched("/articles/a7"), "entries after the cutoff are never fetched")
	assert.False(t, site.fetched("/news/p3/"), "pages after the cutoff are never fetched")

	for _, c := range d.Candidates {
		require.NotNil(t, c.PublishedAt)
		assert.True(t, testQuery().Contains(*c.PublishedAt))
		assert.Equal(t, DateFromTimeMarker, c.DateSource)
		assert.NotNil(t, c.page, "the page fetched for the date is kept")
	}
}

// TestDiscover_NotChronological verifies older entries are skipped rather than
// ending discovery
func TestDiscover_NotChronological(t *testing.T) {
	crawler, _ := newTestCrawler(t, standardSite(), func(p *scraper.SiteProfile) {
		p.Chronological = false
	})

	d, err := crawler.Discover(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Len(t, d.Candidates, 2)
	assert.Equal(t, StateCompleted, d.State)
	assert.Equal(t, ReasonEmptyPage, d.Reason, "page 4 has no entries")
	assert.Equal(t, 4, d.Pages)
}

// TestDiscover_ArticleBudget verifies the result never exceeds MaxArticles
func TestDiscover_ArticleBudget(t *testing.T) {
	crawler, _ := newTestCrawler(t, standardSite(), nil)

	q := testQuery()
	q.MaxArticles = 1
	d, err := crawler.Discover(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, d.Candidates, 1)
	assert.Equal(t, StateCompleted, d.State)
	assert.Equal(t, ReasonArticleBudget, d.Reason)
}

// TestDiscover_PageBudget verifies paging stops after MaxPages
func TestDiscover_PageBudget(t *testing.T) {
	site := standardSite()
	crawler, _ := newTestCrawler(t, site, nil)

	q := testQuery()
	q.MaxPages = 1
	d, err := crawler.Discover(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, d.Candidates, 1)
	assert.Equal(t, ReasonPageBudget, d.Reason)
	assert.False(t, site.fetched("/news/p2/"))
}

// TestDiscover_UnresolvedDatePolicies verifies both date policies
func TestDiscover_UnresolvedDatePolicies(t *testing.T) {
	newSite := func() *fakeSite {
		return &fakeSite{pages: map[int][]fakeEntry{
			1: {{"n1", "Elektro ohne Datum", ""}},
		}}
	}

	crawler, logs := newTestCrawler(t, newSite(), nil)
	d, err := crawler.Discover(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Empty(t, d.Candidates, "exclude policy drops undated articles")
	assert.Contains(t, logs.String(), ErrNoDate.Error())

	crawler, _ = newTestCrawler(t, newSite(), func(p *scraper.SiteProfile) {
		p.DatePolicy = scraper.DateWindowEnd
	})
	q := testQuery()
	d, err = crawler.Discover(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, d.Candidates, 1)
	assert.True(t, q.End.Equal(*d.Candidates[0].PublishedAt), "window-end policy dates at the window end")
}

// TestDiscover_TransportErrorKeepsPartialResults verifies a failing listing
// page ends in the error state without discarding earlier results
func TestDiscover_TransportErrorKeepsPartialResults(t *testing.T) {
	site := &fakeSite{
		pages: map[int][]fakeEntry{
			1: {{"a1", "Elektro eins", "2024-03-01"}},
			2: {{"a2", "Elektro zwei", "2024-02-01"}},
		},
		failPage: 2,
	}
	crawler, _ := newTestCrawler(t, site, nil)

	d, err := crawler.Discover(context.Background(), testQuery())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
	require.NotNil(t, d)
	assert.Equal(t, StateError, d.State)
	assert.Len(t, d.Candidates, 1)
}

// TestDiscover_Cancelled verifies cancellation is checked between pages
func TestDiscover_Cancelled(t *testing.T) {
	crawler, _ := newTestCrawler(t, standardSite(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := crawler.Discover(ctx, testQuery())
	require.NoError(t, err)

	assert.Equal(t, StateAborted, d.State)
	assert.Equal(t, ReasonCancelled, d.Reason)
	assert.Empty(t, d.Candidates)
}

// TestDiscover_InvalidQuery verifies bounds validation
func TestDiscover_InvalidQuery(t *testing.T) {
	crawler, _ := newTestCrawler(t, standardSite(), nil)

	q := testQuery()
	q.End = q.Start.AddDate(0, 0, -1)
	d, err := crawler.Discover(context.Background(), q)

	assert.Error(t, err)
	assert.Nil(t, d)
	assert.Equal(t, StateIdle, crawler.State())
}

// TestDiscover_FeedListing verifies listing pages served as RSS
func TestDiscover_FeedListing(t *testing.T) {
	const rss = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>News</title>
<item><title>Elektro im Winter</title><link>/articles/f1</link><pubDate>Mon, 04 Mar 2024 08:00:00 GMT</pubDate></item>
<item><title>Elektro ohne Datum</title><link>/articles/f2</link></item>
<item><title>Wetter</title><link>/articles/f3</link><pubDate>Mon, 04 Mar 2024 08:00:00 GMT</pubDate></item>
</channel></rss>`

	var mu sync.Mutex
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/feed/p1/":
			w.Write([]byte(rss))
		case "/articles/f2":
			w.Write([]byte(`<html><head><meta name="date" content="2024-02-10"></head><body></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	profile := scraper.DefaultProfile()
	profile.BaseURL = server.URL + "/feed/"
	profile.List.Format = scraper.FormatFeed
	crawler := NewCrawler(NewClient(0), profile, log.New(&bytes.Buffer{}, "", 0))

	q := testQuery()
	q.MaxPages = 2
	d, err := crawler.Discover(context.Background(), q)

	// page 2 is missing, which is a transport failure
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Len(t, d.Candidates, 2)
	assert.Equal(t, server.URL+"/articles/f1", d.Candidates[0].URL)
	assert.True(t, day(2024, 3, 4).Equal(*d.Candidates[0].PublishedAt))
	assert.True(t, day(2024, 2, 10).Equal(*d.Candidates[1].PublishedAt))
	assert.Equal(t, DateFromFeed, d.Candidates[0].DateSource)
	assert.Nil(t, d.Candidates[0].page)
	assert.Equal(t, DateFromMetaDate, d.Candidates[1].DateSource)
	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, requests, "/articles/f1", "feed dates avoid article fetches")
}
