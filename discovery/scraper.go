package discovery

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newsmood/scraper"
)

// NoTitle is used when an article page has no heading.
const NoTitle = "No title"

// Article is the extracted content of one article page.
type Article struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	DateSource  string     `json:"date_source,omitempty"`
	BodySource  string     `json:"body_source"`
}

// Body sources, in fallback order.
const (
	BodyFromContent   = "content"
	BodyFromContainer = "container"
	BodyFromTeaser    = "teaser"
	BodyFromPage      = "page"
)

// Fetcher resolves article URLs into articles.
type Fetcher struct {
	client         *Client
	profile        *scraper.SiteProfile
	dates          *DateExtractor
	contentPattern *regexp.Regexp
	logger         *log.Logger
}

// NewFetcher creates a fetcher for the given site profile. A nil logger
// writes to the standard logger.
func NewFetcher(client *Client, profile *scraper.SiteProfile, logger *log.Logger) (*Fetcher, error) {
	var pattern *regexp.Regexp
	if profile.Article.ContentPattern != "" {
		var err error
		pattern, err = regexp.Compile(profile.Article.ContentPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid content_pattern: %w", err)
		}
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Fetcher{
		client:         client,
		profile:        profile,
		dates:          NewDateExtractor(profile.Date),
		contentPattern: pattern,
		logger:         logger,
	}, nil
}

// FetchArticles fetches every URL in order. A failing URL is logged and
// skipped; the rest are still fetched. It stops early only when ctx is done.
func (f *Fetcher) FetchArticles(ctx context.Context, urls []string) []Article {
	articles := make([]Article, 0, len(urls))
	for _, url := range urls {
		if ctx.Err() != nil {
			f.logger.Printf("WARN: article fetch cancelled after %d of %d", len(articles), len(urls))
			break
		}

		article, err := f.FetchCandidate(ctx, Candidate{URL: url})
		if err != nil {
			f.logger.Printf("ERROR: skipping article %s: %v", url, err)
			continue
		}
		articles = append(articles, *article)
	}
	return articles
}

// FetchCandidate extracts the article of a candidate, reusing the page
// discovery already parsed. The date that admitted the candidate replaces any
// date found on the page.
func (f *Fetcher) FetchCandidate(ctx context.Context, c Candidate) (*Article, error) {
	doc := c.page
	if doc == nil {
		var err error
		if doc, err = f.client.FetchHTML(ctx, c.URL); err != nil {
			return nil, err
		}
	}

	article, err := f.ExtractArticle(doc, c.URL)
	if err != nil {
		return nil, err
	}
	if c.PublishedAt != nil {
		article.PublishedAt = c.PublishedAt
		article.DateSource = c.DateSource
	}
	return article, nil
}

// ExtractArticle pulls title, body and date out of an article page. The body
// is the first non-empty match of: the primary text containers, a container
// whose class matches the content pattern (its paragraphs joined), the teaser
// block, and finally the whole page text.
func (f *Fetcher) ExtractArticle(doc *goquery.Document, url string) (*Article, error) {
	article := &Article{
		URL:   url,
		Title: extractTitle(doc),
	}

	body, source, err := f.extractBody(doc)
	if err != nil {
		return nil, err
	}
	article.Body = body
	article.BodySource = source

	article.PublishedAt, article.DateSource = f.dates.Extract(doc)

	return article, nil
}

func (f *Fetcher) extractBody(doc *goquery.Document) (string, string, error) {
	if sel := f.profile.Article.ContentSelector; sel != "" {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := normalizeWhitespace(s.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), BodyFromContent, nil
		}
	}

	if f.contentPattern != nil {
		container := doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			class, _ := s.Attr("class")
			return f.contentPattern.MatchString(class)
		}).First()

		var paragraphs []string
		container.Find("p").Each(func(_ int, p *goquery.Selection) {
			if text := normalizeWhitespace(p.Text()); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n"), BodyFromContainer, nil
		}
	}

	if sel := f.profile.Article.TeaserSelector; sel != "" {
		if text := normalizeWhitespace(doc.Find(sel).First().Text()); text != "" {
			if f.profile.PaywallPolicy == scraper.PaywallSkip {
				return "", "", ErrPaywalled
			}
			return text, BodyFromTeaser, nil
		}
	}

	if f.profile.EmptyPolicy == scraper.EmptySkip {
		return "", "", ErrEmpty
	}
	if text := normalizeWhitespace(doc.Find("body").Text()); text != "" {
		return text, BodyFromPage, nil
	}
	return "", "", ErrEmpty
}

// extractTitle prefers the first secondary heading, then the primary one.
func extractTitle(doc *goquery.Document) string {
	for _, sel := range []string{"h2", "h1"} {
		if title := normalizeWhitespace(doc.Find(sel).First().Text()); title != "" {
			return title
		}
	}
	return NoTitle
}

// normalizeWhitespace collapses runs of whitespace into single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
