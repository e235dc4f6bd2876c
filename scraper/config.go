package scraper

import (
	"fmt"
	"strings"
)

// Listing formats.
const (
	FormatHTML = "html"
	FormatFeed = "feed"
)

// DatePolicy decides what happens to an article whose publication date cannot
// be recovered.
type DatePolicy string

const (
	// DateExclude drops the article.
	DateExclude DatePolicy = "exclude"
	// DateWindowEnd keeps the article and dates it at the end of the window.
	DateWindowEnd DatePolicy = "window-end"
)

// PaywallPolicy decides whether a teaser block counts as article body.
type PaywallPolicy string

const (
	// PaywallTeaser uses the public teaser as body.
	PaywallTeaser PaywallPolicy = "teaser"
	// PaywallSkip skips articles that only expose a teaser.
	PaywallSkip PaywallPolicy = "skip"
)

// EmptyPolicy decides what happens when no content container matches.
type EmptyPolicy string

const (
	// EmptyPageText falls back to the whole page text.
	EmptyPageText EmptyPolicy = "page-text"
	// EmptySkip skips the article.
	EmptySkip EmptyPolicy = "skip"
)

// SiteProfile describes the one website a run crawls: where its listing pages
// live and how to pull entries, bodies and dates out of its markup.
type SiteProfile struct {
	Name          string        `yaml:"name"`
	BaseURL       string        `yaml:"base_url"`
	Chronological bool          `yaml:"chronological"`
	DatePolicy    DatePolicy    `yaml:"date_policy"`
	PaywallPolicy PaywallPolicy `yaml:"paywall_policy"`
	EmptyPolicy   EmptyPolicy   `yaml:"empty_policy"`
	List          ListConfig    `yaml:"list"`
	Article       ArticleConfig `yaml:"article"`
	Date          DateConfig    `yaml:"date"`
}

// ListConfig defines how to enumerate entries on a listing page.
type ListConfig struct {
	Format        string   `yaml:"format"` // "html" or "feed"
	PagePattern   string   `yaml:"page_pattern"`
	EntrySelector string   `yaml:"entry_selector"`
	TitleOrder    []string `yaml:"title_selectors"`
}

// ArticleConfig defines how to extract text from an article page.
type ArticleConfig struct {
	ContentSelector string `yaml:"content_selector"`
	ContentPattern  string `yaml:"content_pattern"`
	TeaserSelector  string `yaml:"teaser_selector"`
}

// DateConfig defines the markers the date strategies look for.
type DateConfig struct {
	TimeMarkerClass string   `yaml:"time_marker_class"`
	Formats         []string `yaml:"formats"`
}

// DefaultProfile returns a profile with every selector set to the defaults
// the crawler understands. BaseURL is left empty.
func DefaultProfile() *SiteProfile {
	return &SiteProfile{
		Chronological: true,
		DatePolicy:    DateExclude,
		PaywallPolicy: PaywallTeaser,
		EmptyPolicy:   EmptyPageText,
		List: ListConfig{
			Format:        FormatHTML,
			PagePattern:   "p%d/",
			EntrySelector: "article",
			TitleOrder:    []string{"h2", "h3", "h4", "[class*=title]"},
		},
		Article: ArticleConfig{
			ContentSelector: "[data-type=text], .text-content",
			ContentPattern:  `(?i)article\w*(body|content)`,
			TeaserSelector:  ".article-lead, .teaser, [class*=intro]",
		},
		Date: DateConfig{
			TimeMarkerClass: "published",
			Formats:         []string{"2006-01-02", "02.01.2006", "2.1.2006", "2006/01/02"},
		},
	}
}

// PageURL returns the listing URL for the given 1-based page number.
func (p *SiteProfile) PageURL(page int) string {
	return p.BaseURL + fmt.Sprintf(p.List.PagePattern, page)
}

// Validate checks that the profile can drive a crawl.
func (p *SiteProfile) Validate() error {
	if p.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !validPagePattern(p.List.PagePattern) {
		return fmt.Errorf("list.page_pattern must contain exactly one %%d verb, got %q", p.List.PagePattern)
	}
	switch p.List.Format {
	case FormatHTML, FormatFeed:
	default:
		return fmt.Errorf("list.format must be %q or %q, got %q", FormatHTML, FormatFeed, p.List.Format)
	}
	switch p.DatePolicy {
	case DateExclude, DateWindowEnd:
	default:
		return fmt.Errorf("invalid date_policy %q", p.DatePolicy)
	}
	switch p.PaywallPolicy {
	case PaywallTeaser, PaywallSkip:
	default:
		return fmt.Errorf("invalid paywall_policy %q", p.PaywallPolicy)
	}
	switch p.EmptyPolicy {
	case EmptyPageText, EmptySkip:
	default:
		return fmt.Errorf("invalid empty_policy %q", p.EmptyPolicy)
	}
	return nil
}

// validPagePattern reports whether pattern formats one page number and
// nothing else. Literal percent signs must be written as %%.
func validPagePattern(pattern string) bool {
	rest := strings.ReplaceAll(pattern, "%%", "")
	return strings.Count(rest, "%") == 1 && strings.Count(rest, "%d") == 1
}
