package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout bounds every listing and article request.
const DefaultTimeout = 10 * time.Second

const userAgent = "newsmood/1.0 (news sentiment crawler)"

// ErrEmpty is returned when no article body could be extracted.
var ErrEmpty = errors.New("no extractable body")

// ErrPaywalled is returned when an article only exposes a teaser and the
// profile asks to skip such articles.
var ErrPaywalled = errors.New("article is paywalled")

// ErrNoDate is returned when no date strategy produced a parseable date.
var ErrNoDate = errors.New("publication date not found")

// TransportError describes a failed HTTP exchange. StatusCode is zero when
// the request never got a response.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: HTTP error: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client performs the sequential GET requests of a run.
type Client struct {
	http *http.Client
}

// NewClient creates a client whose requests time out after timeout. A zero
// timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// Get fetches url and returns the response body. Only HTTP 200 counts as
// success; anything else is a *TransportError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	return body, nil
}

// FetchHTML fetches url and parses it with goquery.
func (c *Client) FetchHTML(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
