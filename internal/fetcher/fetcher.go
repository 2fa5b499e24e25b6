// Package fetcher downloads subsidy pages and extracts their text and links.
package fetcher

import (
	"context"
	"fmt"
)

// Fetcher retrieves one page.
type Fetcher interface {
	// FetchPage downloads rawURL and parses it. Non-2xx responses return a
	// *StatusError.
	FetchPage(ctx context.Context, rawURL string) (*Page, error)
}

// Link is an anchor found on a page, resolved against the page URL.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Page is a fetched and parsed document.
type Page struct {
	URL         string
	HTML        string
	Text        string
	Title       string
	Links       []Link
	StatusCode  int
	ContentType string
	ContentHash string

	// Raw is the undecoded response body.
	Raw []byte
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: http %d from %s", e.StatusCode, e.URL)
}

// Code returns a short domain_policy error code such as "http_404".
func (e *StatusError) Code() string {
	return fmt.Sprintf("http_%d", e.StatusCode)
}
