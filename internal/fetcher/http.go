package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/grantwatch/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	Delay        time.Duration
	MaxBodyBytes int64
}

// AdaptiveLimiter spaces requests to one host. A 429 halves the rate (down
// to a quarter of the initial rate); each success restores 20% of it, never
// exceeding the initial rate.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates a limiter allowing one request per delay.
func NewAdaptiveLimiter(delay time.Duration) *AdaptiveLimiter {
	r := rate.Every(delay)
	if delay <= 0 {
		r = rate.Inf
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(r, 1),
		initialRate: r,
		minRate:     r / 4,
		currentRate: r,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess moves the rate back toward the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialRate == rate.Inf {
		return
	}
	newRate := a.currentRate * 1.2
	if newRate > a.initialRate {
		newRate = a.initialRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialRate == rate.Inf {
		return
	}
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http. It makes a single attempt
// per call; failed pages are retried by the next scheduled run.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "grantwatch/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.Delay)
		f.limiters[host] = lim
	}
	return lim
}

// FetchPage downloads and parses rawURL.
func (f *HTTPFetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, eris.Errorf("fetcher: invalid url %q", rawURL)
	}

	lim := f.limiterFor(u.Host)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Language", "ja,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
		}
		return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(serr, resp.StatusCode)
		}
		return nil, serr
	}
	lim.OnSuccess()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body %s", rawURL)
	}

	contentType := resp.Header.Get("Content-Type")
	page := &Page{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		ContentHash: Hash(body),
		Raw:         body,
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "" && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		// Binary documents (PDFs) are hashed and stored but not parsed.
		return page, nil
	}

	html := decodeCharset(body, contentType)
	if err := parseHTML(page, u, html); err != nil {
		return nil, err
	}
	return page, nil
}

// Hash returns the hex sha256 of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
