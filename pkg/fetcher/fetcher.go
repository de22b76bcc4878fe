// Package fetcher downloads web pages and reduces them to readable text.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/perbu/ragchat/pkg/observability"
)

// ErrFetchFailed wraps every error returned by Fetch.
var ErrFetchFailed = errors.New("fetch failed")

// Page is the cleaned content of one URL.
type Page struct {
	URL   string
	Title string
	Body  string
}

// Config controls HTTP behaviour.
type Config struct {
	UserAgent       string
	Timeout         time.Duration // per attempt
	MaxRetries      int
	InitialInterval time.Duration // first backoff delay
	MaxBodyBytes    int64         // larger responses are truncated
}

// DefaultMaxBodyBytes caps how much of a response is parsed.
const DefaultMaxBodyBytes = 5 << 20

// Fetcher retrieves pages over HTTP.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger observability.Logger
}

// New creates a Fetcher. A zero Timeout means 10 seconds and a zero
// MaxBodyBytes means DefaultMaxBodyBytes.
func New(cfg Config, logger observability.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// retryable reports whether a status code is worth another attempt.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Fetch downloads url and extracts its title and main text. Network errors,
// 5xx and 429 responses are retried with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialInterval
	b.MaxElapsedTime = 0

	attempt := 0
	var doc *goquery.Document
	op := func() error {
		attempt++
		d, err := f.get(ctx, url)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !retryable(se.code) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			f.logger.Debug("Fetch attempt failed", map[string]interface{}{
				"url":     url,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}
		doc = d
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return Page{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
	}

	title, body := Extract(doc)
	return Page{URL: url, Title: title, Body: body}, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}
