// Package client provides the HTTP client used to query the package index.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/git-pkgs/plugins/fetch"
	"github.com/git-pkgs/plugins/internal/core"
)

// Client wraps a fetcher with JSON and XML-RPC helpers.
type Client struct {
	fetcher fetch.Doer
}

type options struct {
	fetcher   fetch.Doer
	fetchOpts []fetch.Option
}

// Option configures a Client.
type Option func(*options)

// WithFetcher uses f for all requests instead of the default
// circuit-breaking fetcher.
func WithFetcher(f fetch.Doer) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithUserAgent sets the User-Agent header sent to the index.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.fetchOpts = append(o.fetchOpts, fetch.WithUserAgent(ua))
	}
}

// WithLogger sets the logger used to report retried requests.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.fetchOpts = append(o.fetchOpts, fetch.WithLogger(l))
	}
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.fetchOpts = append(o.fetchOpts, fetch.WithMaxRetries(n))
	}
}

// WithBaseDelay sets the base delay between retries.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		o.fetchOpts = append(o.fetchOpts, fetch.WithBaseDelay(d))
	}
}

// WithAuthorization sends value as the Authorization header on requests
// whose URL starts with prefix.
func WithAuthorization(prefix, value string) Option {
	return func(o *options) {
		o.fetchOpts = append(o.fetchOpts, fetch.WithAuthFunc(func(url string) (string, string) {
			if value == "" || !strings.HasPrefix(url, prefix) {
				return "", ""
			}
			return "Authorization", value
		}))
	}
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	f := o.fetcher
	if f == nil {
		f = fetch.NewBreakerDoer(fetch.NewFetcher(o.fetchOpts...), 0)
	}
	return &Client{fetcher: f}
}

// DefaultClient returns a client with sensible defaults:
// - 5m request timeout
// - 3 retries with exponential backoff
// - per-host circuit breaking
func DefaultClient() *Client {
	return NewClient()
}

// GetJSON fetches url and decodes the JSON response into v.
// A 404 response is returned as *core.HTTPError.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	doc, err := c.fetcher.Get(ctx, url)
	if err != nil {
		return translate(url, err)
	}
	defer func() { _ = doc.Body.Close() }()

	if err := json.NewDecoder(doc.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// PostXML posts an XML document to url and returns the response body.
func (c *Client) PostXML(ctx context.Context, url string, body []byte) ([]byte, error) {
	doc, err := c.fetcher.Post(ctx, url, "text/xml", body)
	if err != nil {
		return nil, translate(url, err)
	}
	defer func() { _ = doc.Body.Close() }()

	data, err := io.ReadAll(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return data, nil
}

// BreakerState returns the circuit breaker state per index host, if the
// client uses a circuit-breaking fetcher.
func (c *Client) BreakerState() map[string]string {
	if b, ok := c.fetcher.(*fetch.BreakerDoer); ok {
		return b.State()
	}
	return nil
}

func translate(url string, err error) error {
	if errors.Is(err, fetch.ErrNotFound) {
		return &core.HTTPError{StatusCode: http.StatusNotFound, URL: url}
	}
	return err
}
