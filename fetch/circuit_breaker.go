package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// DefaultTripThreshold is the number of consecutive failures that opens a
// host's breaker.
const DefaultTripThreshold = 5

// BreakerDoer wraps a Doer with one circuit breaker per index host.
// Not-found responses are answers, not failures, and never trip a breaker.
type BreakerDoer struct {
	next      Doer
	threshold int64

	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
}

// NewBreakerDoer wraps next. A threshold below one uses DefaultTripThreshold.
func NewBreakerDoer(next Doer, threshold int) *BreakerDoer {
	if threshold < 1 {
		threshold = DefaultTripThreshold
	}
	return &BreakerDoer{
		next:      next,
		threshold: int64(threshold),
		breakers:  make(map[string]*circuit.Breaker),
	}
}

func (b *BreakerDoer) breaker(host string) *circuit.Breaker {
	b.mu.RLock()
	br, ok := b.breakers[host]
	b.mu.RUnlock()
	if ok {
		return br
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if br, ok := b.breakers[host]; ok {
		return br
	}

	// An open breaker lets one trial request through after 30s, then backs off to 5m.
	reopen := backoff.NewExponentialBackOff()
	reopen.InitialInterval = 30 * time.Second
	reopen.MaxInterval = 5 * time.Minute
	reopen.Multiplier = 2.0
	reopen.Reset()

	br = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    reopen,
		ShouldTrip: circuit.ThresholdTripFunc(b.threshold),
	})
	b.breakers[host] = br
	return br
}

// Get performs a GET through the host's breaker.
func (b *BreakerDoer) Get(ctx context.Context, rawURL string) (*Document, error) {
	return b.call(rawURL, func() (*Document, error) {
		return b.next.Get(ctx, rawURL)
	})
}

// Post performs a POST through the host's breaker.
func (b *BreakerDoer) Post(ctx context.Context, rawURL, contentType string, body []byte) (*Document, error) {
	return b.call(rawURL, func() (*Document, error) {
		return b.next.Post(ctx, rawURL, contentType, body)
	})
}

func (b *BreakerDoer) call(rawURL string, fn func() (*Document, error)) (*Document, error) {
	host := hostOf(rawURL)
	br := b.breaker(host)
	if !br.Ready() {
		return nil, fmt.Errorf("circuit open for %s: %w", host, ErrUpstreamDown)
	}

	var doc *Document
	var notFound error
	err := br.Call(func() error {
		var err error
		doc, err = fn()
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)

	switch {
	case err != nil:
		return nil, err
	case notFound != nil:
		return nil, notFound
	}
	return doc, nil
}

// hostOf returns the breaker key of a URL: its host, or the URL itself
// (truncated) when it has none.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}

// State returns "open" or "closed" for every host seen so far.
func (b *BreakerDoer) State() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]string, len(b.breakers))
	for host, br := range b.breakers {
		if br.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}
