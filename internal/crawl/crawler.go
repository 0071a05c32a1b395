// Package crawl discovers every release of every plugin published on a
// package index.
//
// The index has no "list everything" endpoint: the crawler starts from a
// keyword search and follows each matching package's release history.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/git-pkgs/plugins/internal/core"
	"github.com/git-pkgs/plugins/internal/pypi"
)

// DefaultConcurrency is the number of release documents fetched in parallel.
const DefaultConcurrency = 4

// Index is the part of the package index used by the crawler.
type Index interface {
	Search(ctx context.Context, spec map[string]string) ([]pypi.Match, error)
	FetchRelease(ctx context.Context, name, version string) (*pypi.Release, error)
}

// Crawler finds all releases of packages tagged with a keyword.
type Crawler struct {
	index       Index
	tag         string
	concurrency int
	logger      *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithConcurrency sets the number of fetch workers.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger used for dropped releases.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = l
	}
}

// New creates a crawler for packages whose keywords contain tag.
func New(index Index, tag string, opts ...Option) *Crawler {
	c := &Crawler{
		index:       index,
		tag:         tag,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type releaseKey struct {
	name    string
	version string
}

func keyOf(name, version string) releaseKey {
	return releaseKey{name: core.NormalizeName(name), version: version}
}

type job struct {
	name    string
	version string
}

type fetchResult struct {
	job     job
	release *pypi.Release
	err     error
}

// Crawl returns the release documents of every tagged package, including
// historical releases. A failed search or a cancelled ctx is an error;
// releases that cannot be fetched are logged and dropped. The result is
// unordered.
//
// The dedup set and the work queue are owned by the calling goroutine;
// workers only fetch. Each release is fetched at most once.
func (c *Crawler) Crawl(ctx context.Context) ([]*pypi.Release, error) {
	matches, err := c.index.Search(ctx, map[string]string{"keywords": c.tag})
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", c.tag, err)
	}

	seen := make(map[releaseKey]struct{})
	var queue []job
	schedule := func(name, version string) {
		k := keyOf(name, version)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		queue = append(queue, job{name: name, version: version})
	}

	for _, m := range matches {
		schedule(m.Name, m.Version)
	}

	jobs := make(chan job)
	results := make(chan fetchResult)
	for range c.concurrency {
		go func() {
			for j := range jobs {
				release, err := c.index.FetchRelease(ctx, j.name, j.version)
				results <- fetchResult{job: j, release: release, err: err}
			}
		}()
	}

	var releases []*pypi.Release
	inFlight := 0
	for len(queue) > 0 || inFlight > 0 {
		var send chan job
		var next job
		if len(queue) > 0 {
			send = jobs
			next = queue[0]
		}

		select {
		case send <- next:
			queue = queue[1:]
			inFlight++
		case res := <-results:
			inFlight--
			release := c.accept(res)
			if release == nil {
				continue
			}
			releases = append(releases, release)
			name := release.Record().Name
			if name == "" {
				name = res.job.name
			}
			for _, v := range release.Versions() {
				schedule(name, v)
			}
		}
	}
	close(jobs)

	// Fetches that failed because ctx ended were dropped above, so the
	// result would be incomplete.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawling %q: %w", c.tag, err)
	}

	c.logger.Debug("crawl finished", "tag", c.tag, "fetched", len(seen), "releases", len(releases))
	return releases, nil
}

func (c *Crawler) accept(res fetchResult) *pypi.Release {
	j := res.job
	switch {
	case errors.Is(res.err, core.ErrNotFound):
		c.logger.Debug("release not found", "name", j.name, "version", j.version)
		return nil
	case res.err != nil:
		c.logger.Warn("fetching release failed", "name", j.name, "version", j.version, "err", res.err)
		return nil
	case !res.release.HasKeyword(c.tag):
		c.logger.Debug("release not tagged", "name", j.name, "version", j.version, "tag", c.tag)
		return nil
	}
	return res.release
}

// Records converts release documents to plugin records.
func Records(releases []*pypi.Release) []core.Record {
	records := make([]core.Record, 0, len(releases))
	for _, r := range releases {
		records = append(records, r.Record())
	}
	return records
}
