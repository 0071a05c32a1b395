package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/git-pkgs/plugins/client"
	"github.com/git-pkgs/plugins/internal/pypi"
)

// Source lists the release documents of every published plugin.
type Source interface {
	Kind() string
	Releases(ctx context.Context) ([]*pypi.Release, error)
}

// Options configures a Source.
type Options struct {
	Tag         string
	Concurrency int
	Client      *client.Client
	Logger      *slog.Logger
}

// Factory creates a source reading from location.
type Factory func(location string, opts Options) Source

const (
	KindIndex = "index"
	KindFile  = "file"
)

var (
	factories = make(map[string]Factory)
	defaults  = make(map[string]string)
	mu        sync.RWMutex
)

func init() {
	Register(KindIndex, pypi.DefaultURL, func(location string, opts Options) Source {
		var crawlOpts []Option
		if opts.Concurrency > 0 {
			crawlOpts = append(crawlOpts, WithConcurrency(opts.Concurrency))
		}
		if opts.Logger != nil {
			crawlOpts = append(crawlOpts, WithLogger(opts.Logger))
		}
		return New(pypi.New(location, opts.Client), opts.Tag, crawlOpts...)
	})
	Register(KindFile, "", func(location string, _ Options) Source {
		return &fileSource{path: location}
	})
}

// Register adds a source factory. defaultLocation is used when NewSource is
// called with an empty location.
func Register(kind, defaultLocation string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = factory
	defaults[kind] = defaultLocation
}

// NewSource creates a source of the given kind.
func NewSource(kind, location string, opts Options) (Source, error) {
	mu.RLock()
	factory, ok := factories[kind]
	defaultLocation := defaults[kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown source kind: %s", kind)
	}
	if location == "" {
		location = defaultLocation
	}
	if location == "" {
		return nil, fmt.Errorf("%s source needs a location", kind)
	}
	return factory(location, opts), nil
}

// Open picks the source kind from location: an existing local file is
// replayed, anything else is crawled as an index URL.
func Open(location string, opts Options) (Source, error) {
	if IsFile(location) {
		return NewSource(KindFile, location, opts)
	}
	return NewSource(KindIndex, location, opts)
}

// Kinds returns the registered source kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultLocation returns the default location of a source kind.
func DefaultLocation(kind string) string {
	mu.RLock()
	defer mu.RUnlock()
	return defaults[kind]
}

func (c *Crawler) Kind() string { return KindIndex }

// Releases crawls the index.
func (c *Crawler) Releases(ctx context.Context) ([]*pypi.Release, error) {
	return c.Crawl(ctx)
}

type fileSource struct {
	path string
}

func (f *fileSource) Kind() string { return KindFile }

func (f *fileSource) Releases(ctx context.Context) ([]*pypi.Release, error) {
	return LoadFile(f.path)
}
