// Package cache persists the crawled plugin list between runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/git-pkgs/plugins/internal/core"
)

const (
	// FormatVersion is bumped whenever the layout of the cache file changes.
	// Files written with another version are ignored.
	FormatVersion = 5

	// TTL is how long a cache file is used before the index is crawled again.
	TTL = 600 * time.Second

	// FileName is the name of the cache file inside the cache directory.
	FileName = "plugins.json"
)

type entry struct {
	Version   int                         `json:"version"`
	Timestamp float64                     `json:"timestamp"`
	Plugins   map[string][]map[string]any `json:"plugins"`
}

// FetchFunc produces the records to cache, typically by crawling the index.
type FetchFunc func(ctx context.Context) ([]core.Record, error)

// Cache is a TTL-bounded file cache of the remote plugin list.
//
// Load and save failures are logged and treated as a miss; they never fail a
// lookup. There is no locking between processes: the last writer wins, and a
// file that cannot be parsed is a miss.
type Cache struct {
	path   string
	now    func() time.Time
	logger *slog.Logger
	group  singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for load and save failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache stored in dir.
func New(dir string, opts ...Option) *Cache {
	c := &Cache{
		path:   filepath.Join(dir, FileName),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the location of the cache file.
func (c *Cache) Path() string {
	return c.path
}

// GetOrRefresh returns the cached records grouped by normalized name if the
// cache is fresh. Otherwise it calls fetch, stores the result and returns it.
// Concurrent callers share one refresh. The returned map must not be
// modified.
func (c *Cache) GetOrRefresh(ctx context.Context, fetch FetchFunc) (map[string][]core.Record, error) {
	if groups, ok := c.Load(); ok {
		return groups, nil
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		records, err := fetch(ctx)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return nil, err
		}
		groups := core.GroupRecords(records)
		c.Save(groups)
		return groups, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string][]core.Record), nil
}

// Load reads the cache file. It reports false if the file is missing,
// unreadable, written by another format version or older than TTL.
func (c *Cache) Load() (map[string][]core.Record, bool) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("no plugin cache", "path", c.path)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("reading plugin cache failed", "path", c.path, "err", err)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("parsing plugin cache failed", "path", c.path, "err", err)
		return nil, false
	}

	if e.Version != FormatVersion {
		c.logger.Debug("plugin cache format changed", "path", c.path, "version", e.Version, "want", FormatVersion)
		return nil, false
	}
	if !c.fresh(e.Timestamp) {
		c.logger.Debug("plugin cache expired", "path", c.path)
		return nil, false
	}

	groups := make(map[string][]core.Record, len(e.Plugins))
	for name, maps := range e.Plugins {
		records := make([]core.Record, 0, len(maps))
		for _, m := range maps {
			records = append(records, core.RecordFromMap(m))
		}
		groups[name] = records
	}
	return groups, true
}

func (c *Cache) fresh(timestamp float64) bool {
	written := time.UnixMicro(int64(math.Round(timestamp * 1e6)))
	age := c.now().Sub(written)
	return age >= 0 && age < TTL
}

// Save writes groups to the cache file with the current time. Failures are
// logged and otherwise ignored.
func (c *Cache) Save(groups map[string][]core.Record) {
	if err := c.save(groups); err != nil {
		c.logger.Warn("writing plugin cache failed", "path", c.path, "err", err)
	}
}

func (c *Cache) save(groups map[string][]core.Record) error {
	e := entry{
		Version:   FormatVersion,
		Timestamp: float64(c.now().UnixMicro()) / 1e6,
		Plugins:   make(map[string][]map[string]any, len(groups)),
	}
	for name, records := range groups {
		maps := make([]map[string]any, 0, len(records))
		for _, r := range records {
			maps = append(maps, r.ToMap())
		}
		e.Plugins[name] = maps
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".plugins-*.json")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Invalidate removes the cache file so the next lookup crawls the index.
func (c *Cache) Invalidate() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing plugin cache: %w", err)
	}
	return nil
}
