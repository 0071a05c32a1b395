// Package local lists the plugins installed in a set of site directories.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/git-pkgs/plugins/internal/core"
)

const DefaultHost = "plover"

// Scanner enumerates installed distributions and keeps those exposing
// entry points for the host application.
type Scanner struct {
	dirs      []string
	host      string
	namespace string
	logger    *slog.Logger
}

type Option func(*Scanner)

// WithHost sets the host application. Its own distribution is never listed.
func WithHost(host string) Option {
	return func(s *Scanner) {
		if host != "" {
			s.host = host
		}
	}
}

// WithNamespace sets the entry point group plugins must declare. The default
// is "<host>.plugins".
func WithNamespace(ns string) Option {
	return func(s *Scanner) {
		s.namespace = ns
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// New creates a scanner for siteDirs. userSite, when set, is always scanned
// last.
func New(siteDirs []string, userSite string, opts ...Option) *Scanner {
	s := &Scanner{
		host:   DefaultHost,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.namespace == "" {
		s.namespace = s.host + ".plugins"
	}

	seen := make(map[string]bool)
	for _, d := range append(append([]string{}, siteDirs...), userSite) {
		if d == "" {
			continue
		}
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		s.dirs = append(s.dirs, d)
	}
	return s
}

// Dirs returns the directories scanned, in order.
func (s *Scanner) Dirs() []string {
	return s.dirs
}

type releaseKey struct {
	name    string
	version string
}

// Scan returns the installed plugins keyed by normalized name, each list
// sorted ascending by version. Distributions that cannot be read are logged
// and skipped; a directory that exists but cannot be listed fails the scan.
func (s *Scanner) Scan(ctx context.Context) (map[string][]core.Record, error) {
	var records []core.Record
	seen := make(map[releaseKey]bool)

	for _, dir := range s.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("site directory missing", "path", dir)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}

		for _, entry := range entries {
			r, ok := s.scanEntry(dir, entry)
			if !ok {
				continue
			}
			k := releaseKey{name: r.Key(), version: r.Version}
			if seen[k] {
				continue
			}
			seen[k] = true
			records = append(records, r)
		}
	}
	return core.GroupRecords(records), nil
}

func (s *Scanner) scanEntry(dir string, entry fs.DirEntry) (core.Record, bool) {
	a, ok, err := openArtifact(dir, entry)
	if !ok {
		return core.Record{}, false
	}
	path := filepath.Join(dir, entry.Name())
	if err != nil {
		s.logger.Warn("cannot open distribution", "path", path, "err", err)
		return core.Record{}, false
	}
	defer a.Close()

	if a.format == FormatUnsupported {
		s.logger.Warn("unsupported distribution format", "path", path)
		return core.Record{}, false
	}

	data, err := a.read("entry_points.txt")
	if err != nil {
		return core.Record{}, false
	}
	ok, err = hasEntryPoints(data, s.namespace)
	if err != nil {
		s.logger.Warn("invalid entry points", "path", path, "err", err)
		return core.Record{}, false
	}
	if !ok {
		return core.Record{}, false
	}

	r, err := a.format.parse(a)
	if err != nil {
		s.logger.Warn("cannot read distribution metadata", "path", path, "format", a.format, "err", err)
		return core.Record{}, false
	}
	if r.Key() == core.NormalizeName(s.host) {
		return core.Record{}, false
	}
	if r.Name == "" {
		s.logger.Warn("distribution metadata has no name", "path", path)
		return core.Record{}, false
	}
	return r, true
}
