// Package registry merges installed and published plugins into per-package
// install states.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/git-pkgs/plugins/internal/core"
	"github.com/git-pkgs/plugins/internal/installer"
	"golang.org/x/sync/errgroup"
)

// Source lists plugin records keyed by normalized name, each list sorted
// ascending by version.
type Source interface {
	Plugins(ctx context.Context) (map[string][]core.Record, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (map[string][]core.Record, error)

func (f SourceFunc) Plugins(ctx context.Context) (map[string][]core.Record, error) {
	return f(ctx)
}

// Registry holds the merged state of every known plugin. It is safe for
// concurrent use.
type Registry struct {
	installed Source
	available Source
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]*core.PackageState
	names   []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report updates.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates an empty registry. Call Update to populate it.
func New(installed, available Source, opts ...Option) *Registry {
	r := &Registry{
		installed: installed,
		available: available,
		logger:    slog.Default(),
		entries:   make(map[string]*core.PackageState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update rescans both sources and recomputes every state. On error the
// previous states are kept.
func (r *Registry) Update(ctx context.Context) error {
	var installed, available map[string][]core.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		installed, err = r.installed.Plugins(gctx)
		if err != nil {
			return fmt.Errorf("listing installed plugins: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		available, err = r.available.Plugins(gctx)
		if err != nil {
			return fmt.Errorf("listing available plugins: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.merge(installed, available)
	r.logger.Debug("registry updated", "installed", len(installed), "available", len(available), "packages", len(r.names))
	return nil
}

// UpdateAsync runs Update on its own goroutine and calls done, if not nil,
// with the result.
func (r *Registry) UpdateAsync(ctx context.Context, done func(error)) {
	go func() {
		err := r.Update(ctx)
		if done != nil {
			done(err)
		}
	}()
}

func last(records []core.Record) *core.Record {
	if len(records) == 0 {
		return nil
	}
	r := records[len(records)-1]
	return &r
}

// normalize rekeys records by normalized name, merging lists whose keys
// only differ in spelling.
func normalize(groups map[string][]core.Record) map[string][]core.Record {
	out := make(map[string][]core.Record, len(groups))
	for name, records := range groups {
		key := core.NormalizeName(name)
		out[key] = append(out[key], records...)
	}
	for _, records := range out {
		core.SortVersions(records)
	}
	return out
}

func (r *Registry) merge(installed, available map[string][]core.Record) {
	installed = normalize(installed)
	available = normalize(available)

	entries := make(map[string]*core.PackageState, len(installed)+len(available))
	add := func(key string) {
		if _, ok := entries[key]; ok {
			return
		}
		current := last(installed[key])
		latest := last(available[key])
		s := &core.PackageState{
			Name:    key,
			Status:  core.DeriveStatus(current, latest),
			Current: current,
			Latest:  latest,
		}
		if prev, ok := r.entries[key]; ok && prev.Action != "" && pending(prev, current) {
			s.Action = prev.Action
			s.Status = prev.Action
			s.Current = prev.Current
		}
		entries[key] = s
	}
	for key := range installed {
		add(key)
	}
	for key := range available {
		add(key)
	}

	names := make([]string, 0, len(entries))
	for key := range entries {
		names = append(names, key)
	}
	sort.Strings(names)

	r.entries = entries
	r.names = names
}

// pending reports whether a freshly scanned installed record does not yet
// reflect the session action recorded in prev.
func pending(prev *core.PackageState, current *core.Record) bool {
	switch prev.Action {
	case core.StatusUpdated:
		marked := prev.Current
		if marked == nil || current == nil {
			return true
		}
		return current.ParsedVersion().Compare(marked.ParsedVersion()) != 0
	case core.StatusRemoved:
		return current != nil
	}
	return false
}

// States returns a snapshot of every package state, ordered by name.
func (r *Registry) States() []core.PackageState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make([]core.PackageState, 0, len(r.names))
	for _, name := range r.names {
		states = append(states, *r.entries[name])
	}
	return states
}

// Get returns the state of one package.
func (r *Registry) Get(name string) (core.PackageState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[core.NormalizeName(name)]
	if !ok {
		return core.PackageState{}, &core.NotFoundError{Name: name}
	}
	return *s, nil
}

// Len returns the number of known packages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// NeedsRestart reports whether a plugin was installed or removed in this
// session.
func (r *Registry) NeedsRestart() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.entries {
		if s.Action != "" {
			return true
		}
	}
	return false
}

// Selection splits names into the packages that can be installed and those
// that can be uninstalled. An outdated package is in both; unknown names are
// in neither.
func (r *Registry) Selection(names []string) (install, uninstall []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		s, ok := r.entries[core.NormalizeName(name)]
		if !ok {
			continue
		}
		switch {
		case s.Status == core.StatusInstalled || s.Status == core.StatusUpdated:
			uninstall = append(uninstall, s.Name)
		case s.Status == core.StatusOutdated:
			install = append(install, s.Name)
			uninstall = append(uninstall, s.Name)
		case s.Latest != nil:
			install = append(install, s.Name)
		}
	}
	return install, uninstall
}

// MarkInstalled records a successful install: the latest release becomes
// current and the status becomes updated.
func (r *Registry) MarkInstalled(names ...string) error {
	return r.mark(names, func(s *core.PackageState) {
		if s.Latest != nil {
			latest := *s.Latest
			s.Current = &latest
		}
		s.Status = core.StatusUpdated
		s.Action = core.StatusUpdated
	})
}

// MarkRemoved records a successful uninstall.
func (r *Registry) MarkRemoved(names ...string) error {
	return r.mark(names, func(s *core.PackageState) {
		s.Current = nil
		s.Status = core.StatusRemoved
		s.Action = core.StatusRemoved
	})
}

func (r *Registry) mark(names []string, apply func(*core.PackageState)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, name := range names {
		s, ok := r.entries[core.NormalizeName(name)]
		if !ok {
			errs = append(errs, &core.NotFoundError{Name: name})
			continue
		}
		apply(s)
	}
	return errors.Join(errs...)
}

// Apply runs an install or uninstall of the named packages and, when the
// installer exits with status 0, records the transition. Installs pin each
// package to its latest published release.
func (r *Registry) Apply(ctx context.Context, runner installer.Runner, command string, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	var args []string
	switch command {
	case installer.Install:
		for _, name := range names {
			s, err := r.Get(name)
			if err != nil {
				return -1, err
			}
			if s.Latest == nil {
				return -1, fmt.Errorf("%s: no published release", name)
			}
			args = append(args, s.Latest.Requirement())
		}
	case installer.Uninstall:
		args = append(args, "-y")
		for _, name := range names {
			if _, err := r.Get(name); err != nil {
				return -1, err
			}
			args = append(args, core.NormalizeName(name))
		}
	default:
		return -1, fmt.Errorf("%w: %s", installer.ErrInvalidCommand, command)
	}

	code, err := runner.Run(ctx, command, args)
	if err != nil || code != 0 {
		return code, err
	}

	if command == installer.Install {
		return code, r.MarkInstalled(names...)
	}
	return code, r.MarkRemoved(names...)
}
