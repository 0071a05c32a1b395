// Package plugins reconciles the plugins installed for a host application
// with the plugins published on a package index.
//
// Basic usage:
//
//	reg, err := plugins.New(plugins.Options{
//		SiteDirs: []string{"/usr/lib/python3/site-packages"},
//		CacheDir: "/home/me/.cache/plugins",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := reg.Update(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//	for _, s := range reg.States() {
//		fmt.Println(s.Name, s.Status)
//	}
//
// Published plugins are found by crawling the index for packages tagged with
// "<host>_plugin" and cached on disk for ten minutes.
package plugins

import (
	"context"
	"log/slog"

	"github.com/git-pkgs/plugins/client"
	"github.com/git-pkgs/plugins/internal/cache"
	"github.com/git-pkgs/plugins/internal/core"
	"github.com/git-pkgs/plugins/internal/crawl"
	"github.com/git-pkgs/plugins/internal/installer"
	"github.com/git-pkgs/plugins/internal/local"
	"github.com/git-pkgs/plugins/internal/registry"
	"github.com/git-pkgs/purl"
)

// Re-export types from internal packages
type (
	// Record describes one release of a plugin.
	Record = core.Record

	// Version is a parsed, comparable release version.
	Version = core.Version

	// Status is the install relationship of a package.
	Status = core.Status

	// PackageState is the merged installed and published view of a package.
	PackageState = core.PackageState

	// Registry holds the state of every known plugin.
	Registry = registry.Registry

	// Runner runs installer commands.
	Runner = installer.Runner

	// ExecRunner runs the installer as "<python> -m pip".
	ExecRunner = installer.ExecRunner
)

// Re-export types from client
type (
	// Client is the HTTP client used to talk to the index.
	Client = client.Client

	// URLBuilder constructs URLs for a package on the index.
	URLBuilder = client.URLBuilder

	// Option configures a Client.
	Option = client.Option
)

const (
	StatusNone      = core.StatusNone
	StatusInstalled = core.StatusInstalled
	StatusOutdated  = core.StatusOutdated
	StatusUpdated   = core.StatusUpdated
	StatusRemoved   = core.StatusRemoved
)

const (
	CommandCheck     = installer.Check
	CommandInstall   = installer.Install
	CommandUninstall = installer.Uninstall
	CommandList      = installer.List
)

// Re-export errors
var (
	ErrNotFound       = core.ErrNotFound
	ErrInvalidCommand = installer.ErrInvalidCommand
)

// Error types
type (
	HTTPError     = core.HTTPError
	NotFoundError = core.NotFoundError
)

// Options configures New.
type Options struct {
	// IndexURL is the index base URL, or the path of a file written by a
	// captured crawl. Defaults to https://pypi.org/pypi.
	IndexURL string

	// Host is the host application. Defaults to "plover".
	Host string

	// Tag is the keyword published plugins carry. Defaults to "<host>_plugin".
	Tag string

	// Namespace is the entry point group installed plugins declare.
	// Defaults to "<host>.plugins".
	Namespace string

	// CacheDir holds the cached crawl result. Empty disables caching.
	CacheDir string

	// Concurrency is the number of parallel index requests. Defaults to 4.
	Concurrency int

	// SiteDirs and UserSite are scanned for installed plugins.
	SiteDirs []string
	UserSite string

	// Offline skips the index: only installed plugins are listed.
	Offline bool

	Client *Client
	Logger *slog.Logger
}

// New creates a registry over the installed and published plugins described
// by opts. The registry is empty until Update is called.
func New(opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := opts.Host
	if host == "" {
		host = local.DefaultHost
	}
	tag := opts.Tag
	if tag == "" {
		tag = host + "_plugin"
	}

	scanner := local.New(opts.SiteDirs, opts.UserSite,
		local.WithHost(host),
		local.WithNamespace(opts.Namespace),
		local.WithLogger(logger),
	)
	installed := registry.SourceFunc(scanner.Scan)

	if opts.Offline {
		none := registry.SourceFunc(func(context.Context) (map[string][]core.Record, error) {
			return map[string][]core.Record{}, nil
		})
		return registry.New(installed, none, registry.WithLogger(logger)), nil
	}

	src, err := crawl.Open(opts.IndexURL, crawl.Options{
		Tag:         tag,
		Concurrency: opts.Concurrency,
		Client:      opts.Client,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context) ([]core.Record, error) {
		releases, err := src.Releases(ctx)
		if err != nil {
			return nil, err
		}
		return crawl.Records(releases), nil
	}

	var available registry.Source
	if src.Kind() == crawl.KindFile || opts.CacheDir == "" {
		available = registry.SourceFunc(func(ctx context.Context) (map[string][]core.Record, error) {
			records, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			return core.GroupRecords(records), nil
		})
	} else {
		c := cache.New(opts.CacheDir, cache.WithLogger(logger))
		available = registry.SourceFunc(func(ctx context.Context) (map[string][]core.Record, error) {
			return c.GetOrRefresh(ctx, fetch)
		})
	}

	return registry.New(installed, available, registry.WithLogger(logger)), nil
}

// InvalidateCache removes the cached crawl result in dir.
func InvalidateCache(dir string) error {
	return cache.New(dir).Invalidate()
}

// ParseVersion parses a version string. It never fails; unparseable values
// sort below every valid version.
func ParseVersion(raw any) Version {
	return core.ParseVersion(raw)
}

// NormalizeName returns the key used to match package names.
func NormalizeName(name string) string {
	return core.NormalizeName(name)
}

// DefaultClient returns a client with retries and a per-host circuit breaker.
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// WithUserAgent sets the User-Agent header.
var WithUserAgent = client.WithUserAgent

// WithMaxRetries sets the maximum number of retries.
var WithMaxRetries = client.WithMaxRetries

// WithLogger sets the logger the client reports retried requests to.
var WithLogger = client.WithLogger

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string such as pkg:pypi/plover-foo@1.0.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}
