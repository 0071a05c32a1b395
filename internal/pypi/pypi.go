// Package pypi provides a client for a PyPI-compatible package index.
package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/git-pkgs/plugins/client"
	"github.com/git-pkgs/plugins/internal/core"
)

const DefaultURL = "https://pypi.org/pypi"

type Index struct {
	baseURL string
	client  *client.Client
	urls    client.URLBuilder
}

func New(baseURL string, c *client.Client) *Index {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = client.DefaultClient()
	}
	i := &Index{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  c,
	}
	i.urls = newURLs(i.baseURL)
	return i
}

func (i *Index) BaseURL() string {
	return i.baseURL
}

func (i *Index) URLs() client.URLBuilder {
	return i.urls
}

// Match is one search hit.
type Match struct {
	Name    string
	Version string
}

// Search calls the index's XML-RPC search method with the given spec, e.g.
// {"keywords": "plover_plugin"}.
func (i *Index) Search(ctx context.Context, spec map[string]string) ([]Match, error) {
	body, err := encodeCall("search", spec)
	if err != nil {
		return nil, err
	}

	data, err := i.client.PostXML(ctx, i.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var hits []searchHit
	if err := decodeResponse(data, &hits); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		if h.Name == "" {
			continue
		}
		matches = append(matches, Match{Name: h.Name, Version: h.Version})
	}
	return matches, nil
}

// Release is the JSON document of one release, as served at
// {base}/{name}/{version}/json.
type Release struct {
	Info     map[string]any             `json:"info"`
	Releases map[string]json.RawMessage `json:"releases"`
}

// Record returns the plugin record described by the release's info block.
func (r *Release) Record() core.Record {
	return core.RecordFromMap(r.Info)
}

// HasKeyword reports whether the release's own keyword list contains kw.
func (r *Release) HasKeyword(kw string) bool {
	for _, k := range r.Record().KeywordList() {
		if k == kw {
			return true
		}
	}
	return false
}

// Versions returns every version listed in the package's release history.
func (r *Release) Versions() []string {
	versions := make([]string, 0, len(r.Releases))
	for v := range r.Releases {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// FetchRelease fetches the metadata document of one release.
func (i *Index) FetchRelease(ctx context.Context, name, version string) (*Release, error) {
	u := i.urls.Release(name, version)

	var release Release
	if err := i.client.GetJSON(ctx, u, &release); err != nil {
		var httpErr *core.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{Name: name, Version: version}
		}
		return nil, err
	}
	if release.Info == nil {
		return nil, fmt.Errorf("release %s %s: missing info block", name, version)
	}
	return &release, nil
}

func newURLs(baseURL string) *client.URLFuncs {
	// The JSON API lives under /pypi, the project pages one level up.
	site := strings.TrimSuffix(baseURL, "/pypi")
	return &client.URLFuncs{
		ProjectFn: func(name, version string) string {
			if version != "" {
				return fmt.Sprintf("%s/project/%s/%s/", site, name, version)
			}
			return fmt.Sprintf("%s/project/%s/", site, name)
		},
		ReleaseFn: func(name, version string) string {
			if version != "" {
				return fmt.Sprintf("%s/%s/%s/json", baseURL, url.PathEscape(name), url.PathEscape(version))
			}
			return fmt.Sprintf("%s/%s/json", baseURL, url.PathEscape(name))
		},
		FilesFn: func(name string) string {
			return fmt.Sprintf("%s/simple/%s/", site, core.NormalizeName(name))
		},
		PURLFn: func(name, version string) string {
			return core.Record{Name: name, Version: version}.PURL()
		},
	}
}
