package pypi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/git-pkgs/plugins/client"
	"github.com/git-pkgs/plugins/internal/core"
)

const searchResponse = `<?xml version='1.0'?>
<methodResponse>
<params>
<param>
<value><array><data>
<value><struct>
<member><name>name</name><value><string>plover-foo</string></value></member>
<member><name>version</name><value><string>1.0.0</string></value></member>
<member><name>summary</name><value><string>Foo for Plover</string></value></member>
<member><name>_pypi_ordering</name><value><int>3</int></value></member>
</struct></value>
<value><struct>
<member><name>name</name><value>plover_bar</value></member>
<member><name>version</name><value><string>0.2</string></value></member>
<member><name>summary</name><value><nil/></value></member>
</struct></value>
</data></array></value>
</param>
</params>
</methodResponse>`

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pypi" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "<methodName>search</methodName>") {
			t.Errorf("missing method name in %s", body)
		}
		if !strings.Contains(string(body), "<name>keywords</name><value><string>plover_plugin</string></value>") {
			t.Errorf("missing keywords spec in %s", body)
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer server.Close()

	idx := New(server.URL+"/pypi", client.DefaultClient())
	matches, err := idx.Search(context.Background(), map[string]string{"keywords": "plover_plugin"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0] != (Match{Name: "plover-foo", Version: "1.0.0"}) {
		t.Errorf("matches[0] = %+v", matches[0])
	}
	if matches[1].Name != "plover_bar" || matches[1].Version != "0.2" {
		t.Errorf("matches[1] = %+v", matches[1])
	}
}

func TestSearchFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version='1.0'?>
<methodResponse><fault><value><struct>
<member><name>faultCode</name><value><int>-32500</int></value></member>
<member><name>faultString</name><value><string>RuntimeError: search is disabled</string></value></member>
</struct></value></fault></methodResponse>`))
	}))
	defer server.Close()

	idx := New(server.URL, client.DefaultClient())
	_, err := idx.Search(context.Background(), map[string]string{"keywords": "plover_plugin"})

	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("Search = %v, want FaultError", err)
	}
	if fault.Code != -32500 {
		t.Errorf("fault code = %d, want -32500", fault.Code)
	}
	if !strings.Contains(fault.String, "disabled") {
		t.Errorf("fault string = %q", fault.String)
	}
}

func TestSearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	idx := New(server.URL, client.DefaultClient())
	if _, err := idx.Search(context.Background(), map[string]string{"keywords": "plover_plugin"}); err == nil {
		t.Error("expected error")
	}
}

func TestFetchRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pypi/plover-foo/1.0.0/json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"info": {
				"name": "plover-foo",
				"version": "1.0.0",
				"author": "Foo Bar",
				"summary": "Foo for Plover",
				"keywords": "plover plover_plugin",
				"license": null,
				"classifiers": ["Framework :: Plover"]
			},
			"releases": {"0.9.0": [], "1.0.0": [{"packagetype": "bdist_wheel"}]}
		}`))
	}))
	defer server.Close()

	idx := New(server.URL+"/pypi", client.DefaultClient())
	release, err := idx.FetchRelease(context.Background(), "plover-foo", "1.0.0")
	if err != nil {
		t.Fatalf("FetchRelease failed: %v", err)
	}

	want := core.Record{
		Name:     "plover-foo",
		Version:  "1.0.0",
		Author:   "Foo Bar",
		Summary:  "Foo for Plover",
		Keywords: "plover plover_plugin",
	}
	if got := release.Record(); got != want {
		t.Errorf("Record() = %+v, want %+v", got, want)
	}
	if !release.HasKeyword("plover_plugin") {
		t.Error("expected plover_plugin keyword")
	}
	if !release.HasKeyword("plover") || release.HasKeyword("plugin") {
		t.Error("keyword matching should be exact")
	}
	if got := release.Versions(); len(got) != 2 || got[0] != "0.9.0" || got[1] != "1.0.0" {
		t.Errorf("Versions() = %v", got)
	}
}

func TestFetchReleaseNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	idx := New(server.URL, client.DefaultClient())
	_, err := idx.FetchRelease(context.Background(), "deleted", "1.0")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FetchRelease = %v, want ErrNotFound", err)
	}
}

func TestFetchReleaseMissingInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"releases": {}}`))
	}))
	defer server.Close()

	idx := New(server.URL, client.DefaultClient())
	if _, err := idx.FetchRelease(context.Background(), "plover-foo", "1.0"); err == nil {
		t.Error("expected error for document without info")
	}
}

func TestURLs(t *testing.T) {
	idx := New("https://pypi.org/pypi/", nil)
	urls := client.BuildURLs(idx.URLs(), "plover-foo", "1.0.0")

	want := map[string]string{
		"project": "https://pypi.org/project/plover-foo/1.0.0/",
		"release": "https://pypi.org/pypi/plover-foo/1.0.0/json",
		"files":   "https://pypi.org/simple/plover-foo/",
		"purl":    "pkg:pypi/plover-foo@1.0.0",
	}
	for k, v := range want {
		if urls[k] != v {
			t.Errorf("%s = %q, want %q", k, urls[k], v)
		}
	}
	if len(urls) != len(want) {
		t.Errorf("BuildURLs = %v, want %d entries", urls, len(want))
	}
}
