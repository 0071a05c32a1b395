package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/git-pkgs/plugins/internal/core"
	"github.com/git-pkgs/plugins/internal/installer"
)

// fakeSource is a mutable Source.
type fakeSource struct {
	mu      sync.Mutex
	plugins map[string][]core.Record
	err     error
}

func (f *fakeSource) Plugins(ctx context.Context) (map[string][]core.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.plugins, nil
}

func (f *fakeSource) set(records ...core.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plugins = core.GroupRecords(records)
}

func rec(name, version string) core.Record {
	return core.Record{Name: name, Version: version, Summary: name + " summary"}
}

func newTestRegistry(t *testing.T) (*Registry, *fakeSource, *fakeSource) {
	t.Helper()
	installed := &fakeSource{}
	available := &fakeSource{}
	installed.set(rec("foo", "1.0"))
	available.set(rec("foo", "1.0"), rec("foo", "2.0"), rec("bar", "3.0"))

	r := New(installed, available, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := r.Update(context.Background()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return r, installed, available
}

func version(r *core.Record) string {
	if r == nil {
		return "<nil>"
	}
	return r.Version
}

func TestMerge(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	states := r.States()
	if states[0].Name != "bar" || states[1].Name != "foo" {
		t.Fatalf("States() order = %s, %s", states[0].Name, states[1].Name)
	}

	bar := states[0]
	if bar.Status != core.StatusNone || bar.Current != nil || version(bar.Latest) != "3.0" {
		t.Errorf("bar = %s current=%s latest=%s", bar.Status, version(bar.Current), version(bar.Latest))
	}
	foo := states[1]
	if foo.Status != core.StatusOutdated || version(foo.Current) != "1.0" || version(foo.Latest) != "2.0" {
		t.Errorf("foo = %s current=%s latest=%s", foo.Status, version(foo.Current), version(foo.Latest))
	}
	if r.NeedsRestart() {
		t.Error("NeedsRestart() = true before any action")
	}
}

func TestMergeInstalledOnly(t *testing.T) {
	installed := &fakeSource{}
	available := &fakeSource{}
	installed.set(rec("local-only", "0.1"), rec("ahead", "5.0"))
	available.set(rec("ahead", "4.0"))

	r := New(installed, available)
	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"local-only", "ahead"} {
		s, err := r.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if s.Status != core.StatusInstalled {
			t.Errorf("%s status = %s, want installed", name, s.Status)
		}
	}
}

func TestMergeNormalizesKeys(t *testing.T) {
	installed := &fakeSource{plugins: map[string][]core.Record{
		"Plover_Foo": {rec("Plover_Foo", "1.0")},
	}}
	available := &fakeSource{plugins: map[string][]core.Record{
		"plover-foo": {rec("plover-foo", "1.0")},
	}}
	r := New(installed, available)
	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	s, err := r.Get("plover.foo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Status != core.StatusInstalled {
		t.Errorf("status = %s, want installed", s.Status)
	}
}

func TestGetNotFound(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, err := r.Get("baz")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	var nf *core.NotFoundError
	if !errors.As(err, &nf) || nf.Name != "baz" {
		t.Errorf("Get error = %#v, want *NotFoundError for baz", err)
	}
}

func TestMarkInstalled(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	if err := r.MarkInstalled("foo"); err != nil {
		t.Fatal(err)
	}
	s, _ := r.Get("foo")
	if s.Status != core.StatusUpdated || version(s.Current) != "2.0" {
		t.Errorf("foo = %s current=%s, want updated 2.0", s.Status, version(s.Current))
	}
	if s.Action != core.StatusUpdated {
		t.Errorf("foo action = %q, want %q", s.Action, core.StatusUpdated)
	}
	if !r.NeedsRestart() {
		t.Error("NeedsRestart() = false after install")
	}

	if err := r.MarkInstalled("nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("MarkInstalled(nope) = %v, want ErrNotFound", err)
	}
}

func TestMarkRemoved(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	if err := r.MarkRemoved("foo"); err != nil {
		t.Fatal(err)
	}
	s, _ := r.Get("foo")
	if s.Status != core.StatusRemoved || s.Current != nil {
		t.Errorf("foo = %s current=%s, want removed <nil>", s.Status, version(s.Current))
	}
	if version(s.Latest) != "2.0" {
		t.Errorf("latest = %s, want 2.0", version(s.Latest))
	}
	if !r.NeedsRestart() {
		t.Error("NeedsRestart() = false after uninstall")
	}
}

func TestOverrideKeptWhileScanIsStale(t *testing.T) {
	r, installed, _ := newTestRegistry(t)
	if err := r.MarkInstalled("foo"); err != nil {
		t.Fatal(err)
	}

	// The scan still sees 1.0.
	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, _ := r.Get("foo")
	if s.Status != core.StatusUpdated || version(s.Current) != "2.0" {
		t.Errorf("stale scan: foo = %s current=%s, want updated 2.0", s.Status, version(s.Current))
	}

	// The scan catches up.
	installed.set(rec("foo", "2.0"))
	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, _ = r.Get("foo")
	if s.Status != core.StatusInstalled || version(s.Current) != "2.0" {
		t.Errorf("fresh scan: foo = %s current=%s, want installed 2.0", s.Status, version(s.Current))
	}
	if r.NeedsRestart() {
		t.Error("NeedsRestart() = true once the scan reflects the install")
	}
}

func TestRemovedOverride(t *testing.T) {
	r, installed, _ := newTestRegistry(t)
	if err := r.MarkRemoved("foo"); err != nil {
		t.Fatal(err)
	}

	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, _ := r.Get("foo")
	if s.Status != core.StatusRemoved || s.Current != nil {
		t.Errorf("stale scan: foo = %s current=%s, want removed", s.Status, version(s.Current))
	}

	installed.set()
	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, _ = r.Get("foo")
	if s.Status != core.StatusNone {
		t.Errorf("fresh scan: foo = %s, want none", s.Status)
	}
}

func TestUpdateFailureKeepsState(t *testing.T) {
	r, _, available := newTestRegistry(t)
	before := r.States()

	available.mu.Lock()
	available.err = errors.New("search failed")
	available.mu.Unlock()

	err := r.Update(context.Background())
	if err == nil || !strings.Contains(err.Error(), "search failed") {
		t.Fatalf("Update error = %v, want search failure", err)
	}

	after := r.States()
	if len(after) != len(before) {
		t.Fatalf("states changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].Name != before[i].Name || after[i].Status != before[i].Status {
			t.Errorf("state %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestUpdateAsync(t *testing.T) {
	installed := &fakeSource{}
	available := &fakeSource{}
	available.set(rec("bar", "3.0"))
	r := New(installed, available)

	done := make(chan error, 1)
	r.UpdateAsync(context.Background(), func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("UpdateAsync: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("UpdateAsync did not complete")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestSelection(t *testing.T) {
	installed := &fakeSource{}
	available := &fakeSource{}
	installed.set(rec("current", "1.0"), rec("old", "1.0"), rec("local", "1.0"))
	available.set(rec("current", "1.0"), rec("old", "2.0"), rec("new", "1.0"))
	r := New(installed, available)
	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}

	install, uninstall := r.Selection([]string{"current", "old", "new", "local", "unknown"})
	if strings.Join(install, ",") != "old,new" {
		t.Errorf("install = %v, want [old new]", install)
	}
	if strings.Join(uninstall, ",") != "current,old,local" {
		t.Errorf("uninstall = %v, want [current old local]", uninstall)
	}

	if err := r.MarkRemoved("current"); err != nil {
		t.Fatal(err)
	}
	install, uninstall = r.Selection([]string{"current"})
	if len(install) != 1 || len(uninstall) != 0 {
		t.Errorf("removed package: install = %v, uninstall = %v", install, uninstall)
	}
}

type fakeRunner struct {
	code    int
	err     error
	command string
	args    []string
}

func (f *fakeRunner) Run(ctx context.Context, command string, args []string) (int, error) {
	f.command = command
	f.args = args
	return f.code, f.err
}

func TestApplyInstall(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	runner := &fakeRunner{}

	code, err := r.Apply(context.Background(), runner, installer.Install, []string{"foo", "bar"})
	if err != nil || code != 0 {
		t.Fatalf("Apply = %d, %v", code, err)
	}
	if strings.Join(runner.args, " ") != "foo==2.0 bar==3.0" {
		t.Errorf("args = %v", runner.args)
	}
	for _, name := range []string{"foo", "bar"} {
		s, _ := r.Get(name)
		if s.Status != core.StatusUpdated {
			t.Errorf("%s status = %s, want updated", name, s.Status)
		}
	}
}

func TestApplyUninstallFailure(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	runner := &fakeRunner{code: 1}

	code, err := r.Apply(context.Background(), runner, installer.Uninstall, []string{"foo"})
	if err != nil || code != 1 {
		t.Fatalf("Apply = %d, %v, want 1, nil", code, err)
	}
	if strings.Join(runner.args, " ") != "-y foo" {
		t.Errorf("args = %v", runner.args)
	}
	s, _ := r.Get("foo")
	if s.Status != core.StatusOutdated {
		t.Errorf("foo status = %s, want outdated after failed uninstall", s.Status)
	}
}

func TestApplyUninstall(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	if _, err := r.Apply(context.Background(), &fakeRunner{}, installer.Uninstall, []string{"foo"}); err != nil {
		t.Fatal(err)
	}
	s, _ := r.Get("foo")
	if s.Status != core.StatusRemoved {
		t.Errorf("foo status = %s, want removed", s.Status)
	}
}

func TestApplyErrors(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	runner := &fakeRunner{}

	if _, err := r.Apply(context.Background(), runner, "list", []string{"foo"}); !errors.Is(err, installer.ErrInvalidCommand) {
		t.Errorf("Apply(list) = %v, want ErrInvalidCommand", err)
	}
	if _, err := r.Apply(context.Background(), runner, installer.Install, []string{"missing"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Apply(missing) = %v, want ErrNotFound", err)
	}
	if runner.command != "" {
		t.Errorf("runner called with %q", runner.command)
	}
}
