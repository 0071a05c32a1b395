// Package installer runs the package installer as a subprocess.
package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrInvalidCommand is returned for commands outside the supported set.
var ErrInvalidCommand = errors.New("invalid installer command")

const (
	Check     = "check"
	Install   = "install"
	Uninstall = "uninstall"
	List      = "list"
)

// Runner runs one installer command and reports its exit code. A non-zero
// exit code is not an error.
type Runner interface {
	Run(ctx context.Context, command string, args []string) (int, error)
}

// commandArgs maps each supported command to the installer arguments it
// expands to.
var commandArgs = map[string][]string{
	Check:     {"check"},
	Install:   {"install", "--user", "--upgrade-strategy=only-if-needed"},
	Uninstall: {"uninstall"},
	List:      {"list", "--format=columns"},
}

// ExecRunner runs "<python> -m pip".
type ExecRunner struct {
	Python     string
	PluginsDir string // prepended to PYTHONPATH
	UserSite   string // prepended to PYTHONPATH after PluginsDir
	UserBase   string // PYTHONUSERBASE

	// Env is the base environment; nil means the current process environment.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

// Args returns the interpreter arguments for a command.
func (r *ExecRunner) Args(command string, args []string) ([]string, error) {
	expanded, ok := commandArgs[command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, command)
	}
	argv := []string{"-m", "pip"}
	argv = append(argv, expanded...)
	return append(argv, args...), nil
}

// Environ returns the subprocess environment.
func (r *ExecRunner) Environ() []string {
	base := r.Env
	if base == nil {
		base = os.Environ()
	}

	var path []string
	for _, p := range []string{r.PluginsDir, r.UserSite} {
		if p != "" {
			path = append(path, p)
		}
	}

	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "PYTHONPATH":
			if value != "" {
				path = append(path, filepath.SplitList(value)...)
			}
			continue
		case "PYTHONUSERBASE":
			if r.UserBase != "" {
				continue
			}
		}
		env = append(env, kv)
	}
	if len(path) > 0 {
		env = append(env, "PYTHONPATH="+strings.Join(path, string(os.PathListSeparator)))
	}
	if r.UserBase != "" {
		env = append(env, "PYTHONUSERBASE="+r.UserBase)
	}
	return env
}

func (r *ExecRunner) python() string {
	if r.Python == "" {
		return "python3"
	}
	return r.Python
}

func (r *ExecRunner) Run(ctx context.Context, command string, args []string) (int, error) {
	argv, err := r.Args(command, args)
	if err != nil {
		return -1, err
	}

	cmd := exec.CommandContext(ctx, r.python(), argv...)
	cmd.Env = r.Environ()
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("running installer", "python", r.python(), "args", argv)

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("running %s: %w", command, err)
	}
	return 0, nil
}

// Paths are the interpreter's package directories.
type Paths struct {
	SiteDirs []string `json:"site_dirs"`
	UserSite string   `json:"user_site"`
	UserBase string   `json:"user_base"`
}

const probeScript = `import json, site
print(json.dumps({
    "site_dirs": site.getsitepackages(),
    "user_site": site.getusersitepackages(),
    "user_base": site.getuserbase(),
}))`

// Probe asks the interpreter for its site directories.
func Probe(ctx context.Context, python string) (*Paths, error) {
	if python == "" {
		python = "python3"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, python, "-c", probeScript)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("probing %s: %w: %s", python, err, strings.TrimSpace(stderr.String()))
	}

	var p Paths
	if err := json.Unmarshal(stdout.Bytes(), &p); err != nil {
		return nil, fmt.Errorf("probing %s: %w", python, err)
	}
	return &p, nil
}
