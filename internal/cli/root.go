// Package cli implements the plugins command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/plugins"
	"github.com/git-pkgs/plugins/client"
	"github.com/git-pkgs/plugins/internal/config"
	"github.com/git-pkgs/plugins/internal/installer"
	"github.com/git-pkgs/plugins/internal/log"
)

// ExitError reports a non-zero installer exit status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("installer exited with status %d", e.Code)
}

// app is the state shared by all commands of one invocation.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger

	resolved bool
	siteDirs []string
	userSite string
}

// New returns the root command.
func New() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List, install and remove plugins published on a package index",
		Long: `plugins compares the plugins installed for a host application with the
plugins published on a package index, and installs or removes them with pip.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.FilePath()+")")
	log.RegisterLoggingFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newInstallCmd(a),
		newUninstallCmd(a),
		newCheckCmd(a),
		newInstalledCmd(a),
		newCrawlCmd(a),
	)
	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := New()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command) error {
	logger, err := log.GetBaseLogger(cmd)
	if err != nil {
		return err
	}
	a.logger = logger

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// paths returns the configured site directories, asking the interpreter
// when none are configured.
func (a *app) paths(ctx context.Context) ([]string, string) {
	if a.resolved {
		return a.siteDirs, a.userSite
	}
	a.resolved = true
	a.siteDirs, a.userSite = a.cfg.SiteDirs, a.cfg.UserSite
	if len(a.siteDirs) > 0 || a.userSite != "" {
		return a.siteDirs, a.userSite
	}

	p, err := installer.Probe(ctx, a.cfg.Python)
	if err != nil {
		a.logger.Warn("cannot locate site directories", "python", a.cfg.Python, "err", err)
		return nil, ""
	}
	a.siteDirs, a.userSite = p.SiteDirs, p.UserSite
	return a.siteDirs, a.userSite
}

func (a *app) registry(ctx context.Context, offline bool) (*plugins.Registry, error) {
	siteDirs, userSite := a.paths(ctx)
	return plugins.New(plugins.Options{
		IndexURL:    a.cfg.IndexURL,
		Host:        a.cfg.Host,
		Tag:         a.cfg.Tag,
		Namespace:   a.cfg.Namespace,
		CacheDir:    a.cfg.CacheDir,
		Concurrency: a.cfg.Concurrency,
		SiteDirs:    siteDirs,
		UserSite:    userSite,
		Offline:     offline,
		Client:      a.client(),
		Logger:      a.logger,
	})
}

func (a *app) client() *client.Client {
	return client.NewClient(client.WithUserAgent(a.cfg.UserAgent), client.WithLogger(a.logger))
}

func (a *app) runner(cmd *cobra.Command) *installer.ExecRunner {
	_, userSite := a.paths(cmd.Context())
	return &installer.ExecRunner{
		Python:     a.cfg.Python,
		PluginsDir: a.cfg.PluginsDir,
		UserSite:   userSite,
		UserBase:   a.cfg.PluginsBase,
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
		Logger:     a.logger,
	}
}

// updated returns a registry refreshed from both sources.
func (a *app) updated(ctx context.Context, offline bool) (*plugins.Registry, error) {
	reg, err := a.registry(ctx, offline)
	if err != nil {
		return nil, err
	}
	if err := reg.Update(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}
