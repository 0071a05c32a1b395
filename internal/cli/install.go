package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/plugins/internal/core"
	"github.com/git-pkgs/plugins/internal/installer"
)

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install NAME|PURL...",
		Short: "Install or upgrade plugins to their latest published release",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.apply(cmd, installer.Install, args)
		},
	}
}

func newUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall NAME|PURL...",
		Short: "Remove installed plugins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.apply(cmd, installer.Uninstall, args)
		},
	}
}

func (a *app) apply(cmd *cobra.Command, command string, args []string) error {
	names := make([]string, 0, len(args))
	for _, arg := range args {
		name, err := core.ResolveName(arg)
		if err != nil {
			return err
		}
		names = append(names, name)
	}

	ctx := cmd.Context()
	reg, err := a.updated(ctx, false)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := reg.Get(name); err != nil {
			return err
		}
	}

	install, uninstall := reg.Selection(names)
	selected := install
	if command == installer.Uninstall {
		selected = uninstall
	}
	out := cmd.OutOrStdout()
	if len(selected) == 0 {
		fmt.Fprintf(out, "Nothing to %s.\n", command)
		return nil
	}

	code, err := reg.Apply(ctx, a.runner(cmd), command, selected)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}

	verb := "Installed"
	if command == installer.Uninstall {
		verb = "Removed"
	}
	fmt.Fprintf(out, "%s: %s\n", verb, strings.Join(selected, ", "))
	if reg.NeedsRestart() {
		fmt.Fprintln(out, "Restart the application to apply the changes.")
	}
	return nil
}

// newCheckCmd and newInstalledCmd pass their arguments through to the
// installer.
func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [-- ARGS...]",
		Short: "Verify installed plugins have compatible dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, installer.Check, args)
		},
	}
}

func newInstalledCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "installed [-- ARGS...]",
		Short: "List every installed package, plugin or not",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, installer.List, args)
		},
	}
}

func (a *app) run(cmd *cobra.Command, command string, args []string) error {
	code, err := a.runner(cmd).Run(cmd.Context(), command, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
