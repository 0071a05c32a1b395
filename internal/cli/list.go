package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/plugins"
)

func newListCmd(a *app) *cobra.Command {
	var freeze, asTable, refresh bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed and published plugins",
		Example: `  # Installed and published plugins with their versions
  plugins list

  # Installed plugins as requirements
  plugins list --freeze`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh && !freeze {
				if err := plugins.InvalidateCache(a.cfg.CacheDir); err != nil {
					return err
				}
			}
			reg, err := a.updated(cmd.Context(), freeze)
			if err != nil {
				return err
			}

			states := reg.States()
			out := cmd.OutOrStdout()
			switch {
			case freeze:
				writeFreeze(out, states)
			case asTable:
				writeTable(out, states)
			default:
				writeList(out, states)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&freeze, "freeze", false, "print installed plugins as name==version, without contacting the index")
	cmd.Flags().BoolVar(&asTable, "table", false, "print a table with install status")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached index")
	return cmd
}

func writeFreeze(w io.Writer, states []plugins.PackageState) {
	for _, s := range states {
		if s.Current != nil {
			fmt.Fprintln(w, s.Current.Requirement())
		}
	}
}

func writeList(w io.Writer, states []plugins.PackageState) {
	for _, s := range states {
		info := s.Latest
		if info == nil {
			info = s.Current
		}
		if info == nil {
			continue
		}
		fmt.Fprintf(w, "%s (%s)  - %s\n", info.Name, info.Version, info.Summary)
		if s.Current != nil {
			fmt.Fprintf(w, "  INSTALLED: %s\n", s.Current.Version)
			if s.Latest != nil {
				fmt.Fprintf(w, "  LATEST:    %s\n", s.Latest.Version)
			}
		}
	}
}

func version(r *plugins.Record) string {
	if r == nil {
		return ""
	}
	return r.Version
}

func writeTable(w io.Writer, states []plugins.PackageState) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Status", "Name", "Installed", "Latest", "Summary"})
	for _, s := range states {
		status := string(s.Status)
		if s.Status == plugins.StatusNone {
			status = ""
		}
		summary := ""
		if m := s.Metadata(); m != nil {
			summary = m.Summary
		}
		t.AppendRow(table.Row{status, s.Name, version(s.Current), version(s.Latest), summary})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}
