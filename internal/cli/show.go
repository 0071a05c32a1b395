package cli

import (
	"fmt"
	"sort"

	"github.com/git-pkgs/spdx"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/plugins/client"
	"github.com/git-pkgs/plugins/internal/core"
	"github.com/git-pkgs/plugins/internal/crawl"
	"github.com/git-pkgs/plugins/internal/pypi"
)

func newShowCmd(a *app) *cobra.Command {
	var description bool

	cmd := &cobra.Command{
		Use:   "show NAME|PURL",
		Short: "Show the details of a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.updated(cmd.Context(), false)
			if err != nil {
				return err
			}
			name, err := core.ResolveName(args[0])
			if err != nil {
				return err
			}
			s, err := reg.Get(name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			m := s.Metadata()
			fmt.Fprintf(out, "Name:      %s\n", m.Name)
			fmt.Fprintf(out, "Status:    %s\n", s.Status)
			if s.Current != nil {
				fmt.Fprintf(out, "Installed: %s\n", s.Current.Version)
			}
			if s.Latest != nil {
				fmt.Fprintf(out, "Latest:    %s\n", s.Latest.Version)
			}
			fmt.Fprintf(out, "Summary:   %s\n", m.Summary)
			switch {
			case m.Author != "" && m.AuthorEmail != "":
				fmt.Fprintf(out, "Author:    %s <%s>\n", m.Author, m.AuthorEmail)
			case m.Author != "":
				fmt.Fprintf(out, "Author:    %s\n", m.Author)
			}
			if m.HomePage != "" {
				fmt.Fprintf(out, "Home page: %s\n", m.HomePage)
			}
			if m.License != "" {
				fmt.Fprintf(out, "License:   %s\n", m.License)
				if id, err := spdx.Normalize(m.License); err == nil && id != "" {
					fmt.Fprintf(out, "SPDX:      %s\n", id)
				}
			}
			fmt.Fprintf(out, "PURL:      %s\n", m.PURL())

			if !crawl.IsFile(a.cfg.IndexURL) {
				urls := client.BuildURLs(pypi.New(a.cfg.IndexURL, a.client()).URLs(), m.Name, m.Version)
				keys := make([]string, 0, len(urls))
				for k := range urls {
					if k != "purl" {
						keys = append(keys, k)
					}
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "URL (%s): %s\n", k, urls[k])
				}
			}

			if description {
				text := m.Description
				if text == "" {
					text = m.Summary
				}
				fmt.Fprintf(out, "\n%s\n", text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&description, "description", false, "print the long description")
	return cmd
}
