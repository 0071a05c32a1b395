package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/plugins/internal/core"
	"github.com/git-pkgs/plugins/internal/crawl"
)

func newCrawlCmd(a *app) *cobra.Command {
	var capture string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the index for every published plugin release",
		Long: `Crawl the index for every release of every package tagged as a plugin,
bypassing the cache. With --capture the release documents are saved to a file
that can later be used as index_url.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := crawl.Open(a.cfg.IndexURL, crawl.Options{
				Tag:         a.cfg.Tag,
				Concurrency: a.cfg.Concurrency,
				Client:      a.client(),
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}
			releases, err := src.Releases(cmd.Context())
			if err != nil {
				return err
			}
			if capture != "" {
				if err := crawl.Capture(capture, releases); err != nil {
					return err
				}
				a.logger.Info("captured releases", "path", capture, "releases", len(releases))
			}

			records := crawl.Records(releases)
			core.SortRecords(records)
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintln(out, r.Requirement())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&capture, "capture", "", "write the release documents to this file")
	return cmd
}
