package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/app"
)

type scrapeFlags struct {
	keyword   string
	startPage int
	endPage   int
	outputDir string
	storage   string
	headless  bool
}

func newScrapeCmd(c *cli) *cobra.Command {
	f := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape search result pages for a keyword",
		Long: `Walks the configured range of search result pages, fetches every listing's
detail page, and writes a snapshot after each page plus a final snapshot named
after the keyword. Ctrl-C saves what has been collected so far.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, c, f)
		},
	}
	cmd.Flags().StringVarP(&f.keyword, "keyword", "k", "", "search keyword")
	cmd.Flags().IntVarP(&f.startPage, "start-page", "s", 0, "first result page")
	cmd.Flags().IntVarP(&f.endPage, "end-page", "e", 0, "last result page")
	cmd.Flags().StringVarP(&f.outputDir, "output-dir", "o", "", "snapshot directory for the local backend")
	cmd.Flags().StringVar(&f.storage, "storage", "", "snapshot backend: local, gcs or memory")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "read like counters with a headless browser")
	return cmd
}

func runScrape(cmd *cobra.Command, c *cli, f *scrapeFlags) error {
	cfg := c.cfg
	flags := cmd.Flags()
	if flags.Changed("keyword") {
		cfg.Scrape.Keyword = f.keyword
	}
	if flags.Changed("start-page") {
		cfg.Scrape.StartPage = f.startPage
	}
	if flags.Changed("end-page") {
		cfg.Scrape.EndPage = f.endPage
	}
	if flags.Changed("output-dir") {
		cfg.Storage.OutputDir = f.outputDir
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = f.storage
	}
	if flags.Changed("headless") {
		cfg.Headless.Enabled = f.headless
	}
	if err := cfg.ValidateScrape(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a := app.New(cfg, c.logger)
	defer a.Close()
	a.StartMetrics(ctx)

	p, err := a.Pipeline(ctx)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	res, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	out := cmd.OutOrStdout()
	if res.Interrupted {
		_, _ = fmt.Fprintf(out, "interrupted: saved %d items to %s\n", len(res.Items), res.SnapshotURI)
	} else {
		_, _ = fmt.Fprintf(out, "collected %d items from %d pages in %s\nsaved to %s\n",
			len(res.Items), res.Pages, res.Elapsed.Round(time.Millisecond), res.SnapshotURI)
	}
	c.logger.Debug("scrape command finished", zap.String("run_id", res.RunID))
	return nil
}
