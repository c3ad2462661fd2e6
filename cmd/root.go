// Package cmd defines the harvester command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/config"
	"github.com/JakeFAU/booth-harvest/internal/logging"
)

// cli carries state shared by the subcommands once the root pre-run has
// loaded configuration and built the logger.
type cli struct {
	cfgFile string
	devLog  bool
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Scrape BOOTH listings and reformat them with a text-generation model.",
		Long: `harvester collects product listings from the BOOTH marketplace by keyword,
saves JSON snapshots after every result page, and can later rewrite those
snapshots into a normalized schema with Gemini or a local Ollama server.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = c.logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&c.devLog, "dev-log", true, "human-readable colored logs")

	cmd.AddCommand(newScrapeCmd(c), newFormatCmd(c))
	return cmd
}

func (c *cli) setup(cmd *cobra.Command) error {
	envPath, err := config.LoadDotEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dev-log") {
		cfg.Logging.Development = c.devLog
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	if envPath != "" {
		logger.Debug("loaded environment file", zap.String("path", envPath))
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

// Execute runs the command line with ctx, which should be cancelled on
// SIGINT/SIGTERM.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("harvester: %w", err)
	}
	return nil
}
