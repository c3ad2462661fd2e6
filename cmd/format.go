package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/booth-harvest/internal/app"
)

type formatFlags struct {
	outputDir   string
	api         string
	model       string
	workers     int
	delay       float64
	retries     int
	examples    string
	maxExamples int
}

func newFormatCmd(c *cli) *cobra.Command {
	f := &formatFlags{}
	cmd := &cobra.Command{
		Use:   "format <file-or-directory>",
		Short: "Reformat scraped snapshots with a text-generation model",
		Long: `Sends every listing in a snapshot file (or every *.json file below a
directory) to Gemini or Ollama with worked examples, and writes the normalized
records to the output directory under the input file's name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, c, f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.outputDir, "output-dir", "o", "", "directory for formatted files")
	cmd.Flags().StringVarP(&f.api, "api", "a", "", "text-generation api: gemini or ollama")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model name (defaults per api)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "files processed in parallel")
	cmd.Flags().Float64VarP(&f.delay, "delay", "d", 0, "seconds to wait after each record")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "provider attempts per record")
	cmd.Flags().StringVar(&f.examples, "examples", "", "JSON file with custom worked examples")
	cmd.Flags().IntVar(&f.maxExamples, "max-examples", 0, "cap on examples included in each prompt")
	return cmd
}

func runFormat(cmd *cobra.Command, c *cli, f *formatFlags, input string) error {
	cfg := c.cfg
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Format.OutputDir = f.outputDir
	}
	if flags.Changed("api") {
		cfg.Format.API = f.api
	}
	if flags.Changed("model") {
		cfg.Format.Model = f.model
	}
	if flags.Changed("workers") {
		cfg.Format.Workers = f.workers
	}
	if flags.Changed("delay") {
		cfg.Format.DelaySeconds = f.delay
	}
	if flags.Changed("retries") {
		cfg.Format.Retries = f.retries
	}
	if flags.Changed("examples") {
		cfg.Format.ExamplesPath = f.examples
	}
	if flags.Changed("max-examples") {
		cfg.Format.MaxExamples = f.maxExamples
	}
	if err := cfg.ValidateFormat(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a := app.New(cfg, c.logger)
	defer a.Close()
	a.StartMetrics(ctx)

	p, err := a.Provider(ctx)
	if err != nil {
		return err
	}
	batch, err := a.Batch(p)
	if err != nil {
		return err
	}
	n, err := batch.ProcessPath(ctx, input)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "formatted %d records into %s\n", n, cfg.Format.OutputDir)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}
	return nil
}
