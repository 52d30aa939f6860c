package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"SentimentPipeline/internal/app"
	"SentimentPipeline/internal/config"
	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/logging"
)

const configPathEnv = "SENTIMENT_PIPELINE_CONFIG"

type appFactory func(cmd *cobra.Command) (*app.Application, error)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "sentimentpipeline",
		Short: "Ingest social interactions and score their sentiment",
		Long: `sentimentpipeline polls configured social feeds, queues new interactions
and scores them in batches against a sentiment service.

Example usage:
  sentimentpipeline serve            # schedulers plus admin HTTP server
  sentimentpipeline cycle            # one scoring cycle
  sentimentpipeline ingest           # poll every source once
  sentimentpipeline import dump.json # bulk-load archived interactions`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				return os.Setenv(configPathEnv, cfgFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default $"+configPathEnv+")")

	build := func(cmd *cobra.Command) (*app.Application, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return app.New(cmd.Context(), cfg, logging.New(cfg.Logging))
	}

	root.AddCommand(
		newServeCmd(build),
		newCycleCmd(build),
		newIngestCmd(build),
		newRequeueCmd(build),
		newImportCmd(build),
		newMigrateCmd(build),
	)
	return root
}

func newServeCmd(build appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run cron schedulers and the admin HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
}

func newCycleCmd(build appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one scoring cycle and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.RunCycle(cmd.Context())
			if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func newIngestCmd(build appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Poll every configured source once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Ingest(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return report.Err()
		},
	}
}

func newRequeueCmd(build appFactory) *cobra.Command {
	var (
		limit    int
		priority int
	)
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Queue unscored interactions that have no live queue item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Requeue(cmd.Context(), limit, priority)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum interactions to examine")
	cmd.Flags().IntVar(&priority, "priority", -1, "queue priority (default from config)")
	return cmd
}

func newImportCmd(build appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Bulk-load archived interactions in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raws, err := readInteractions(args[0])
			if err != nil {
				return err
			}
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Import(cmd.Context(), raws)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newMigrateCmd(build appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func readInteractions(path string) ([]domain.RawInteraction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raws []domain.RawInteraction
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return raws, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
