package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the lfbench cobra command tree: a single "run"
// subcommand configurable by flags or a --config YAML file, following
// the flags-plus-config-file convention common across the retrieval
// pack's own CLI entry points.
func NewRootCommand() *cobra.Command {
	var (
		configPath string
		cfg        = DefaultWorkloadConfig()
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "lfbench",
		Short: "Drive the lfindex Bw-Tree and skip-list engines under concurrent load",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one benchmark workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				loaded, err := LoadWorkloadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()

			stats, err := Run(context.Background(), cfg, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"run %s: engine=%s inserts=%d deletes=%d reads=%d not_found=%d gc_passes=%d wall_clock=%s\n",
				stats.RunID, cfg.Engine, stats.Inserts, stats.Deletes, stats.Reads, stats.NotFound, stats.GCPasses, stats.WallClock)
			return nil
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML workload config (overrides flags below)")
	runCmd.Flags().StringVar(&cfg.Engine, "engine", cfg.Engine, `index engine: "bwtree" or "skiplist"`)
	runCmd.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "number of concurrent worker goroutines")
	runCmd.Flags().IntVar(&cfg.Operations, "operations", cfg.Operations, "total operations across all workers")
	runCmd.Flags().IntVar(&cfg.KeySpace, "key-space", cfg.KeySpace, "size of the random key space")
	runCmd.Flags().BoolVar(&cfg.UniqueKeys, "unique-keys", cfg.UniqueKeys, "enforce unique-key semantics (bwtree only)")
	runCmd.Flags().DurationVar(&cfg.Duration, "duration", cfg.Duration, "maximum wall-clock time for the run")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(runCmd)
	return root
}
