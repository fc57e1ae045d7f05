// Package cli is the dbtyper command line.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/logger"
)

// RootOptions holds flags shared by every command. Non-zero values override
// the environment configuration.
type RootOptions struct {
	EnvFile       string
	CatalogPath   string
	Workers       int
	StreamTimeout time.Duration
	Streams       []string
}

// NewRootCommand creates the root command for the dbtyper CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dbtyper",
		Short: "Type and deduplicate raw JSON records into final tables",
		Long: `dbtyper maintains typed final tables from raw JSON record tables in a
destination database (postgres, mysql or sqlite).

Each stream declared in the catalog is inspected, planned and brought up to
date in its own transaction sequence. Configuration comes from the
environment (see .env); flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.CatalogPath, "catalog", "", "override CATALOG_PATH")
	cmd.PersistentFlags().IntVar(&opts.Workers, "workers", 0, "override WORKERS (must be > 0)")
	cmd.PersistentFlags().DurationVar(&opts.StreamTimeout, "stream-timeout", 0, "override STREAM_TIMEOUT")
	cmd.PersistentFlags().StringSliceVar(&opts.Streams, "streams", nil, "override STREAMS (namespace.name, comma separated)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := NewRootCommand().Execute()
	if err == nil {
		return ExitSuccess
	}
	if logger.Log != nil {
		logger.Log.Error("Command failed", zap.Error(err))
		_ = logger.Log.Sync()
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return GetExitCode(err)
}
