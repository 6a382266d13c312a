// Package cli provides the command-line interface for enrichr.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/enrichr/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	noProgress bool

	// Global config, loaded before every command
	cfg        config.Config
	logCleanup = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "enrichr",
	Short: "Enrich spreadsheet columns with grounded web answers",
	Long: `Enrichr answers one question about every entity in a spreadsheet column.

For each distinct value it searches the web, indexes the results, and asks a
language model to answer strictly from that evidence. The output has exactly
one row per entity, in input order.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}

		logger, cleanup := config.SetupLogger(cfg.LogFile, level, showProgress(cmd))
		slog.SetDefault(logger)
		logCleanup = cleanup

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := logCleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "enrichr %s\n", Version)
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable the interactive progress bar")

	// Add subcommands
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(columnsCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(versionCmd)
}

// showProgress reports whether cmd should draw the interactive progress UI.
func showProgress(cmd *cobra.Command) bool {
	if cmd.Name() != "enrich" || noProgress || verbose {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
