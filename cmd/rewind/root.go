package main

import (
	"fmt"
	"os"

	"github.com/aretw0/rewind/internal/config"
	"github.com/spf13/cobra"
)

// cfg is resolved before any subcommand runs: environment first, then flags.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "rewind",
	Short: "Rewind records undo history for a component graph",
	Long: `Rewind watches a component graph, groups its changes into undo units and replays them.
Scenarios can be replayed from YAML scripts or edited live over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			loaded.LogLevel, _ = flags.GetString("log-level")
		}
		if flags.Changed("history-depth") {
			loaded.HistoryDepth, _ = flags.GetInt("history-depth")
		}
		if flags.Changed("document") {
			loaded.Document, _ = flags.GetString("document")
		}
		if loaded.HistoryDepth < 1 {
			return fmt.Errorf("--history-depth must be positive, got %d", loaded.HistoryDepth)
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("history-depth", 100, "Maximum number of undo units kept")
	rootCmd.PersistentFlags().String("document", "root", "Document (container) name guarded by checkout")
}
