package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abramin/sqlbridge/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sqlbridge",
	Short: "SQLBridge - Map Oracle schema dumps and PL/SQL packages to Go",
	Long: `SQLBridge reads an Oracle DDL export and a directory of PL/SQL package
sources, extracts tables, views, routines and their call graph, and
persists them to a local index that can be browsed over HTTP.

Optionally it renders Go entity structs for the tables and one Go file
per routine, annotated with the tables it touches.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <path>/sqlbridge.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads --config when given, otherwise sqlbridge.yaml in dir.
func loadConfig(dir string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadFromDir(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func projectDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
