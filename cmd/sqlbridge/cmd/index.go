package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abramin/sqlbridge/internal/config"
	"github.com/abramin/sqlbridge/internal/index"
)

var (
	indexSchema   string
	indexWorkers  int
	indexNoRender bool
	indexWatch    bool
	indexDebounce time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a schema dump and its PL/SQL packages",
	Long: `Parse the configured schema dump and package sources of a project.

The index command:
- Splits the DDL dump into table, view, index and trigger blocks
- Parses table columns, lengths and comments
- Segments package bodies into procedures and functions
- Extracts calls and table references per routine
- Resolves internal and cross-package calls
- Persists results to .sqlbridge/index.db
- Renders Go sources to the output directory unless disabled`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := projectDir(args)

		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}
		applyIndexFlags(cmd, cfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		indexer := index.NewIndexer(cfg, path)
		fmt.Printf("Indexing schema %s at: %s\n", cfg.SchemaName, path)

		if indexWatch {
			return indexer.Watch(ctx, indexDebounce, func(res *index.Result, err error) {
				if err != nil {
					fmt.Fprintf(os.Stderr, "indexing failed: %v\n", err)
					return
				}
				printResult(res)
			})
		}

		result, err := indexer.Run(ctx)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		printResult(result)
		return nil
	},
}

func applyIndexFlags(cmd *cobra.Command, cfg *config.Config) {
	if indexSchema != "" {
		cfg.SchemaName = indexSchema
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = indexWorkers
	}
	if indexNoRender {
		disabled := false
		cfg.Render.Enabled = &disabled
	}
}

func printResult(result *index.Result) {
	fmt.Println()
	fmt.Printf("Indexing complete!\n")
	fmt.Printf("  Run:       %s\n", result.RunID)
	fmt.Printf("  Input:     %s\n", result.InputSize())
	fmt.Printf("  Tables:    %d\n", result.TableCount)
	fmt.Printf("  Views:     %d\n", result.ViewCount)
	fmt.Printf("  Packages:  %d\n", result.PackageCount)
	fmt.Printf("  Routines:  %d\n", result.RoutineCount)
	fmt.Printf("  Calls:     %d resolved\n", result.CallEdgeCount)
	if result.Generated.Files > 0 {
		fmt.Printf("  Generated: %d files (%s)\n", result.Generated.Files, humanize.Bytes(uint64(result.Generated.Bytes)))
	}
	if n := len(result.BlockErrors) + len(result.RenderErrors); n > 0 {
		fmt.Printf("  Failures:  %d (see /api/errors or --verbose)\n", n)
	}
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  Database:  %s\n", result.DBPath)
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexSchema, "schema", "s", "", "schema name (overrides schema_name)")
	indexCmd.Flags().IntVarP(&indexWorkers, "workers", "w", 4, "number of package workers")
	indexCmd.Flags().BoolVar(&indexNoRender, "no-render", false, "skip Go code generation")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "re-index when the dump or package sources change")
	indexCmd.Flags().DurationVar(&indexDebounce, "debounce", index.DefaultDebounce, "quiet period before re-indexing in watch mode")
}
