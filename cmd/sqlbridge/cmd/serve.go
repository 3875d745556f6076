package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abramin/sqlbridge/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve [path]",
	Short: "Start the SQLBridge API server",
	Long: `Start a local HTTP server over an existing index.

The server provides:
- Table, view and package browsing
- Routine details with calls, callers and table references
- The direct call neighbourhood of a routine
- Search over tables, views and routines
- The rendered Go sources`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := projectDir(args)

		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Port:      servePort,
			DBDir:     resolve(path, cfg.DBDir),
			OutputDir: resolve(path, cfg.OutputDir),
		})
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Serving SQLBridge API on http://localhost:%d\n", srv.Port())
		return srv.Start(ctx)
	},
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to run the server on")
}
