package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pagelet/internal/config"
	"github.com/conneroisu/pagelet/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the pages under the document root",
	Long: `Start the HTTP server. Every request is mapped to a page under the
document root; directory requests get the index page.

Examples:
  pagelet serve                        # Serve ./src on localhost:3000
  pagelet serve -r ./site -p 8080      # Serve ./site on port 8080
  pagelet serve --cache=false          # Recompile pages on every request`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.IntP("port", "p", config.DefaultPort, "Port to serve on")
	flags.String("host", config.DefaultHost, "Host to bind to")
	flags.Bool("cache", true, "Cache compiled pages")
	flags.Bool("compress", true, "Compress responses with gzip")
	flags.String("temp-dir", "", "Directory for temporary script units (default is the OS temp dir)")
	flags.Duration("script-timeout", 0, "Maximum run time of a server script (0 disables)")
	flags.Int("pool-size", config.DefaultPoolSize, "Number of script runtimes per page")
	flags.Int("max-token-size", 0, "Largest markup token a page may hold in bytes (0 is unlimited)")

	bindFlags(flags, map[string]string{
		"port":           "server.port",
		"host":           "server.host",
		"cache":          "cache.enabled",
		"compress":       "server.compress",
		"temp-dir":       "script.temp_dir",
		"script-timeout": "script.timeout",
		"pool-size":      "script.pool_size",
		"max-token-size": "site.max_token_size",
	})

	AddFlagValidation(flags, "port", ValidatePort)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Dependencies{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		select {
		case <-srv.Ready():
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", cfg.Site.Root, srv.Addr())
		case <-ctx.Done():
		}
	}()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
