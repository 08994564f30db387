package cmd

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pagelet/internal/server"
)

var renderCmd = &cobra.Command{
	Use:   "render <request-path>",
	Short: "Render a single page to stdout",
	Long: `Render one page through the same pipeline the server uses and print the
result. Redirects are reported instead of followed.

Examples:
  pagelet render /                     # Render the root index page
  pagelet render "/search.html?q=go"   # Query strings reach the script
  pagelet render -H "Cookie: s=1" /account/`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderMethod  string
	renderHeaders []string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderMethod, "method", "X", http.MethodGet, "Request method")
	renderCmd.Flags().StringArrayVarP(&renderHeaders, "header", "H", nil, "Request header (Name: value), repeatable")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// One-shot rendering never reuses an entry.
	cfg.Cache.Enabled = false
	cfg.Server.Compress = false

	srv, err := server.New(cfg, server.Dependencies{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	target := args[0]
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}

	req := httptest.NewRequest(renderMethod, target, nil)
	for _, h := range renderHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, expected Name: value", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	switch {
	case rec.Code >= 300 && rec.Code < 400:
		fmt.Fprintf(cmd.OutOrStdout(), "redirect %d %s\n", rec.Code, rec.Header().Get("Location"))
		return nil
	case rec.Code != http.StatusOK:
		return fmt.Errorf("render %s: %d %s", target, rec.Code, strings.TrimSpace(rec.Body.String()))
	}

	_, err = cmd.OutOrStdout().Write(rec.Body.Bytes())
	return err
}
