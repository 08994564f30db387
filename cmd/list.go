package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagelet/internal/scanner"
	"github.com/conneroisu/pagelet/internal/server"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List the pages under the document root",
	Long: `List every page under the document root with the route it is served at,
the number of server scripts it carries and a content checksum. Pages that
fail to parse are listed with their error.

Examples:
  pagelet list                    # Table output
  pagelet list -f json            # Output as JSON
  pagelet list -f yaml -r ./site  # YAML for another root`,
	RunE: runList,
}

var (
	listFormat string
	listStrict bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format (table, json, yaml)")
	listCmd.Flags().BoolVar(&listStrict, "strict", false, "Fail when any page does not parse")

	AddFlagValidation(listCmd.Flags(), "format", func(format string) error {
		return ValidateFormat(format, []string{"table", "json", "yaml"})
	})
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fs, err := server.NewDocroot(cfg.Site.Root)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", cfg.Site.Root, err)
	}
	pages, err := scanner.New(fs, cfg.Site.Index, scanner.WithLogger(logger)).Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", cfg.Site.Root, err)
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(listFormat) {
	case "json":
		err = outputListJSON(out, pages)
	case "yaml":
		err = outputListYAML(out, pages)
	default:
		if len(pages) == 0 {
			fmt.Fprintln(out, "No pages found.")
			return nil
		}
		err = outputListTable(out, pages)
	}
	if err != nil {
		return err
	}

	if listStrict {
		return scanner.Errors(pages)
	}
	return nil
}

func outputListJSON(w io.Writer, pages []scanner.PageInfo) error {
	if pages == nil {
		pages = []scanner.PageInfo{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(pages)
}

func outputListYAML(w io.Writer, pages []scanner.PageInfo) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	return encoder.Encode(pages)
}

func outputListTable(w io.Writer, pages []scanner.PageInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tPATH\tKIND\tSIZE\tCHECKSUM")

	for _, p := range pages {
		kind := "dynamic"
		switch {
		case p.Err != "":
			kind = "error: " + p.Err
		case p.Static():
			kind = "static"
		case p.ServerScripts > 1:
			kind = fmt.Sprintf("dynamic (%d scripts, first used)", p.ServerScripts)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.Route, p.Path, kind, p.Size, p.Checksum)
	}

	return tw.Flush()
}
