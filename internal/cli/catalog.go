package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tutu-network/shapeq/internal/infra/catalog"
)

func init() {
	catalogCmd.Flags().StringVarP(&catalogOutput, "output", "o", "table", "Output format: table, json or yaml")
	rootCmd.AddCommand(catalogCmd)
}

var catalogOutput string

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Aliases: []string{"kinds"},
	Short:   "List task kinds and their service durations",
	RunE:    runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := cfg.BuildCatalog()
	if err != nil {
		return err
	}
	return printCatalog(os.Stdout, cat, catalogOutput)
}

func printCatalog(out io.Writer, cat *catalog.Catalog, format string) error {
	entries := cat.Entries()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tLABEL\tDURATION")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Kind, e.Label, e.ServiceDuration)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}
