package cli

import (
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sweeney/gas-monitor/internal/export"
	"github.com/sweeney/gas-monitor/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show logged readings",
		Long: "Show the gas log. By default prints the 10 most recent entries; " +
			"--all or any filter flag selects from the whole log instead.",
		Args: cobra.NoArgs,
		RunE: runLogs,
	}

	cmd.Flags().IntP("recent", "n", 10, "Number of recent entries to show")
	cmd.Flags().Bool("all", false, "Show every entry")
	cmd.Flags().StringP("format", "f", "text", "Output format: text, csv or json")
	filterFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f, err := buildFilter(cmd)
	if err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("recent")
	all, _ := cmd.Flags().GetBool("all")
	format, _ := cmd.Flags().GetString("format")

	st, _ := openStore(cfg)

	var entries iter.Seq[store.Entry]
	if all || filtered(f) {
		entries = st.Query(f)
	} else {
		entries = slices.Values(st.Recent(n))
	}

	out := cmd.OutOrStdout()
	if format == "text" {
		count, err := writeTable(out, entries)
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Fprintln(out, "no log entries")
		}
		return nil
	}
	_, err = export.Write(out, format, entries)
	return err
}

// writeTable prints entries as aligned columns, header first.
func writeTable(w io.Writer, entries iter.Seq[store.Entry]) (int, error) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	count := 0
	for e := range entries {
		if count == 0 {
			fmt.Fprintln(tw, strings.Join(export.Header, "\t"))
		}
		fmt.Fprintln(tw, strings.Join(export.Row(e), "\t"))
		count++
	}
	return count, tw.Flush()
}
