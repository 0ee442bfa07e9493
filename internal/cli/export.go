package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweeney/gas-monitor/internal/export"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export logged readings as CSV or JSON",
		Long:  "Export the gas log, optionally filtered by day, date range and gas range.",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}

	cmd.Flags().StringP("format", "f", export.FormatCSV, "Output format: csv or json")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	filterFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f, err := buildFilter(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	if format != export.FormatCSV && format != export.FormatJSON {
		return fmt.Errorf("unknown format %q (want csv or json)", format)
	}

	st, _ := openStore(cfg)

	if output == "" {
		_, err := export.Write(cmd.OutOrStdout(), format, st.Query(f))
		return err
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	n, err := export.Write(file, format, st.Query(f))
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", output, err)
	}
	log.Printf("exported %d entries to %s", n, output)
	return nil
}
