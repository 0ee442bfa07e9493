package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeney/gas-monitor/internal/serial"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE:  runPorts,
	}
	RootCmd.AddCommand(cmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serial.Ports()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(out, p.String())
	}
	return nil
}
