package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sweeney/gas-monitor/internal/status"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().String("url", "http://localhost:8080", "Base URL of the daemon")
	cmd.Flags().Bool("json", false, "Print the raw status JSON")
	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	base, _ := cmd.Flags().GetString("url")
	raw, _ := cmd.Flags().GetBool("json")

	data, err := fetchStatus(cmd.Context(), base)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if raw {
		_, err := out.Write(append(data, '\n'))
		return err
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	printStatus(out, sj.Status)
	return nil
}

func fetchStatus(ctx context.Context, base string) ([]byte, error) {
	endpoint := strings.TrimRight(base, "/") + "/index.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: %s", endpoint, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func printStatus(w io.Writer, s status.StatusInner) {
	link := s.Link.State
	if s.Link.Target != "" {
		link += " (" + s.Link.Target + ")"
	}
	fmt.Fprintf(w, "Link:        %s\n", link)
	if r := s.Reading; r != nil {
		alarm := "NORMAL"
		if r.Alarm {
			alarm = "WARNING"
		}
		fmt.Fprintf(w, "Gas level:   %d (%s, source %s)\n", r.Gas, alarm, s.Link.Source)
		fmt.Fprintf(w, "Threshold:   %d\n", r.Threshold)
		fmt.Fprintf(w, "LED:         %s\n", r.LED)
		fmt.Fprintf(w, "Buzzer:      %s\n", r.Buzzer)
		fmt.Fprintf(w, "Auto mode:   %s\n", r.Auto)
	} else {
		fmt.Fprintln(w, "Gas level:   no reading yet")
	}
	fmt.Fprintf(w, "Log entries: %d\n", s.LogEntries)
	fmt.Fprintf(w, "Uptime:      %ds\n", s.UptimeSeconds)
}
