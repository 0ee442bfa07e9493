// Package cli implements the gas-monitor commands.
package cli

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/gas-monitor/internal/config"
	"github.com/sweeney/gas-monitor/internal/protocol"
	"github.com/sweeney/gas-monitor/internal/store"
)

const dateLayout = "2006-01-02"

var (
	configPath string
	portFlag   string
	logFlag    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "gas-monitor",
	Short:         "Serial gas sensor monitor",
	Long:          "Reads telemetry from a gas sensor board over serial, logs significant changes and controls its LED, buzzer and threshold.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file (YAML)")
	RootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "Serial port (overrides serial.port; empty picks the first port found)")
	RootCmd.PersistentFlags().StringVar(&logFlag, "log-file", "", "Gas log file (overrides log.path)")
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.ExecuteContext(context.Background())
}

// loadConfig reads the config file and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Serial.Port = portFlag
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.Path = logFlag
	}
	return cfg, cfg.Validate()
}

// openStore loads the gas log. Load problems are logged and returned; the
// store holds whatever could be read.
func openStore(cfg config.Config) (*store.Store, error) {
	st := store.New(cfg.Log.Path, store.Options{SaveEvery: cfg.Log.SaveEvery})
	err := st.Load()
	if err != nil {
		log.Printf("store: %v", err)
	}
	return st, err
}

// filterFlags registers the shared log filter flags on cmd.
func filterFlags(cmd *cobra.Command) {
	cmd.Flags().String("day", "", "Only entries from this day (YYYY-MM-DD)")
	cmd.Flags().String("from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day to include (YYYY-MM-DD)")
	cmd.Flags().Int("min", -1, "Minimum gas value")
	cmd.Flags().Int("max", -1, "Maximum gas value")
}

// buildFilter reads the flags registered by filterFlags.
func buildFilter(cmd *cobra.Command) (store.Filter, error) {
	var f store.Filter

	day, _ := cmd.Flags().GetString("day")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	if day != "" {
		d, err := parseDay("day", day)
		if err != nil {
			return f, err
		}
		f = store.Day(d)
	}
	if from != "" {
		d, err := parseDay("from", from)
		if err != nil {
			return f, err
		}
		f.From = store.Day(d).From
	}
	if to != "" {
		d, err := parseDay("to", to)
		if err != nil {
			return f, err
		}
		f.To = store.Day(d).To
	}

	lo, _ := cmd.Flags().GetInt("min")
	hi, _ := cmd.Flags().GetInt("max")
	if lo >= 0 || hi >= 0 {
		g := store.GasRange{Min: protocol.MinGas, Max: protocol.MaxGas}
		if lo >= 0 {
			g.Min = lo
		}
		if hi >= 0 {
			g.Max = hi
		}
		if g.Min > g.Max {
			return f, fmt.Errorf("--min %d is above --max %d", g.Min, g.Max)
		}
		f.Gas = &g
	}
	return f, nil
}

func filtered(f store.Filter) bool {
	return !f.From.IsZero() || !f.To.IsZero() || f.Gas != nil
}

func parseDay(flag, s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, s)
	}
	return d, nil
}
