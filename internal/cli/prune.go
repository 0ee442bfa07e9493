package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeney/gas-monitor/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old log entries",
		Long: "Delete log entries older than the retention period (log.retention by default), " +
			"or every entry between --from and --to inclusive. Stop the daemon first; " +
			"it rewrites the log file on its next save.",
		Args: cobra.NoArgs,
		RunE: runPrune,
	}

	cmd.Flags().Duration("older-than", 0, "Age limit (default log.retention)")
	cmd.Flags().String("from", "", "First day to delete (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day to delete (YYYY-MM-DD)")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	var pe *store.PersistenceError
	if err != nil && (!errors.As(err, &pe) || pe.Skipped == 0) {
		// Saving now would replace an unreadable file with an empty log.
		return fmt.Errorf("refusing to prune: %w", err)
	}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	out := cmd.OutOrStdout()

	if from != "" || to != "" {
		if from == "" || to == "" {
			return errors.New("--from and --to must be given together")
		}
		start, err := parseDay("from", from)
		if err != nil {
			return err
		}
		end, err := parseDay("to", to)
		if err != nil {
			return err
		}
		if end.Before(start) {
			return fmt.Errorf("--to %s is before --from %s", to, from)
		}
		f := store.Days(start, end)
		n, err := st.PruneRange(f.From, f.To)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %d entries from %s to %s (%d remain)\n", n, from, to, st.Len())
		return nil
	}

	age, _ := cmd.Flags().GetDuration("older-than")
	if age <= 0 {
		age = cfg.Log.Retention
	}
	n, err := st.Prune(age)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(out, "no entries older than %v\n", age)
		return nil
	}
	fmt.Fprintf(out, "deleted %d entries older than %v (%d remain)\n", n, age, st.Len())
	return nil
}
