package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jcrypt/internal/models"
	"github.com/TheMichaelB/jcrypt/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List or show recorded batch runs",
	Long: `History shows batches recorded in the run history store.

Without arguments every stored run is listed, oldest first. With a run ID
the full record is shown, including every failed file. History is only
written when history.enabled is set in the config. Use "history migrate"
to move stored runs to another backend.`,
	Example: `  jcrypt history
  jcrypt history 20240101-120000-a1b2c3 --json
  jcrypt history 20240101-120000-a1b2c3 --delete`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy recorded runs into another history backend",
	Long: `Migrate copies every run from the configured history backend into the
backend named by --to, in the same history directory. The source is left
as it is. Set history.backend afterwards to start using the new store.`,
	Example: `  jcrypt history migrate --to sqlite
  jcrypt history migrate --to json --config sqlite.yaml`,
	Args: cobra.NoArgs,
	RunE: runHistoryMigrate,
}

var (
	historyDelete    bool
	historyMigrateTo string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyMigrateCmd)

	historyCmd.Flags().BoolVar(&historyDelete, "delete", false,
		"Delete the given run")
	historyMigrateCmd.Flags().StringVar(&historyMigrateTo, "to", "sqlite",
		"Destination backend (json, sqlite)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := state.Open(&cfg.History, logger)
	if err != nil {
		return configError(err)
	}
	defer store.Close()

	if len(args) == 0 {
		if historyDelete {
			return usageError(errors.New("--delete needs a run ID"))
		}
		return listRuns(store)
	}

	id := args[0]
	if historyDelete {
		if err := store.Reset(id); err != nil {
			return fmt.Errorf("delete run %s: %w", id, err)
		}
		if jsonOutput {
			printJSON(os.Stdout, map[string]interface{}{"success": true, "deleted": id})
		} else {
			printSuccess("Deleted run %s", id)
		}
		return nil
	}

	rec, err := store.Load(id)
	if err != nil {
		if errors.Is(err, state.ErrRunNotFound) {
			return usageError(fmt.Errorf("no run %q", id))
		}
		return err
	}

	if jsonOutput {
		printJSON(os.Stdout, rec)
		return nil
	}
	showRun(rec)
	return nil
}

func listRuns(store state.Store) error {
	ids, err := store.List()
	if err != nil {
		return err
	}

	var runs []*models.RunRecord
	for _, id := range ids {
		rec, err := store.Load(id)
		if err != nil {
			logger.WithError(err).WithField("run_id", id).Warn("Skipping unreadable run")
			continue
		}
		runs = append(runs, rec)
	}

	if jsonOutput {
		printJSON(os.Stdout, runs)
		return nil
	}

	if len(runs) == 0 {
		printInfo("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tMODE\tFILES\tFAILED\tDATA\tTIME")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID,
			humanize.Time(r.StartedAt),
			r.Mode,
			len(r.Files),
			r.Failed,
			humanize.Bytes(uint64(r.Bytes)),
			r.Elapsed.Round(time.Millisecond),
		)
	}
	return w.Flush()
}

func showRun(r *models.RunRecord) {
	fmt.Printf("Run %s\n", r.ID)
	fmt.Printf("   Started:   %s (%s)\n", r.StartedAt.Local().Format(time.RFC3339), humanize.Time(r.StartedAt))
	fmt.Printf("   Mode:      %s\n", r.Mode)
	fmt.Printf("   Workers:   %d (%s)\n", r.Workers, r.Strategy)
	fmt.Printf("   Files:     %d completed, %d failed of %d\n", r.Completed, r.Failed, len(r.Files))
	fmt.Printf("   Data:      %s\n", humanize.Bytes(uint64(r.Bytes)))
	fmt.Printf("   Duration:  %s\n", r.Elapsed.Round(time.Millisecond))
	if r.Cancelled {
		printWarning("   Cancelled before every file was processed")
	}

	for _, f := range r.Failures {
		fmt.Printf("   [%d] %s: %s (%s)\n", f.Index, f.Path, f.Message, f.Kind)
	}
}

func runHistoryMigrate(cmd *cobra.Command, args []string) error {
	from := cfg.History
	if from.Backend == "" {
		from.Backend = "json"
	}

	to := from
	to.Backend = strings.ToLower(historyMigrateTo)
	switch {
	case to.Backend != "json" && to.Backend != "sqlite":
		return usageError(fmt.Errorf("unknown history backend %q", historyMigrateTo))
	case to.Backend == from.Backend:
		return usageError(fmt.Errorf("history already uses the %s backend", from.Backend))
	}

	src, err := state.Open(&from, logger)
	if err != nil {
		return configError(err)
	}
	defer src.Close()

	dst, err := state.Open(&to, logger)
	if err != nil {
		return configError(err)
	}
	defer dst.Close()

	copied, err := state.Migrate(src, dst, logger)
	if err != nil {
		return fmt.Errorf("migrate history after %d runs: %w", copied, err)
	}

	if jsonOutput {
		printJSON(os.Stdout, map[string]interface{}{
			"success": true,
			"from":    from.Backend,
			"to":      to.Backend,
			"copied":  copied,
		})
	} else {
		printSuccess("Copied %d runs from %s to %s", copied, from.Backend, to.Backend)
	}
	return nil
}
