package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/opstrata/outage-cli/internal/model"
	"github.com/opstrata/outage-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored training runs",
	Long:  "Commands for listing and viewing past training runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List training runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Source: source,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		formatRunsSummary(os.Stdout, summarizeRuns(runs))
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, complete, failed, ...)")
	runsListCmd.Flags().String("source", "", "filter by export source")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// runsSummary holds aggregate statistics for a list footer.
type runsSummary struct {
	Total    int
	Complete int
	Failed   int
	Other    int
	BestAUC  float64
	BestID   string
}

// summarizeRuns computes the footer statistics for a list of runs.
func summarizeRuns(runs []model.Run) runsSummary {
	var s runsSummary
	s.Total = len(runs)

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			if r.Result != nil && r.Result.Metrics.ROCAUC > s.BestAUC {
				s.BestAUC = r.Result.Metrics.ROCAUC
				s.BestID = r.ID
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Other++
		}
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tRECORDS\tROC-AUC\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t-------\t-------\t--------")

	for _, r := range runs {
		auc := "-"
		dur := "-"
		if r.Result != nil {
			auc = fmt.Sprintf("%.4f", r.Result.Metrics.ROCAUC)
			dur = (time.Duration(r.Result.Duration) * time.Millisecond).Round(time.Millisecond).String()
		}

		source := r.Dataset.Source
		if len(source) > 30 {
			source = source[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			source,
			r.Status,
			r.Dataset.Records,
			auc,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunsSummary writes the aggregate footer to w.
func formatRunsSummary(out io.Writer, s runsSummary) {
	_, _ = fmt.Fprintf(out, "\n%d runs: %d complete, %d failed", s.Total, s.Complete, s.Failed)
	if s.Other > 0 {
		_, _ = fmt.Fprintf(out, ", %d in progress", s.Other)
	}
	if s.BestID != "" {
		_, _ = fmt.Fprintf(out, ". Best ROC-AUC %.4f (%s)", s.BestAUC, truncateID(s.BestID))
	}
	_, _ = fmt.Fprintln(out)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
