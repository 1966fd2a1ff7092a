package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/opstrata/outage-cli/internal/ingest"
	"github.com/opstrata/outage-cli/internal/model"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Parse and clean an export without training",
	Long:  "Reads an incident export, applies the same cleaning the training pipeline uses and prints what survived: row and drop counts, class balance and the covered time span.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("file")
		fileOpts, cleanOpts := ingestOptions(cmd)

		res, err := ingest.Load(file, fileOpts, cleanOpts)
		if err != nil {
			return eris.Wrap(err, "inspect")
		}

		formatInspect(os.Stdout, file, res)
		return nil
	},
}

func init() {
	inspectCmd.Flags().String("file", "", "path to the incident export, CSV or XLSX (required)")
	addIngestFlags(inspectCmd)
	_ = inspectCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(inspectCmd)
}

// formatInspect writes a cleaning summary to w.
func formatInspect(out io.Writer, file string, res *ingest.Result) {
	outages := 0
	var first, last time.Time
	for i, r := range res.Records {
		if r.Label() == model.LabelOutage {
			outages++
		}
		if i == 0 || r.Start.Before(first) {
			first = r.Start
		}
		if r.End.After(last) {
			last = r.End
		}
	}
	routine := len(res.Records) - outages

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "File:\t%s\n", file)
	_, _ = fmt.Fprintf(w, "Rows parsed:\t%d\n", res.TotalRows)
	_, _ = fmt.Fprintf(w, "Dropped, bad timestamps:\t%d\n", res.DroppedBadTime)
	_, _ = fmt.Fprintf(w, "Dropped, end before start:\t%d\n", res.DroppedOrder)
	_, _ = fmt.Fprintf(w, "Usable records:\t%d\n", len(res.Records))
	_, _ = fmt.Fprintf(w, "Outages (P3/P4):\t%d\n", outages)
	_, _ = fmt.Fprintf(w, "Routine:\t%d\n", routine)
	if outages > 0 {
		_, _ = fmt.Fprintf(w, "Imbalance:\t%.1f routine per outage\n", float64(routine)/float64(outages))
	}
	if len(res.Records) > 0 {
		_, _ = fmt.Fprintf(w, "Span:\t%s .. %s\n",
			first.Format("2006-01-02"), last.Format("2006-01-02"))
	}
	_ = w.Flush()
}
