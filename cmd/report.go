package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/opstrata/outage-cli/internal/model"
	"github.com/opstrata/outage-cli/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Regenerate the report for a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("report"); err != nil {
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
			return eris.Wrap(err, "report")
		}

		var content string
		if html, _ := cmd.Flags().GetBool("html"); html {
			content, err = report.FormatHTML(run)
			if err != nil {
				return err
			}
		} else {
			content = report.FormatText(run)
		}

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
				return eris.Wrap(err, "write report")
			}
			fmt.Fprintf(os.Stderr, "Report written to %s\n", out)
			return nil
		}

		fmt.Print(content)
		return nil
	},
}

func init() {
	reportCmd.Flags().Bool("html", false, "render HTML instead of text")
	reportCmd.Flags().String("out", "", "write to a file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}

// writeReportFiles renders the run as text and HTML files named after
// the run id inside dir, creating it if needed.
func writeReportFiles(run *model.Run, dir string) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", eris.Wrap(err, "create report dir")
	}

	textPath := filepath.Join(dir, run.ID+".md")
	if err := os.WriteFile(textPath, []byte(report.FormatText(run)), 0o644); err != nil {
		return "", "", eris.Wrap(err, "write text report")
	}

	html, err := report.FormatHTML(run)
	if err != nil {
		return "", "", err
	}
	htmlPath := filepath.Join(dir, run.ID+".html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return "", "", eris.Wrap(err, "write html report")
	}

	return textPath, htmlPath, nil
}
