// Package report renders a stored training run as text and as a
// static HTML page. It is pure presentation; nothing here mutates
// the run.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/opstrata/outage-cli/internal/model"
)

// topFeatureCount caps the feature-importance listing. The full
// ranking stays on the run itself.
const topFeatureCount = 15

//go:embed report.html.tmpl
var htmlSource string

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"f2":     func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"f4":     func(v float64) string { return fmt.Sprintf("%.4f", v) },
	"ms":     fmtMS,
	"depth":  depthString,
	"params": paramsString,
}).Parse(htmlSource))

// FormatText generates a human-readable report for a run. Sections
// that have nothing to show are left out, so a run that failed before
// evaluation renders its phases and error without empty metric blocks.
func FormatText(run *model.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Training Run %s\n", run.ID)
	fmt.Fprintf(&b, "Source: %s\n", run.Dataset.Source)
	fmt.Fprintf(&b, "Status: %s\n", run.Status)
	if !run.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Created: %s\n", run.CreatedAt.Format(time.RFC3339))
	}
	b.WriteString("\n")

	b.WriteString("## Dataset\n")
	fmt.Fprintf(&b, "- Records: %d\n", run.Dataset.Records)
	fmt.Fprintf(&b, "- Outages: %d\n", run.Dataset.Positives)
	fmt.Fprintf(&b, "- Routine: %d\n", run.Dataset.Negatives)
	if run.Dataset.Positives > 0 {
		fmt.Fprintf(&b, "- Imbalance: %.1f routine per outage\n",
			float64(run.Dataset.Negatives)/float64(run.Dataset.Positives))
	}
	b.WriteString("\n")

	res := run.Result
	if res == nil {
		b.WriteString("No result recorded.\n")
		return b.String()
	}

	b.WriteString("## Settings\n")
	fmt.Fprintf(&b, "- Seed: %d\n", res.Seed)
	fmt.Fprintf(&b, "- Test fraction: %.2f\n", res.TestFraction)
	fmt.Fprintf(&b, "- Folds: %d\n", res.Folds)
	fmt.Fprintf(&b, "- Train rows: %d (rebalanced to %d)\n", res.TrainRows, res.RebalancedRows)
	fmt.Fprintf(&b, "- Test rows: %d\n", res.TestRows)
	fmt.Fprintf(&b, "- Features: %d\n", res.Features)
	fmt.Fprintf(&b, "- Duration: %s\n", fmtMS(res.Duration))
	b.WriteString("\n")

	if len(res.Phases) > 0 {
		b.WriteString("## Phases\n")
		for _, p := range res.Phases {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", p.Name, p.Status, fmtMS(p.Duration))
			if p.Error != "" {
				fmt.Fprintf(&b, "  Error: %s\n", p.Error)
			}
		}
		b.WriteString("\n")
	}

	if res.Error != "" {
		fmt.Fprintf(&b, "## Error\n%s\n\n", res.Error)
	}

	if len(res.Candidates) > 0 {
		b.WriteString("## Cross-Validation\n")
		fmt.Fprintf(&b, "- Candidates: %d\n", len(res.Candidates))
		fmt.Fprintf(&b, "- Best: %s\n", paramsString(res.Best))
		fmt.Fprintf(&b, "- Best mean ROC-AUC: %.4f\n", res.CVScore)
		for _, c := range res.Candidates {
			if c.Failed {
				fmt.Fprintf(&b, "- %s: failed (%s)\n", paramsString(c.Params), c.Note)
				continue
			}
			fmt.Fprintf(&b, "- %s: %.4f\n", paramsString(c.Params), c.Mean)
		}
		b.WriteString("\n")
	}

	if m := res.Metrics; m.TestRows > 0 {
		b.WriteString("## Held-Out Metrics\n")
		fmt.Fprintf(&b, "- ROC-AUC: %.4f\n", m.ROCAUC)
		fmt.Fprintf(&b, "- PR-AUC: %.4f\n", m.PRAUC)
		fmt.Fprintf(&b, "- Accuracy: %.4f\n\n", m.Accuracy)

		b.WriteString("## Confusion Matrix\n")
		fmt.Fprintf(&b, "%16s %18s %18s\n", "", "predicted routine", "predicted outage")
		fmt.Fprintf(&b, "%16s %18d %18d\n", "actual routine", m.Confusion[0][0], m.Confusion[0][1])
		fmt.Fprintf(&b, "%16s %18d %18d\n\n", "actual outage", m.Confusion[1][0], m.Confusion[1][1])

		if m.Report != "" {
			b.WriteString("## Classification Report\n")
			b.WriteString(m.Report)
			b.WriteString("\n")
		}
	}

	if len(res.Importances) > 0 {
		b.WriteString("## Top Features\n")
		for _, f := range topFeatures(res.Importances, topFeatureCount) {
			fmt.Fprintf(&b, "- %s: %.4f\n", f.Feature, f.Score)
		}
	}

	return b.String()
}

// htmlData is the template context for the HTML report.
type htmlData struct {
	Run         *model.Run
	Result      *model.TrainResult
	TopFeatures []model.FeatureImportance
	Generated   time.Time
}

// FormatHTML renders the run as a self-contained HTML page.
func FormatHTML(run *model.Run) (string, error) {
	data := htmlData{
		Run:       run,
		Result:    run.Result,
		Generated: time.Now(),
	}
	if run.Result != nil {
		data.TopFeatures = topFeatures(run.Result.Importances, topFeatureCount)
	}

	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return "", eris.Wrap(err, "report: render html")
	}
	return buf.String(), nil
}

// topFeatures returns the first n importances. Evaluation hands them
// over already ranked.
func topFeatures(imps []model.FeatureImportance, n int) []model.FeatureImportance {
	if len(imps) <= n {
		return imps
	}
	return imps[:n]
}

func paramsString(hp model.Hyperparams) string {
	return fmt.Sprintf("trees=%d depth=%s split=%d leaf=%d weight=%s",
		hp.Trees, depthString(hp.MaxDepth), hp.MinSamplesSplit, hp.MinSamplesLeaf, hp.ClassWeight)
}

// depthString renders the unbounded-depth sentinel as a word.
func depthString(d int) string {
	if d <= 0 {
		return "none"
	}
	return strconv.Itoa(d)
}

func fmtMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
