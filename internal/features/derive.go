package features

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/opstrata/outage-cli/internal/dataset"
	"github.com/opstrata/outage-cli/internal/model"
)

// TextPlaceholder fills absent free-text fields before their length
// is measured, so an empty note contributes the placeholder's length
// rather than zero.
const TextPlaceholder = "missing"

// Column names of the derived feature table, numeric then categorical.
var (
	NumericColumns = []string{
		"duration_hours",
		"start_hour",
		"start_weekday",
		"start_month",
		"is_weekend",
		"problem_len",
		"action_len",
	}
	CategoricalColumns = []string{
		"incident_id",
		"entity",
		"application",
		"app_level",
		"change_attached",
		"crisis_level",
		"non_it_issue",
	}
)

// Derive converts cleaned records into a feature table and a label
// vector with matching row order. Timestamps are assumed parsed and
// ordered; ingest enforces that upstream. An empty record slice is an
// error the caller must stop on.
func Derive(records []model.Record) (*dataset.Table, []int, error) {
	if len(records) == 0 {
		return nil, nil, eris.New("features: no records to derive from")
	}

	n := len(records)
	num := make(map[string][]float64, len(NumericColumns))
	for _, name := range NumericColumns {
		num[name] = make([]float64, n)
	}
	cat := make(map[string][]string, len(CategoricalColumns))
	for _, name := range CategoricalColumns {
		cat[name] = make([]string, n)
	}
	labels := make([]int, n)

	for i, r := range records {
		wd := mondayWeekday(r.Start)
		num["duration_hours"][i] = r.Duration().Hours()
		num["start_hour"][i] = float64(r.Start.Hour())
		num["start_weekday"][i] = float64(wd)
		num["start_month"][i] = float64(int(r.Start.Month()))
		if wd >= 5 {
			num["is_weekend"][i] = 1
		}
		num["problem_len"][i] = float64(textLen(r.ProblemStatement))
		num["action_len"][i] = float64(textLen(r.CorrectiveAction))

		cat["incident_id"][i] = r.IncidentID
		cat["entity"][i] = r.Entity
		cat["application"][i] = r.Application
		cat["app_level"][i] = r.AppLevel
		cat["change_attached"][i] = r.ChangeAttached
		cat["crisis_level"][i] = r.CrisisLevel
		cat["non_it_issue"][i] = r.NonITIssue

		labels[i] = r.Label()
	}

	t := dataset.New(n)
	for _, name := range NumericColumns {
		if err := t.AddNumeric(name, num[name]); err != nil {
			return nil, nil, eris.Wrap(err, "features: build table")
		}
	}
	for _, name := range CategoricalColumns {
		if err := t.AddCategorical(name, cat[name]); err != nil {
			return nil, nil, eris.Wrap(err, "features: build table")
		}
	}

	pos := 0
	for _, y := range labels {
		pos += y
	}
	zap.L().Info("features derived",
		zap.Int("rows", n),
		zap.Int("positives", pos),
		zap.Int("negatives", n-pos))

	return t, labels, nil
}

// mondayWeekday maps time.Weekday (Sunday=0) onto the Monday=0
// convention the weekend check expects.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// textLen counts characters of the note after placeholder fill.
func textLen(s string) int {
	if strings.TrimSpace(s) == "" {
		s = TextPlaceholder
	}
	return utf8.RuneCountInString(s)
}
