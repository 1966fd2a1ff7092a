package ingest

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/opstrata/outage-cli/internal/model"
)

// Canonical export column names. Header matching normalizes case,
// surrounding space and separators, so "Crisis Level" maps cleanly.
const (
	colIncidentID       = "incident_id"
	colChangeAttached   = "change_attached"
	colStartTime        = "start_time"
	colEndTime          = "end_time"
	colAppLevel         = "app_level"
	colEntity           = "entity"
	colApplication      = "application"
	colCrisisLevel      = "crisis_level"
	colNonITIssue       = "non_it_issue"
	colProblemStatement = "problem_statement"
	colCorrectiveAction = "corrective_action"
)

var requiredColumns = []string{colStartTime, colEndTime, colCrisisLevel}

// DefaultTimeLayouts are tried in order against timestamp cells.
var DefaultTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01-02-06 15:04:05",
}

// Sentinel errors callers branch on.
var (
	ErrMissingColumns = eris.New("ingest: required columns missing")
	ErrNoRecords      = eris.New("ingest: no usable records after cleaning")
)

// CleanOptions configure row cleaning.
type CleanOptions struct {
	TimeLayouts []string
}

// Result holds the cleaned records and what cleaning discarded.
type Result struct {
	Records        []model.Record
	TotalRows      int
	DroppedBadTime int
	DroppedOrder   int
}

// Clean maps export rows onto records, parsing timestamps and
// dropping rows that violate the start <= end invariant or fail to
// parse. Cleaning must leave at least one record or the pipeline has
// nothing to train on.
func Clean(header []string, rows [][]string, opts CleanOptions) (*Result, error) {
	index := map[string]int{}
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingColumns, "%s", strings.Join(missing, ", "))
	}

	layouts := opts.TimeLayouts
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}

	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	res := &Result{TotalRows: len(rows)}
	for _, row := range rows {
		start, okStart := parseTime(cell(row, colStartTime), layouts)
		end, okEnd := parseTime(cell(row, colEndTime), layouts)
		if !okStart || !okEnd {
			res.DroppedBadTime++
			continue
		}
		if start.After(end) {
			res.DroppedOrder++
			continue
		}
		res.Records = append(res.Records, model.Record{
			IncidentID:       cell(row, colIncidentID),
			ChangeAttached:   cell(row, colChangeAttached),
			Start:            start,
			End:              end,
			AppLevel:         cell(row, colAppLevel),
			Entity:           cell(row, colEntity),
			Application:      cell(row, colApplication),
			CrisisLevel:      cell(row, colCrisisLevel),
			NonITIssue:       cell(row, colNonITIssue),
			ProblemStatement: cell(row, colProblemStatement),
			CorrectiveAction: cell(row, colCorrectiveAction),
		})
	}

	if len(res.Records) == 0 {
		return nil, eris.Wrapf(ErrNoRecords, "%d rows read, %d bad timestamps, %d reversed intervals",
			res.TotalRows, res.DroppedBadTime, res.DroppedOrder)
	}

	zap.L().Info("export cleaned",
		zap.Int("rows", res.TotalRows),
		zap.Int("records", len(res.Records)),
		zap.Int("dropped_bad_time", res.DroppedBadTime),
		zap.Int("dropped_reversed", res.DroppedOrder))

	return res, nil
}

// Load reads and cleans an export in one step.
func Load(path string, fileOpts FileOptions, cleanOpts CleanOptions) (*Result, error) {
	header, rows, err := ReadFile(path, fileOpts)
	if err != nil {
		return nil, err
	}
	return Clean(header, rows, cleanOpts)
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "-", " ")
	h = strings.ReplaceAll(h, "_", " ")
	return strings.ReplaceAll(strings.Join(strings.Fields(h), " "), " ", "_")
}

func parseTime(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
