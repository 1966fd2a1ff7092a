package model

import (
	"strings"
	"time"
)

// Record is a single incident row from an ITSM export, after type
// coercion but before feature derivation.
type Record struct {
	IncidentID       string    `json:"incident_id"`
	ChangeAttached   string    `json:"change_attached"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	AppLevel         string    `json:"app_level"`
	Entity           string    `json:"entity"`
	Application      string    `json:"application"`
	CrisisLevel      string    `json:"crisis_level"`
	NonITIssue       string    `json:"non_it_issue"`
	ProblemStatement string    `json:"problem_statement"`
	CorrectiveAction string    `json:"corrective_action"`
}

// Outage label values. Incidents whose crisis level marks a major
// outage are the positive (minority) class.
const (
	LabelRoutine = 0
	LabelOutage  = 1
)

// outageLevels are the crisis levels that count as a major outage.
var outageLevels = map[string]bool{
	"P3": true,
	"P4": true,
}

// IsOutage reports whether the record's crisis level marks a major
// outage. Matching is case-insensitive and ignores surrounding space.
func (r Record) IsOutage() bool {
	return outageLevels[strings.ToUpper(strings.TrimSpace(r.CrisisLevel))]
}

// Label returns the training label for the record.
func (r Record) Label() int {
	if r.IsOutage() {
		return LabelOutage
	}
	return LabelRoutine
}

// Duration returns the incident's open interval. It is negative when
// the export has the timestamps reversed; ingest drops such rows.
func (r Record) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
