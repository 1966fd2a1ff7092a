package model

import "time"

// RunStatus represents the current state of a training run.
type RunStatus string

const (
	RunStatusQueued       RunStatus = "queued"
	RunStatusDeriving     RunStatus = "deriving"
	RunStatusSplitting    RunStatus = "splitting"
	RunStatusTransforming RunStatus = "transforming"
	RunStatusRebalancing  RunStatus = "rebalancing"
	RunStatusSearching    RunStatus = "searching"
	RunStatusEvaluating   RunStatus = "evaluating"
	RunStatusComplete     RunStatus = "complete"
	RunStatusFailed       RunStatus = "failed"
)

// DatasetInfo describes the cleaned dataset a run trained on.
type DatasetInfo struct {
	Source    string `json:"source"`
	Records   int    `json:"records"`
	Positives int    `json:"positives"`
	Negatives int    `json:"negatives"`
}

// Run represents a single training run over one dataset.
type Run struct {
	ID        string       `json:"id"`
	Dataset   DatasetInfo  `json:"dataset"`
	Status    RunStatus    `json:"status"`
	Result    *TrainResult `json:"result,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Hyperparams is one random-forest configuration. MaxDepth zero means
// trees grow until the leaf constraints stop them.
type Hyperparams struct {
	Trees           int    `json:"trees" yaml:"trees"`
	MaxDepth        int    `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	ClassWeight     string `json:"class_weight" yaml:"class_weight"`
}

// Class weighting modes for forest training.
const (
	ClassWeightNone              = "none"
	ClassWeightBalanced          = "balanced"
	ClassWeightBalancedSubsample = "balanced_subsample"
)

// MetricsBundle holds held-out evaluation metrics for a fitted model.
// Confusion is indexed [actual][predicted].
type MetricsBundle struct {
	ROCAUC    float64   `json:"roc_auc"`
	PRAUC     float64   `json:"pr_auc"`
	Accuracy  float64   `json:"accuracy"`
	Confusion [2][2]int `json:"confusion"`
	Report    string    `json:"report"`
	TestRows  int       `json:"test_rows"`
}

// FeatureImportance pairs a transformed feature name with its
// impurity-decrease share in the final model.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// CandidateScore records how one sampled configuration fared in
// cross-validation. Failed candidates keep their fold scores for
// the folds that did complete.
type CandidateScore struct {
	Params     Hyperparams `json:"params"`
	FoldScores []float64   `json:"fold_scores"`
	Mean       float64     `json:"mean"`
	Failed     bool        `json:"failed,omitempty"`
	Note       string      `json:"note,omitempty"`
}

// TrainResult holds the final outcome of a training run.
type TrainResult struct {
	Seed           uint64              `json:"seed"`
	TestFraction   float64             `json:"test_fraction"`
	Folds          int                 `json:"folds"`
	TrainRows      int                 `json:"train_rows"`
	TestRows       int                 `json:"test_rows"`
	RebalancedRows int                 `json:"rebalanced_rows"`
	Features       int                 `json:"features"`
	Best           Hyperparams         `json:"best"`
	CVScore        float64             `json:"cv_score"`
	Metrics        MetricsBundle       `json:"metrics"`
	Importances    []FeatureImportance `json:"importances"`
	Candidates     []CandidateScore    `json:"candidates"`
	Phases         []PhaseResult       `json:"phases"`
	Duration       int64               `json:"duration_ms"`
	Error          string              `json:"error,omitempty"`
}
