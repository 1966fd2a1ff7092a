// Package pipeline orchestrates a full training run: feature
// derivation, stratified split, transform, rebalancing, randomized
// hyperparameter search and held-out evaluation. Every stage is
// recorded as a phase on the run so progress and failures are
// visible in the store.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/opstrata/outage-cli/internal/dataset"
	"github.com/opstrata/outage-cli/internal/evaluate"
	"github.com/opstrata/outage-cli/internal/features"
	"github.com/opstrata/outage-cli/internal/model"
	"github.com/opstrata/outage-cli/internal/rebalance"
	"github.com/opstrata/outage-cli/internal/store"
	"github.com/opstrata/outage-cli/internal/trainer"
	"github.com/opstrata/outage-cli/internal/transform"
)

// DefaultTestFraction is the held-out share used when Options leaves
// TestFraction unset.
const DefaultTestFraction = 0.2

// Options configure a single training run.
type Options struct {
	// Source identifies the export the records came from. Recorded on
	// the run for later listing.
	Source string

	// TestFraction is the held-out share of each class. Zero means
	// DefaultTestFraction.
	TestFraction float64

	// Seed drives every random choice in the run. Two runs with the
	// same seed, records and options produce identical results.
	Seed uint64

	// Space is the hyperparameter grid to sample. A zero value falls
	// back to the trainer's default grid.
	Space trainer.SearchSpace

	// Candidates and Folds shape the search. Zero means the trainer
	// defaults.
	Candidates int
	Folds      int

	// Workers bounds fold evaluation concurrency. Zero means one
	// worker per CPU.
	Workers int

	// Neighbors is the oversampler's neighborhood size. Zero means the
	// rebalancer default.
	Neighbors int

	// Archive snapshots the cleaned records into the store alongside
	// the run.
	Archive bool
}

// Pipeline trains outage models over cleaned incident records and
// tracks each run in the store.
type Pipeline struct {
	store store.Store
}

// New creates a Pipeline backed by the given store.
func New(st store.Store) *Pipeline {
	return &Pipeline{store: st}
}

// Run executes the training pipeline over cleaned records. The
// returned run carries the result for every phase that finished, even
// when a later phase failed; the error identifies the failure.
func (p *Pipeline) Run(ctx context.Context, records []model.Record, opts Options) (*model.Run, error) {
	if len(records) == 0 {
		return nil, eris.New("pipeline: no records to train on")
	}
	if opts.TestFraction == 0 {
		opts.TestFraction = DefaultTestFraction
	}
	folds := opts.Folds
	if folds <= 0 {
		folds = trainer.DefaultFolds
	}
	space := opts.Space
	if emptySpace(space) {
		space = trainer.DefaultSpace()
	}

	info := model.DatasetInfo{Source: opts.Source, Records: len(records)}
	for _, r := range records {
		if r.Label() == model.LabelOutage {
			info.Positives++
		} else {
			info.Negatives++
		}
	}

	log := zap.L().With(zap.String("source", opts.Source))
	log.Info("pipeline: starting training run",
		zap.Int("records", info.Records),
		zap.Int("positives", info.Positives),
		zap.Int("negatives", info.Negatives),
		zap.Uint64("seed", opts.Seed),
	)

	run, err := p.store.CreateRun(ctx, info)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	result := &model.TrainResult{
		Seed:         opts.Seed,
		TestFraction: opts.TestFraction,
		Folds:        folds,
	}
	run.Result = result
	start := time.Now()

	setStatus := func(status model.RunStatus) {
		run.Status = status
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update run status",
				zap.String("status", string(status)),
				zap.Error(statusErr),
			)
		}
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		phase, phaseErr := p.store.CreatePhase(ctx, run.ID, name)
		if phaseErr != nil {
			log.Warn("pipeline: failed to create phase",
				zap.String("phase", name),
				zap.Error(phaseErr),
			)
		}

		phaseStart := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(phaseStart).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else if phaseResult.Status == "" {
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if phase != nil {
			if completeErr := p.store.CompletePhase(ctx, phase.ID, phaseResult); completeErr != nil {
				log.Warn("pipeline: failed to complete phase",
					zap.String("phase", name),
					zap.Error(completeErr),
				)
			}
		}
		result.Phases = append(result.Phases, *phaseResult)
		return fnErr
	}

	fail := func(failErr error) (*model.Run, error) {
		result.Error = failErr.Error()
		result.Duration = time.Since(start).Milliseconds()
		setStatus(model.RunStatusFailed)
		return run, failErr
	}

	// Snapshot the input first so a failed run still leaves its exact
	// records behind. A failed snapshot is recorded on the phase but
	// does not block training.
	if opts.Archive {
		_ = trackPhase("archive", func() (*model.PhaseResult, error) {
			n, archiveErr := p.store.ArchiveRecords(ctx, run.ID, records)
			if archiveErr != nil {
				return nil, archiveErr
			}
			return &model.PhaseResult{
				Metadata: map[string]any{"records": n},
			}, nil
		})
	} else {
		_ = trackPhase("archive", func() (*model.PhaseResult, error) {
			return &model.PhaseResult{
				Status:   model.PhaseStatusSkipped,
				Metadata: map[string]any{"reason": "archiving disabled"},
			}, nil
		})
	}

	setStatus(model.RunStatusDeriving)
	var (
		table  *dataset.Table
		labels []int
	)
	if phaseErr := trackPhase("derive", func() (*model.PhaseResult, error) {
		t, y, deriveErr := features.Derive(records)
		if deriveErr != nil {
			return nil, deriveErr
		}
		table, labels = t, y
		return &model.PhaseResult{
			Metadata: map[string]any{
				"rows":        t.Rows(),
				"numeric":     len(t.NumericNames()),
				"categorical": len(t.CategoricalNames()),
			},
		}, nil
	}); phaseErr != nil {
		return fail(phaseErr)
	}

	setStatus(model.RunStatusSplitting)
	var split *dataset.Split
	if phaseErr := trackPhase("split", func() (*model.PhaseResult, error) {
		s, splitErr := dataset.StratifiedSplit(table, labels, opts.TestFraction, opts.Seed)
		if splitErr != nil {
			return nil, splitErr
		}
		split = s
		result.TrainRows = s.TrainX.Rows()
		result.TestRows = s.TestX.Rows()
		return &model.PhaseResult{
			Metadata: map[string]any{
				"train_rows": s.TrainX.Rows(),
				"test_rows":  s.TestX.Rows(),
			},
		}, nil
	}); phaseErr != nil {
		return fail(phaseErr)
	}

	// Encoders are fitted on the training split only. The held-out
	// side is transformed with the fitted vocabulary so nothing from
	// it leaks into training.
	setStatus(model.RunStatusTransforming)
	var (
		fitted *transform.Fitted
		xTrain *mat.Dense
		xTest  *mat.Dense
	)
	if phaseErr := trackPhase("transform", func() (*model.PhaseResult, error) {
		f, tr, fitErr := transform.FitTransform(split.TrainX)
		if fitErr != nil {
			return nil, fitErr
		}
		te, transformErr := f.Transform(split.TestX)
		if transformErr != nil {
			return nil, transformErr
		}
		fitted, xTrain, xTest = f, tr, te
		result.Features = len(f.FeatureNames())
		return &model.PhaseResult{
			Metadata: map[string]any{"features": result.Features},
		}, nil
	}); phaseErr != nil {
		return fail(phaseErr)
	}

	// Only the training matrix is rebalanced. Evaluation happens on
	// the untouched held-out rows.
	setStatus(model.RunStatusRebalancing)
	var (
		xBal *mat.Dense
		yBal []int
	)
	if phaseErr := trackPhase("rebalance", func() (*model.PhaseResult, error) {
		xb, yb, balErr := rebalance.Oversample(xTrain, split.TrainY, rebalance.Options{
			Neighbors: opts.Neighbors,
			Seed:      opts.Seed,
		})
		if balErr != nil {
			return nil, balErr
		}
		xBal, yBal = xb, yb
		rows, _ := xb.Dims()
		result.RebalancedRows = rows
		return &model.PhaseResult{
			Metadata: map[string]any{
				"before": result.TrainRows,
				"after":  rows,
			},
		}, nil
	}); phaseErr != nil {
		return fail(phaseErr)
	}

	setStatus(model.RunStatusSearching)
	var searched *trainer.Result
	if phaseErr := trackPhase("search", func() (*model.PhaseResult, error) {
		r, searchErr := trainer.Search(ctx, xBal, yBal, trainer.Options{
			Space:      space,
			Candidates: opts.Candidates,
			Folds:      folds,
			Seed:       opts.Seed,
			Workers:    opts.Workers,
		})
		if searchErr != nil {
			return nil, searchErr
		}
		searched = r
		result.Best = r.Best
		result.CVScore = r.BestScore
		result.Candidates = r.Candidates
		return &model.PhaseResult{
			Metadata: map[string]any{
				"candidates": len(r.Candidates),
				"cv_score":   r.BestScore,
			},
		}, nil
	}); phaseErr != nil {
		return fail(phaseErr)
	}

	setStatus(model.RunStatusEvaluating)
	if phaseErr := trackPhase("evaluate", func() (*model.PhaseResult, error) {
		metrics, importances, evalErr := evaluate.Evaluate(searched.Model, xTest, split.TestY, fitted.FeatureNames())
		if evalErr != nil {
			return nil, evalErr
		}
		result.Metrics = metrics
		result.Importances = importances
		return &model.PhaseResult{
			Metadata: map[string]any{
				"roc_auc":  metrics.ROCAUC,
				"pr_auc":   metrics.PRAUC,
				"accuracy": metrics.Accuracy,
			},
		}, nil
	}); phaseErr != nil {
		return fail(phaseErr)
	}

	result.Duration = time.Since(start).Milliseconds()
	setStatus(model.RunStatusComplete)
	if saveErr := p.store.UpdateRunResult(ctx, run.ID, result); saveErr != nil {
		log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
	}

	log.Info("pipeline: training complete",
		zap.Float64("cv_score", result.CVScore),
		zap.Float64("roc_auc", result.Metrics.ROCAUC),
		zap.Float64("pr_auc", result.Metrics.PRAUC),
		zap.Int64("duration_ms", result.Duration),
	)

	return run, nil
}

// emptySpace reports whether every axis of the grid is unset. A
// partially filled grid is passed through so the trainer can reject
// it instead of silently training on defaults.
func emptySpace(s trainer.SearchSpace) bool {
	return len(s.Trees) == 0 && len(s.MaxDepth) == 0 && len(s.MinSamplesSplit) == 0 &&
		len(s.MinSamplesLeaf) == 0 && len(s.ClassWeight) == 0
}
