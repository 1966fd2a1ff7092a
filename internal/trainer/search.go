package trainer

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/opstrata/outage-cli/internal/evaluate"
	"github.com/opstrata/outage-cli/internal/forest"
	"github.com/opstrata/outage-cli/internal/model"
)

// Default search dimensions.
const (
	DefaultCandidates = 20
	DefaultFolds      = 5
)

// Seed streams for the search's independent random consumers.
const (
	sampleStream = 0x8f1bbcdc
	foldStream   = 0xca62c1d6
	refitStream  = 0x6ed9eba1
)

// Options configure the randomized hyperparameter search.
type Options struct {
	Space      SearchSpace
	Candidates int
	Folds      int
	Seed       uint64
	Workers    int
}

// Result is the outcome of a search: the refitted winner plus the
// full per-candidate scoreboard in sampling order.
type Result struct {
	Model      *forest.Forest
	Best       model.Hyperparams
	BestScore  float64
	Candidates []model.CandidateScore
}

// Search samples configurations from the grid, scores each with
// stratified k-fold cross-validation by ROC-AUC, refits the best mean
// scorer on the full training matrix and returns it. Fold evaluation
// runs on a worker pool; every (candidate, fold) pair writes into its
// own slot, so scheduling never affects the selected winner. A fit
// failure marks that candidate non-competitive instead of aborting
// the search.
func Search(ctx context.Context, x *mat.Dense, y []int, opts Options) (*Result, error) {
	rows, _ := x.Dims()
	if rows == 0 {
		return nil, eris.New("trainer: empty training matrix")
	}
	if len(y) != rows {
		return nil, eris.Errorf("trainer: %d labels for %d rows", len(y), rows)
	}
	if err := opts.Space.Validate(); err != nil {
		return nil, err
	}
	nCand := opts.Candidates
	if nCand <= 0 {
		nCand = DefaultCandidates
	}
	folds := opts.Folds
	if folds <= 0 {
		folds = DefaultFolds
	}
	if folds < 2 {
		return nil, eris.Errorf("trainer: %d folds, want at least 2", folds)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sampleRNG := rand.New(rand.NewPCG(opts.Seed, sampleStream))
	candidates := opts.Space.Sample(nCand, sampleRNG)

	valFolds, err := stratifiedFolds(y, folds, opts.Seed)
	if err != nil {
		return nil, err
	}

	zap.L().Info("hyperparameter search started",
		zap.Int("candidates", len(candidates)),
		zap.Int("folds", folds),
		zap.Int("rows", rows),
		zap.Int("workers", workers))

	type slot struct {
		score float64
		err   error
	}
	scores := make([][]slot, len(candidates))
	for ci := range scores {
		scores[ci] = make([]slot, folds)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ci := range candidates {
		for fi := range folds {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				xTr, yTr, xVal, yVal := foldData(x, y, valFolds, fi)
				f, err := forest.Fit(xTr, yTr, candidates[ci], jobSeed(opts.Seed, ci*folds+fi))
				if err != nil {
					scores[ci][fi] = slot{err: err}
					return nil
				}
				probs, err := f.PredictProba(xVal)
				if err != nil {
					scores[ci][fi] = slot{err: err}
					return nil
				}
				auc, err := evaluate.ROCAUC(probs, yVal)
				if err != nil {
					scores[ci][fi] = slot{err: err}
					return nil
				}
				scores[ci][fi] = slot{score: auc}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "trainer: search canceled")
	}

	result := &Result{BestScore: math.Inf(-1)}
	bestIdx := -1
	for ci, hp := range candidates {
		cs := model.CandidateScore{Params: hp, FoldScores: make([]float64, 0, folds)}
		var sum float64
		for fi := range folds {
			s := scores[ci][fi]
			if s.err != nil {
				cs.Failed = true
				if cs.Note == "" {
					cs.Note = s.err.Error()
				}
				continue
			}
			cs.FoldScores = append(cs.FoldScores, s.score)
			sum += s.score
		}
		if cs.Failed {
			// Mean stays zero: failed candidates never enter the
			// comparison, and -Inf does not survive JSON encoding.
			zap.L().Warn("candidate failed", zap.Any("params", hp), zap.String("note", cs.Note))
		} else {
			cs.Mean = sum / float64(folds)
			zap.L().Info("candidate scored",
				zap.Int("candidate", ci),
				zap.Float64("mean_roc_auc", cs.Mean),
				zap.Any("params", hp))
			// First sampled configuration wins mean-score ties.
			if cs.Mean > result.BestScore {
				result.BestScore = cs.Mean
				bestIdx = ci
			}
		}
		result.Candidates = append(result.Candidates, cs)
	}
	if bestIdx < 0 {
		return nil, eris.New("trainer: every candidate failed to fit")
	}
	result.Best = candidates[bestIdx]

	final, err := forest.Fit(x, y, result.Best, opts.Seed^refitStream)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: refit best candidate")
	}
	result.Model = final

	zap.L().Info("hyperparameter search finished",
		zap.Float64("best_mean_roc_auc", result.BestScore),
		zap.Any("best_params", result.Best))

	return result, nil
}

// jobSeed derives an independent fit seed per (candidate, fold) job
// with a splitmix step, so identical roots reproduce identical runs.
func jobSeed(root uint64, job int) uint64 {
	z := root + 0x9e3779b97f4a7c15*uint64(job+1)
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	return z
}

// stratifiedFolds deals each class's shuffled rows round-robin over k
// validation folds, so every fold keeps the class mix.
func stratifiedFolds(y []int, k int, seed uint64) ([][]int, error) {
	byClass := map[int][]int{}
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewPCG(seed, foldStream))
	folds := make([][]int, k)
	for _, c := range classes {
		idx := byClass[c]
		if len(idx) < k {
			return nil, eris.Errorf("trainer: class %d has %d rows, need at least %d for %d folds", c, len(idx), k, k)
		}
		shuffled := append([]int(nil), idx...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		for i, row := range shuffled {
			folds[i%k] = append(folds[i%k], row)
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds, nil
}

// foldData splits the matrix into train and validation sides for one
// fold.
func foldData(x *mat.Dense, y []int, folds [][]int, fi int) (*mat.Dense, []int, *mat.Dense, []int) {
	inVal := map[int]bool{}
	for _, r := range folds[fi] {
		inVal[r] = true
	}
	rows, _ := x.Dims()
	trainIdx := make([]int, 0, rows-len(folds[fi]))
	for r := range rows {
		if !inVal[r] {
			trainIdx = append(trainIdx, r)
		}
	}
	return subset(x, trainIdx), labelSubset(y, trainIdx), subset(x, folds[fi]), labelSubset(y, folds[fi])
}

func subset(x *mat.Dense, idx []int) *mat.Dense {
	_, cols := x.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	for i, r := range idx {
		out.SetRow(i, x.RawRowView(r))
	}
	return out
}

func labelSubset(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}
