package forest

import (
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/opstrata/outage-cli/internal/model"
)

// Forest is a fitted random-forest classifier. It is read-only after
// Fit and safe for concurrent prediction.
type Forest struct {
	trees      []tree
	params     model.Hyperparams
	importance []float64
	features   int
}

// Fit trains a bagged ensemble of CART trees. Each tree draws a
// bootstrap sample and considers sqrt(features) random columns per
// split. Trees grow concurrently; tree i seeds its own generator from
// (seed, i), so the fit is reproducible for a given seed regardless of
// scheduling.
func Fit(x *mat.Dense, y []int, hp model.Hyperparams, seed uint64) (*Forest, error) {
	rows, cols := x.Dims()
	if rows == 0 {
		return nil, eris.New("forest: empty training matrix")
	}
	if len(y) != rows {
		return nil, eris.Errorf("forest: %d labels for %d rows", len(y), rows)
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, eris.Errorf("forest: label %d at row %d, want 0 or 1", v, i)
		}
	}
	if err := validateParams(hp); err != nil {
		return nil, err
	}

	mtry := int(math.Sqrt(float64(cols)))
	if mtry < 1 {
		mtry = 1
	}

	f := &Forest{
		trees:    make([]tree, hp.Trees),
		params:   hp,
		features: cols,
	}
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := range hp.Trees {
		eg.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			samples := make([]int, rows)
			for j := range samples {
				samples[j] = rng.IntN(rows)
			}
			g := &grower{
				x:      x,
				y:      y,
				w:      sampleWeights(y, samples, hp.ClassWeight),
				rng:    rng,
				mtry:   mtry,
				params: hp,
			}
			f.trees[i] = g.grow(samples)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	f.importance = aggregateImportance(f.trees, cols)
	return f, nil
}

func validateParams(hp model.Hyperparams) error {
	if hp.Trees < 1 {
		return eris.Errorf("forest: trees %d, want at least 1", hp.Trees)
	}
	if hp.MaxDepth < 0 {
		return eris.Errorf("forest: max depth %d, want 0 (unbounded) or positive", hp.MaxDepth)
	}
	if hp.MinSamplesSplit < 2 {
		return eris.Errorf("forest: min samples split %d, want at least 2", hp.MinSamplesSplit)
	}
	if hp.MinSamplesLeaf < 1 {
		return eris.Errorf("forest: min samples leaf %d, want at least 1", hp.MinSamplesLeaf)
	}
	switch hp.ClassWeight {
	case "", model.ClassWeightNone, model.ClassWeightBalanced, model.ClassWeightBalancedSubsample:
		return nil
	}
	return eris.Errorf("forest: unknown class weight %q", hp.ClassWeight)
}

// sampleWeights maps each training row to its class weight. Balanced
// modes weight classes inversely to their frequency, computed over
// the full labels or over the bootstrap sample.
func sampleWeights(y []int, samples []int, mode string) []float64 {
	w := make([]float64, len(y))
	var perClass [2]float64
	switch mode {
	case model.ClassWeightBalanced:
		var counts [2]float64
		for _, v := range y {
			counts[v]++
		}
		perClass = balancedWeights(counts, float64(len(y)))
	case model.ClassWeightBalancedSubsample:
		var counts [2]float64
		for _, s := range samples {
			counts[y[s]]++
		}
		perClass = balancedWeights(counts, float64(len(samples)))
	default:
		perClass = [2]float64{1, 1}
	}
	for i, v := range y {
		w[i] = perClass[v]
	}
	return w
}

func balancedWeights(counts [2]float64, n float64) [2]float64 {
	var out [2]float64
	for c, cnt := range counts {
		if cnt > 0 {
			out[c] = n / (2 * cnt)
		}
	}
	return out
}

// aggregateImportance averages the normalized per-tree vectors,
// skipping trees that never split, and renormalizes the mean.
func aggregateImportance(trees []tree, cols int) []float64 {
	out := make([]float64, cols)
	split := 0
	for _, t := range trees {
		if t.imp == nil {
			continue
		}
		floats.Add(out, t.imp)
		split++
	}
	if split == 0 {
		return out
	}
	floats.Scale(1/float64(split), out)
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

// PredictProba returns the positive-class probability per row,
// averaged over the ensemble.
func (f *Forest) PredictProba(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != f.features {
		return nil, eris.Errorf("forest: %d feature columns, fitted on %d", cols, f.features)
	}
	probs := make([]float64, rows)
	for i := range rows {
		row := x.RawRowView(i)
		var sum float64
		for t := range f.trees {
			sum += f.trees[t].predict(row)
		}
		probs[i] = sum / float64(len(f.trees))
	}
	return probs, nil
}

// Predict returns hard labels, breaking the 0.5 tie toward the
// negative class.
func (f *Forest) Predict(x *mat.Dense) ([]int, error) {
	probs, err := f.PredictProba(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for i, p := range probs {
		if p > 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// FeatureImportances returns the mean normalized impurity decrease
// per feature column, aligned with the training matrix.
func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.importance...)
}

// Params returns the hyperparameters the forest was fitted with.
func (f *Forest) Params() model.Hyperparams { return f.params }

// Features returns the column count the forest was fitted on.
func (f *Forest) Features() int { return f.features }
