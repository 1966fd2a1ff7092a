package evaluate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/opstrata/outage-cli/internal/forest"
	"github.com/opstrata/outage-cli/internal/model"
)

func TestROCAUC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scores []float64
		labels []int
		want   float64
	}{
		{"mixed ranking", []float64{0, 3, 5, 6, 7.5, 8}, []int{0, 1, 0, 1, 1, 1}, 0.875},
		{"partial overlap", []float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1}, 0.75},
		{"perfect", []float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1}, 1},
		{"inverted", []float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1}, 0},
		{"all tied", []float64{0.5, 0.5}, []int{0, 1}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ROCAUC(tt.scores, tt.labels)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestROCAUCErrors(t *testing.T) {
	t.Parallel()

	_, err := ROCAUC([]float64{0.5}, []int{1, 0})
	assert.ErrorContains(t, err, "1 scores for 2 labels")

	_, err = ROCAUC([]float64{0.5, 0.6}, []int{1, 1})
	assert.ErrorContains(t, err, "single class")

	_, err = ROCAUC(nil, nil)
	assert.ErrorContains(t, err, "empty labels")
}

func TestAveragePrecision(t *testing.T) {
	t.Parallel()

	got, err := AveragePrecision([]float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.8333333333, got, 1e-9)

	perfect, err := AveragePrecision([]float64{0.1, 0.9}, []int{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, perfect, 1e-9)
}

func TestAveragePrecisionTies(t *testing.T) {
	t.Parallel()

	// One positive and one negative share a score: the tie block is
	// consumed whole, giving precision 2/3 at recall 1.
	got, err := AveragePrecision([]float64{0.9, 0.5, 0.5}, []int{1, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5+0.5*(2.0/3.0), got, 1e-9)
}

func TestConfusion(t *testing.T) {
	t.Parallel()

	cm, err := Confusion([]int{1, 1, 0, 0, 0}, []int{1, 0, 0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, [2][2]int{{2, 1}, {1, 1}}, cm)
	assert.InDelta(t, 0.6, Accuracy(cm), 1e-9)

	_, err = Confusion([]int{1}, []int{1, 0})
	assert.ErrorContains(t, err, "1 labels for 2 predictions")

	_, err = Confusion([]int{2}, []int{0})
	assert.ErrorContains(t, err, "non-binary pair")
}

func TestClassificationReport(t *testing.T) {
	t.Parallel()

	labels := []int{1, 1, 0, 0}
	pred := []int{1, 0, 0, 0}

	report, err := ClassificationReport(labels, pred)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(report, "\n"), "\n")
	require.Len(t, lines, 8)
	assert.Contains(t, lines[0], "precision")
	assert.Contains(t, lines[0], "support")

	// routine: precision 2/3, recall 1; outage: precision 1, recall 0.5.
	assert.Contains(t, lines[2], "routine")
	assert.Contains(t, lines[2], "0.67")
	assert.Contains(t, lines[3], "outage")
	assert.Contains(t, lines[3], "0.50")
	assert.Contains(t, lines[5], "accuracy")
	assert.Contains(t, lines[5], "0.75")
	assert.Contains(t, lines[6], "macro avg")
	assert.Contains(t, lines[7], "weighted avg")
}

func TestEvaluateSeparableModel(t *testing.T) {
	t.Parallel()

	perClass := 10
	x := mat.NewDense(perClass*2, 2, nil)
	y := make([]int, perClass*2)
	for i := range perClass {
		x.Set(i, 0, float64(i)*0.1)
		x.Set(i+perClass, 0, 10+float64(i)*0.1)
		y[i+perClass] = 1
	}

	hp := model.Hyperparams{Trees: 50, MinSamplesSplit: 2, MinSamplesLeaf: 1, ClassWeight: model.ClassWeightNone}
	f, err := forest.Fit(x, y, hp, 5)
	require.NoError(t, err)

	bundle, importances, err := Evaluate(f, x, y, []string{"gap", "flat"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, bundle.ROCAUC, 1e-9)
	assert.InDelta(t, 1.0, bundle.PRAUC, 1e-9)
	assert.InDelta(t, 1.0, bundle.Accuracy, 1e-9)
	assert.Equal(t, [2][2]int{{10, 0}, {0, 10}}, bundle.Confusion)
	assert.Equal(t, 20, bundle.TestRows)
	assert.Contains(t, bundle.Report, "outage")

	require.Len(t, importances, 2)
	assert.Equal(t, "gap", importances[0].Feature)
	assert.InDelta(t, 1.0, importances[0].Score, 1e-9)
	assert.Equal(t, "flat", importances[1].Feature)
}

func TestEvaluateNameMismatch(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(4, 1, []float64{0, 1, 10, 11})
	y := []int{0, 0, 1, 1}
	hp := model.Hyperparams{Trees: 5, MinSamplesSplit: 2, MinSamplesLeaf: 1}
	f, err := forest.Fit(x, y, hp, 1)
	require.NoError(t, err)

	_, _, err = Evaluate(f, x, y, []string{"a", "b"})
	assert.ErrorContains(t, err, "2 feature names for 1 model features")
}
