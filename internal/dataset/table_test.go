package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAddColumns(t *testing.T) {
	t.Parallel()

	tbl := New(3)
	require.NoError(t, tbl.AddNumeric("duration_hours", []float64{1, 2, 3}))
	require.NoError(t, tbl.AddCategorical("entity", []string{"a", "b", "c"}))

	assert.Equal(t, 3, tbl.Rows())
	assert.Equal(t, []string{"duration_hours"}, tbl.NumericNames())
	assert.Equal(t, []string{"entity"}, tbl.CategoricalNames())
	assert.Equal(t, []float64{1, 2, 3}, tbl.Numeric(0))
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Categorical(0))
}

func TestTableAddColumnErrors(t *testing.T) {
	t.Parallel()

	tbl := New(2)
	require.NoError(t, tbl.AddNumeric("x", []float64{1, 2}))

	err := tbl.AddNumeric("y", []float64{1})
	assert.ErrorContains(t, err, "1 values, want 2")

	err = tbl.AddCategorical("x", []string{"a", "b"})
	assert.ErrorContains(t, err, "duplicate column")
}

func TestTableSelect(t *testing.T) {
	t.Parallel()

	tbl := New(4)
	require.NoError(t, tbl.AddNumeric("x", []float64{10, 20, 30, 40}))
	require.NoError(t, tbl.AddCategorical("c", []string{"a", "b", "c", "d"}))

	sub := tbl.Select([]int{3, 1})
	assert.Equal(t, 2, sub.Rows())
	assert.Equal(t, []float64{40, 20}, sub.Numeric(0))
	assert.Equal(t, []string{"d", "b"}, sub.Categorical(0))
}

func buildLabeledTable(t *testing.T, n, positives int) (*Table, []int) {
	t.Helper()
	vals := make([]float64, n)
	cats := make([]string, n)
	labels := make([]int, n)
	for i := range vals {
		vals[i] = float64(i)
		cats[i] = "e"
		if i < positives {
			labels[i] = 1
		}
	}
	tbl := New(n)
	require.NoError(t, tbl.AddNumeric("x", vals))
	require.NoError(t, tbl.AddCategorical("c", cats))
	return tbl, labels
}

func TestStratifiedSplitProportions(t *testing.T) {
	t.Parallel()

	tbl, labels := buildLabeledTable(t, 100, 20)
	s, err := StratifiedSplit(tbl, labels, 0.2, 7)
	require.NoError(t, err)

	assert.Equal(t, 80, s.TrainX.Rows())
	assert.Equal(t, 20, s.TestX.Rows())

	count := func(ys []int) (pos, neg int) {
		for _, y := range ys {
			if y == 1 {
				pos++
			} else {
				neg++
			}
		}
		return pos, neg
	}
	trainPos, trainNeg := count(s.TrainY)
	testPos, testNeg := count(s.TestY)
	assert.Equal(t, 16, trainPos)
	assert.Equal(t, 64, trainNeg)
	assert.Equal(t, 4, testPos)
	assert.Equal(t, 16, testNeg)
}

func TestStratifiedSplitPartitionsRows(t *testing.T) {
	t.Parallel()

	tbl, labels := buildLabeledTable(t, 30, 9)
	s, err := StratifiedSplit(tbl, labels, 0.3, 11)
	require.NoError(t, err)

	seen := map[float64]int{}
	for _, v := range s.TrainX.Numeric(0) {
		seen[v]++
	}
	for _, v := range s.TestX.Numeric(0) {
		seen[v]++
	}
	assert.Len(t, seen, 30)
	for v, n := range seen {
		assert.Equalf(t, 1, n, "row %v appears %d times", v, n)
	}
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	t.Parallel()

	tbl, labels := buildLabeledTable(t, 50, 10)

	a, err := StratifiedSplit(tbl, labels, 0.2, 42)
	require.NoError(t, err)
	b, err := StratifiedSplit(tbl, labels, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, a.TestX.Numeric(0), b.TestX.Numeric(0))
	assert.Equal(t, a.TrainY, b.TrainY)

	c, err := StratifiedSplit(tbl, labels, 0.2, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a.TestX.Numeric(0), c.TestX.Numeric(0))
}

func TestStratifiedSplitErrors(t *testing.T) {
	t.Parallel()

	tbl, labels := buildLabeledTable(t, 10, 1)
	_, err := StratifiedSplit(tbl, labels, 0.2, 1)
	assert.ErrorContains(t, err, "need at least 2 to stratify")

	tbl2, labels2 := buildLabeledTable(t, 10, 5)
	_, err = StratifiedSplit(tbl2, labels2, 0, 1)
	assert.ErrorContains(t, err, "outside (0, 1)")

	_, err = StratifiedSplit(tbl2, labels2[:5], 0.2, 1)
	assert.ErrorContains(t, err, "5 labels for 10 rows")
}
