package dataset

import (
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
)

// Table is a column-major feature table. Numeric and categorical
// columns live in separate blocks; rows are aligned by index across
// all columns.
type Table struct {
	rows     int
	numNames []string
	num      [][]float64
	catNames []string
	cat      [][]string
}

// New returns an empty table expecting the given row count.
func New(rows int) *Table {
	return &Table{rows: rows}
}

// AddNumeric appends a numeric column. Column names must be unique
// across both blocks and values must match the table's row count.
func (t *Table) AddNumeric(name string, values []float64) error {
	if len(values) != t.rows {
		return eris.Errorf("dataset: column %q has %d values, want %d", name, len(values), t.rows)
	}
	if t.hasColumn(name) {
		return eris.Errorf("dataset: duplicate column %q", name)
	}
	t.numNames = append(t.numNames, name)
	t.num = append(t.num, values)
	return nil
}

// AddCategorical appends a categorical column.
func (t *Table) AddCategorical(name string, values []string) error {
	if len(values) != t.rows {
		return eris.Errorf("dataset: column %q has %d values, want %d", name, len(values), t.rows)
	}
	if t.hasColumn(name) {
		return eris.Errorf("dataset: duplicate column %q", name)
	}
	t.catNames = append(t.catNames, name)
	t.cat = append(t.cat, values)
	return nil
}

func (t *Table) hasColumn(name string) bool {
	for _, n := range t.numNames {
		if n == name {
			return true
		}
	}
	for _, n := range t.catNames {
		if n == name {
			return true
		}
	}
	return false
}

// Rows returns the number of rows in the table.
func (t *Table) Rows() int { return t.rows }

// NumericNames returns the numeric column names in insertion order.
func (t *Table) NumericNames() []string { return t.numNames }

// CategoricalNames returns the categorical column names in insertion order.
func (t *Table) CategoricalNames() []string { return t.catNames }

// Numeric returns the numeric column at index i.
func (t *Table) Numeric(i int) []float64 { return t.num[i] }

// Categorical returns the categorical column at index i.
func (t *Table) Categorical(i int) []string { return t.cat[i] }

// Select returns a new table holding the given rows, in the given
// order. Indices must be valid row indices of t.
func (t *Table) Select(idx []int) *Table {
	out := New(len(idx))
	out.numNames = append([]string(nil), t.numNames...)
	out.catNames = append([]string(nil), t.catNames...)
	for _, col := range t.num {
		sub := make([]float64, len(idx))
		for i, r := range idx {
			sub[i] = col[r]
		}
		out.num = append(out.num, sub)
	}
	for _, col := range t.cat {
		sub := make([]string, len(idx))
		for i, r := range idx {
			sub[i] = col[r]
		}
		out.cat = append(out.cat, sub)
	}
	return out
}

// Split holds a stratified train/test partition of a table.
type Split struct {
	TrainX *Table
	TestX  *Table
	TrainY []int
	TestY  []int
}

// splitStream decorrelates the split shuffle from other consumers of
// the same root seed.
const splitStream = 0x5f3759df

// StratifiedSplit partitions t into train and test subsets, sampling
// within each class so both sides preserve the class mix. The test
// side receives round(testFraction * n) rows of each class, clamped
// so every class keeps at least one row on each side. Row order
// within each subset follows the original table.
func StratifiedSplit(t *Table, labels []int, testFraction float64, seed uint64) (*Split, error) {
	if len(labels) != t.Rows() {
		return nil, eris.Errorf("dataset: %d labels for %d rows", len(labels), t.Rows())
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, eris.Errorf("dataset: test fraction %v outside (0, 1)", testFraction)
	}

	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for y := range byClass {
		classes = append(classes, y)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewPCG(seed, splitStream))
	var trainIdx, testIdx []int
	for _, y := range classes {
		idx := byClass[y]
		if len(idx) < 2 {
			return nil, eris.Errorf("dataset: class %d has %d rows, need at least 2 to stratify", y, len(idx))
		}
		shuffled := append([]int(nil), idx...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		nTest := int(float64(len(idx))*testFraction + 0.5)
		if nTest < 1 {
			nTest = 1
		}
		if nTest > len(idx)-1 {
			nTest = len(idx) - 1
		}
		testIdx = append(testIdx, shuffled[:nTest]...)
		trainIdx = append(trainIdx, shuffled[nTest:]...)
	}
	sort.Ints(trainIdx)
	sort.Ints(testIdx)

	s := &Split{
		TrainX: t.Select(trainIdx),
		TestX:  t.Select(testIdx),
		TrainY: make([]int, len(trainIdx)),
		TestY:  make([]int, len(testIdx)),
	}
	for i, r := range trainIdx {
		s.TrainY[i] = labels[r]
	}
	for i, r := range testIdx {
		s.TestY[i] = labels[r]
	}
	return s, nil
}
