package transform

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/opstrata/outage-cli/internal/dataset"
)

// MissingCategory stands in for blank categorical cells and becomes
// an ordinary vocabulary entry.
const MissingCategory = "missing"

type numericParams struct {
	name   string
	median float64
	mean   float64
	std    float64
}

type categoryParams struct {
	name  string
	vocab []string
	index map[string]int
}

// Fitted holds the parameters learned from one training table:
// per-numeric-column median/mean/std and per-categorical-column
// vocabulary. It is never modified after Fit returns; the same value
// must be applied to every later table.
type Fitted struct {
	nums  []numericParams
	cats  []categoryParams
	names []string
}

// Fit learns imputation, scaling and encoding parameters from the
// training table. Numeric columns are median-imputed then scaled to
// zero mean and unit variance; categorical columns are blank-imputed
// then one-hot encoded over the observed vocabulary.
func Fit(t *dataset.Table) (*Fitted, error) {
	if t == nil || t.Rows() == 0 {
		return nil, eris.New("transform: fit on empty table")
	}

	f := &Fitted{}
	for i, name := range t.NumericNames() {
		col := t.Numeric(i)
		med := median(col)
		filled := make([]float64, len(col))
		for j, v := range col {
			if math.IsNaN(v) {
				v = med
			}
			filled[j] = v
		}
		std := stat.PopStdDev(filled, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		f.nums = append(f.nums, numericParams{
			name:   name,
			median: med,
			mean:   stat.Mean(filled, nil),
			std:    std,
		})
		f.names = append(f.names, name)
	}
	for i, name := range t.CategoricalNames() {
		seen := map[string]bool{}
		for _, v := range t.Categorical(i) {
			seen[fillBlank(v)] = true
		}
		vocab := make([]string, 0, len(seen))
		for v := range seen {
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		index := make(map[string]int, len(vocab))
		for j, v := range vocab {
			index[v] = j
		}
		f.cats = append(f.cats, categoryParams{name: name, vocab: vocab, index: index})
		for _, v := range vocab {
			f.names = append(f.names, name+"="+v)
		}
	}
	return f, nil
}

// FitTransform fits on the table and returns the fitted parameters
// together with the transformed training matrix.
func FitTransform(t *dataset.Table) (*Fitted, *mat.Dense, error) {
	f, err := Fit(t)
	if err != nil {
		return nil, nil, err
	}
	x, err := f.Transform(t)
	if err != nil {
		return nil, nil, err
	}
	return f, x, nil
}

// Transform applies the fitted parameters to a table with the same
// column layout. Statistics are never recomputed here: unseen
// categorical values encode as an all-zero block, numeric gaps take
// the training median. Calling Transform without a fit is an error.
func (f *Fitted) Transform(t *dataset.Table) (*mat.Dense, error) {
	if f == nil || len(f.names) == 0 {
		return nil, eris.New("transform: not fitted")
	}
	if t == nil || t.Rows() == 0 {
		return nil, eris.New("transform: empty table")
	}
	if err := f.checkLayout(t); err != nil {
		return nil, err
	}

	rows := t.Rows()
	x := mat.NewDense(rows, len(f.names), nil)
	for j, p := range f.nums {
		col := t.Numeric(j)
		for i, v := range col {
			if math.IsNaN(v) {
				v = p.median
			}
			x.Set(i, j, (v-p.mean)/p.std)
		}
	}
	base := len(f.nums)
	for j, p := range f.cats {
		col := t.Categorical(j)
		for i, v := range col {
			if k, ok := p.index[fillBlank(v)]; ok {
				x.Set(i, base+k, 1)
			}
		}
		base += len(p.vocab)
	}
	return x, nil
}

// FeatureNames returns the transformed column names, numeric block
// first, then one one-hot name per vocabulary entry as "column=value".
func (f *Fitted) FeatureNames() []string {
	return append([]string(nil), f.names...)
}

func (f *Fitted) checkLayout(t *dataset.Table) error {
	numNames := t.NumericNames()
	if len(numNames) != len(f.nums) {
		return eris.Errorf("transform: %d numeric columns, fitted on %d", len(numNames), len(f.nums))
	}
	for i, p := range f.nums {
		if numNames[i] != p.name {
			return eris.Errorf("transform: numeric column %d is %q, fitted on %q", i, numNames[i], p.name)
		}
	}
	catNames := t.CategoricalNames()
	if len(catNames) != len(f.cats) {
		return eris.Errorf("transform: %d categorical columns, fitted on %d", len(catNames), len(f.cats))
	}
	for i, p := range f.cats {
		if catNames[i] != p.name {
			return eris.Errorf("transform: categorical column %d is %q, fitted on %q", i, catNames[i], p.name)
		}
	}
	return nil
}

func fillBlank(v string) string {
	if v == "" {
		return MissingCategory
	}
	return v
}

// median returns the midpoint of the sorted non-NaN values, averaging
// the two central values on even counts. All-NaN columns get zero.
func median(col []float64) float64 {
	vals := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
