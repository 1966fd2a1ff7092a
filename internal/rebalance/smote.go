package rebalance

import (
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultNeighbors is the nearest-neighbor count used when Options
// leaves it unset.
const DefaultNeighbors = 5

// smoteStream decorrelates interpolation noise from the other
// consumers of the root seed.
const smoteStream = 0x632be59b

// Options configure minority oversampling.
type Options struct {
	Neighbors int
	Seed      uint64
}

// Oversample synthesizes minority-class rows on a transformed
// training matrix until both classes match the majority count. Each
// synthetic row interpolates from a random minority row toward one of
// its k nearest minority neighbors by a random fraction in [0, 1).
// The output keeps the original rows first, in input order, followed
// by the synthesized rows. Never apply this to held-out data.
func Oversample(x *mat.Dense, labels []int, opts Options) (*mat.Dense, []int, error) {
	rows, cols := x.Dims()
	if rows != len(labels) {
		return nil, nil, eris.Errorf("rebalance: %d labels for %d rows", len(labels), rows)
	}

	var byClass [2][]int
	for i, y := range labels {
		if y != 0 && y != 1 {
			return nil, nil, eris.Errorf("rebalance: label %d at row %d, want 0 or 1", y, i)
		}
		byClass[y] = append(byClass[y], i)
	}
	minority, majority := 1, 0
	if len(byClass[1]) > len(byClass[0]) {
		minority, majority = 0, 1
	}
	minIdx := byClass[minority]
	if len(minIdx) == 0 {
		return nil, nil, eris.New("rebalance: training labels contain a single class")
	}

	need := len(byClass[majority]) - len(minIdx)
	out := mat.NewDense(rows+need, cols, nil)
	for i := range rows {
		out.SetRow(i, x.RawRowView(i))
	}
	outLabels := make([]int, rows, rows+need)
	copy(outLabels, labels)
	if need == 0 {
		return out, outLabels, nil
	}

	k := opts.Neighbors
	if k <= 0 {
		k = DefaultNeighbors
	}
	if k > len(minIdx)-1 {
		// Too few minority rows for the requested k; use what exists.
		k = len(minIdx) - 1
	}
	neighbors := nearestMinority(x, minIdx, k)

	rng := rand.New(rand.NewPCG(opts.Seed, smoteStream))
	row := make([]float64, cols)
	for s := range need {
		pos := rng.IntN(len(minIdx))
		base := x.RawRowView(minIdx[pos])
		copy(row, base)
		if k > 0 {
			nbr := x.RawRowView(neighbors[pos][rng.IntN(k)])
			u := rng.Float64()
			for j := range row {
				row[j] = base[j] + u*(nbr[j]-base[j])
			}
		}
		out.SetRow(rows+s, row)
		outLabels = append(outLabels, minority)
	}

	zap.L().Info("minority class rebalanced",
		zap.Int("original_rows", rows),
		zap.Int("synthesized", need),
		zap.Int("neighbors", k))

	return out, outLabels, nil
}

// nearestMinority returns, for each minority row, the matrix indices
// of its k nearest minority neighbors by euclidean distance.
func nearestMinority(x *mat.Dense, minIdx []int, k int) [][]int {
	type cand struct {
		idx  int
		dist float64
	}
	neighbors := make([][]int, len(minIdx))
	for i, a := range minIdx {
		cands := make([]cand, 0, len(minIdx)-1)
		for j, b := range minIdx {
			if i == j {
				continue
			}
			cands = append(cands, cand{b, floats.Distance(x.RawRowView(a), x.RawRowView(b), 2)})
		}
		sort.Slice(cands, func(p, q int) bool {
			if cands[p].dist != cands[q].dist {
				return cands[p].dist < cands[q].dist
			}
			return cands[p].idx < cands[q].idx
		})
		nn := make([]int, 0, k)
		for _, c := range cands[:k] {
			nn = append(nn, c.idx)
		}
		neighbors[i] = nn
	}
	return neighbors
}
