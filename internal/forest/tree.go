package forest

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/opstrata/outage-cli/internal/model"
)

// node is one decision point. Leaves carry feature -1 and the
// weighted probability of the positive class; internal nodes send
// values <= threshold left.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	prob      float64
}

// tree is a single CART classifier. imp holds its normalized
// impurity-decrease vector, nil when the tree never split.
type tree struct {
	nodes []node
	imp   []float64
}

// grower accumulates state for one tree build over a bootstrap
// sample. w holds per-sample class weights.
type grower struct {
	x      *mat.Dense
	y      []int
	w      []float64
	rng    *rand.Rand
	mtry   int
	params model.Hyperparams
	nodes  []node
	imp    []float64
}

func (g *grower) grow(samples []int) tree {
	_, cols := g.x.Dims()
	g.imp = make([]float64, cols)
	g.growNode(samples, 0)

	t := tree{nodes: g.nodes}
	if total := floats.Sum(g.imp); total > 0 {
		floats.Scale(1/total, g.imp)
		t.imp = g.imp
	}
	return t
}

// growNode recursively splits samples and returns the node index.
func (g *grower) growNode(samples []int, depth int) int {
	var c0, c1 float64
	for _, s := range samples {
		if g.y[s] == 1 {
			c1 += g.w[s]
		} else {
			c0 += g.w[s]
		}
	}

	id := len(g.nodes)
	g.nodes = append(g.nodes, node{feature: -1, prob: c1 / (c0 + c1)})

	if c0 == 0 || c1 == 0 {
		return id
	}
	if len(samples) < g.params.MinSamplesSplit {
		return id
	}
	if g.params.MaxDepth > 0 && depth >= g.params.MaxDepth {
		return id
	}

	feature, threshold, gain, ok := g.bestSplit(samples, c0, c1)
	if !ok {
		return id
	}
	g.imp[feature] += gain

	var left, right []int
	for _, s := range samples {
		if g.x.At(s, feature) <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	g.nodes[id].feature = feature
	g.nodes[id].threshold = threshold
	g.nodes[id].left = g.growNode(left, depth+1)
	g.nodes[id].right = g.growNode(right, depth+1)
	return id
}

type splitPoint struct {
	value  float64
	weight float64
	label  int
}

// bestSplit scans a random feature subset for the boundary with the
// highest weighted impurity decrease. The first best found wins.
func (g *grower) bestSplit(samples []int, c0, c1 float64) (feature int, threshold, gain float64, ok bool) {
	_, cols := g.x.Dims()
	total := c0 + c1
	parent := total * gini(c0, c1)
	minLeaf := g.params.MinSamplesLeaf

	points := make([]splitPoint, len(samples))
	bestGain := 1e-12
	for _, f := range g.rng.Perm(cols)[:g.mtry] {
		for i, s := range samples {
			points[i] = splitPoint{g.x.At(s, f), g.w[s], g.y[s]}
		}
		sort.Slice(points, func(a, b int) bool { return points[a].value < points[b].value })

		var l0, l1 float64
		for i := 1; i < len(points); i++ {
			p := points[i-1]
			if p.label == 1 {
				l1 += p.weight
			} else {
				l0 += p.weight
			}
			if points[i].value == p.value {
				continue
			}
			if i < minLeaf || len(points)-i < minLeaf {
				continue
			}
			d := parent - (l0+l1)*gini(l0, l1) - (total-l0-l1)*gini(c0-l0, c1-l1)
			if d > bestGain {
				bestGain = d
				feature = f
				threshold = (p.value + points[i].value) / 2
				ok = true
			}
		}
	}
	return feature, threshold, bestGain, ok
}

// predict walks the tree and returns the positive-class probability
// at the reached leaf.
func (t *tree) predict(row []float64) float64 {
	i := 0
	for t.nodes[i].feature >= 0 {
		n := t.nodes[i]
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].prob
}

// gini computes the impurity of a weighted two-class count.
func gini(c0, c1 float64) float64 {
	total := c0 + c1
	if total == 0 {
		return 0
	}
	p0 := c0 / total
	p1 := c1 / total
	return 1 - p0*p0 - p1*p1
}
