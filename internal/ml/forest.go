package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// ForestConfig controls a random-forest fit.
type ForestConfig struct {
	Trees       int
	MaxDepth    int
	MaxFeatures int // features tried per split; 0 means floor(sqrt(p))
	Seed        uint64
}

// Forest is a bagged ensemble of gini decision trees for binary labels.
type Forest struct {
	trees     []*tree
	nFeatures int
}

type node struct {
	feature     int
	threshold   float64
	left, right int // child indices; -1 on leaves
	counts      [2]float64
	impurity    float64
}

type tree struct {
	nodes []node
	// importance is the weighted impurity decrease per feature.
	importance []float64
}

// FitForest trains cfg.Trees trees on bootstrap samples of (X, y).
func FitForest(X [][]float64, y []int, cfg ForestConfig) (*Forest, error) {
	p, err := width(X)
	if err != nil {
		return nil, err
	}
	if len(y) != len(X) {
		return nil, ErrShape
	}
	for _, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("ml: label %d is not binary", v)
		}
	}
	if cfg.Trees < 1 {
		cfg.Trees = 50
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 5
	}
	if cfg.MaxFeatures < 1 || cfg.MaxFeatures > p {
		cfg.MaxFeatures = max(1, int(math.Sqrt(float64(p))))
	}

	rng := newRand(cfg.Seed)
	f := &Forest{nFeatures: p}
	n := len(X)
	for range cfg.Trees {
		weights := make([]float64, n)
		for range n {
			weights[rng.IntN(n)]++
		}
		var idx []int
		for i, w := range weights {
			if w > 0 {
				idx = append(idx, i)
			}
		}
		b := &builder{X: X, y: y, w: weights, cfg: cfg, rng: rng,
			t: &tree{importance: make([]float64, p)}}
		b.grow(idx, 0)
		f.trees = append(f.trees, b.t)
	}
	return f, nil
}

// Probability returns the mean leaf probability of class 1 across trees.
func (f *Forest) Probability(x []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.leafProbability(x)
	}
	return sum / float64(len(f.trees))
}

// Predict returns the class with the higher averaged probability; ties go
// to class 0.
func (f *Forest) Predict(x []float64) int {
	if f.Probability(x) > 0.5 {
		return 1
	}
	return 0
}

// FeatureImportances returns impurity-based importances summing to 1, or
// all zeros when no tree ever split.
func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, f.nFeatures)
	var used int
	for _, t := range f.trees {
		if len(t.nodes) < 2 {
			continue
		}
		var total float64
		for _, v := range t.importance {
			total += v
		}
		if total <= 0 {
			continue
		}
		for j, v := range t.importance {
			out[j] += v / total
		}
		used++
	}
	if used == 0 {
		return out
	}
	var total float64
	for j := range out {
		out[j] /= float64(used)
		total += out[j]
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func (t *tree) leafProbability(x []float64) float64 {
	i := 0
	for t.nodes[i].left >= 0 {
		nd := t.nodes[i]
		if x[nd.feature] <= nd.threshold {
			i = nd.left
		} else {
			i = nd.right
		}
	}
	c := t.nodes[i].counts
	if tot := c[0] + c[1]; tot > 0 {
		return c[1] / tot
	}
	return 0
}

type builder struct {
	X   [][]float64
	y   []int
	w   []float64
	cfg ForestConfig
	rng *rand.Rand
	t   *tree
}

// grow appends the subtree for the samples in idx and returns its index.
func (b *builder) grow(idx []int, depth int) int {
	var counts [2]float64
	for _, i := range idx {
		counts[b.y[i]] += b.w[i]
	}
	self := len(b.t.nodes)
	b.t.nodes = append(b.t.nodes, node{left: -1, right: -1, counts: counts, impurity: gini(counts)})

	total := counts[0] + counts[1]
	if depth >= b.cfg.MaxDepth || total < 2 || counts[0] == 0 || counts[1] == 0 {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	nd := &b.t.nodes[self]
	nd.feature, nd.threshold, nd.left, nd.right = feature, threshold, l, r

	lc, rc := b.t.nodes[l].counts, b.t.nodes[r].counts
	decrease := total*nd.impurity -
		(lc[0]+lc[1])*b.t.nodes[l].impurity -
		(rc[0]+rc[1])*b.t.nodes[r].impurity
	b.t.importance[feature] += decrease
	return self
}

// bestSplit draws features in random order and evaluates MaxFeatures of
// them, continuing past that only while no valid split has been found.
func (b *builder) bestSplit(idx []int, parent [2]float64) (int, float64, bool) {
	p := len(b.X[0])
	features := b.rng.Perm(p)

	bestFeature, bestThreshold := -1, 0.0
	bestScore := math.Inf(1)
	order := make([]int, len(idx))

	for tried, f := range features {
		if tried >= b.cfg.MaxFeatures && bestFeature >= 0 {
			break
		}
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var left [2]float64
		right := parent
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			left[b.y[i]] += b.w[i]
			right[b.y[i]] -= b.w[i]

			cur, next := b.X[i][f], b.X[order[k+1]][f]
			if cur == next {
				continue
			}
			lw, rw := left[0]+left[1], right[0]+right[1]
			score := lw*gini(left) + rw*gini(right)
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(c [2]float64) float64 {
	tot := c[0] + c[1]
	if tot == 0 {
		return 0
	}
	p0, p1 := c[0]/tot, c[1]/tot
	return 1 - p0*p0 - p1*p1
}
