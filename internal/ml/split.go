package ml

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Split holds train and test row indices, each in ascending order.
type Split struct {
	Train      []int
	Test       []int
	Stratified bool
}

// TrainTestSplit partitions len(y) rows so that ceil(testFraction·n) land in
// the test set. When stratify is set it preserves class proportions, falling
// back to a plain shuffled split if any class has fewer than two members or
// either side cannot hold one sample of every class.
func TrainTestSplit(y []int, testFraction float64, seed uint64, stratify bool) Split {
	n := len(y)
	if n < 2 {
		return Split{Train: seq(n)}
	}
	nTest := int(math.Ceil(testFraction*float64(n) - 1e-9))
	nTest = min(max(nTest, 1), n-1)

	rng := newRand(seed)

	if stratify {
		classes := classIndices(y)
		feasible := nTest >= len(classes) && n-nTest >= len(classes)
		for _, members := range classes {
			if len(members) < 2 {
				feasible = false
			}
		}
		if feasible {
			return stratifiedSplit(classes, n, nTest, rng)
		}
	}

	perm := rng.Perm(n)
	s := Split{Test: append([]int(nil), perm[:nTest]...), Train: append([]int(nil), perm[nTest:]...)}
	sort.Ints(s.Test)
	sort.Ints(s.Train)
	return s
}

// classIndices groups row indices by label, ordered by label value.
func classIndices(y []int) [][]int {
	byLabel := make(map[int][]int)
	for i, v := range y {
		byLabel[v] = append(byLabel[v], i)
	}
	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	out := make([][]int, len(labels))
	for i, l := range labels {
		out[i] = byLabel[l]
	}
	return out
}

// stratifiedSplit allocates test slots per class by largest remainder, with
// at least one test and one train sample per class.
func stratifiedSplit(classes [][]int, n, nTest int, rng *rand.Rand) Split {
	alloc := make([]int, len(classes))
	rem := make([]float64, len(classes))
	assigned := 0
	for c, members := range classes {
		exact := float64(nTest) * float64(len(members)) / float64(n)
		alloc[c] = int(math.Floor(exact))
		rem[c] = exact - float64(alloc[c])
		assigned += alloc[c]
	}
	order := make([]int, len(classes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for i := 0; assigned < nTest; i = (i + 1) % len(order) {
		c := order[i]
		if alloc[c] < len(classes[c])-1 {
			alloc[c]++
			assigned++
		}
	}
	for c := range alloc {
		if alloc[c] == 0 {
			alloc[c] = 1
		}
		if alloc[c] >= len(classes[c]) {
			alloc[c] = len(classes[c]) - 1
		}
	}

	s := Split{Stratified: true}
	for c, members := range classes {
		shuffled := append([]int(nil), members...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		s.Test = append(s.Test, shuffled[:alloc[c]]...)
		s.Train = append(s.Train, shuffled[alloc[c]:]...)
	}
	sort.Ints(s.Test)
	sort.Ints(s.Train)
	return s
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Accuracy is the fraction of predictions equal to the truth.
func Accuracy(truth, pred []int) float64 {
	if len(truth) == 0 || len(truth) != len(pred) {
		return 0
	}
	var hit int
	for i := range truth {
		if truth[i] == pred[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(truth))
}

// ConfusionMatrix returns counts indexed [true][predicted] for labels 0 and
// 1. The shape is always 2×2 even when a label never occurs.
func ConfusionMatrix(truth, pred []int) [2][2]int {
	var m [2][2]int
	for i := range truth {
		if i >= len(pred) {
			break
		}
		t, p := truth[i], pred[i]
		if t < 0 || t > 1 || p < 0 || p > 1 {
			continue
		}
		m[t][p]++
	}
	return m
}
