package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// KMeansConfig controls a k-means run.
type KMeansConfig struct {
	K       int
	Inits   int     // independent k-means++ initialisations; best inertia wins
	MaxIter int     // Lloyd iterations per initialisation
	Tol     float64 // stop when total squared centroid shift falls below Tol
	Seed    uint64
}

// KMeansResult is the best clustering found across initialisations.
type KMeansResult struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// KMeans clusters X into cfg.K groups with k-means++ seeding.
func KMeans(X [][]float64, cfg KMeansConfig) (KMeansResult, error) {
	if _, err := width(X); err != nil {
		return KMeansResult{}, err
	}
	if cfg.K < 1 || cfg.K > len(X) {
		return KMeansResult{}, fmt.Errorf("ml: k=%d invalid for %d samples", cfg.K, len(X))
	}
	if cfg.Inits < 1 {
		cfg.Inits = 10
	}
	if cfg.MaxIter < 1 {
		cfg.MaxIter = 300
	}
	if cfg.Tol <= 0 {
		cfg.Tol = 1e-4
	}

	rng := newRand(cfg.Seed)
	best := KMeansResult{Inertia: math.Inf(1)}
	for range cfg.Inits {
		centroids := seedPlusPlus(X, cfg.K, rng)
		labels, centroids, inertia := lloyd(X, centroids, cfg.MaxIter, cfg.Tol)
		if inertia < best.Inertia {
			best = KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia}
		}
	}
	return best, nil
}

// seedPlusPlus picks k initial centroids, each new one sampled with
// probability proportional to its squared distance from the nearest chosen.
func seedPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(X[rng.IntN(len(X))]))

	closest := make([]float64, len(X))
	for i, x := range X {
		closest[i] = sqDist(x, centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range closest {
			total += d
		}

		next := rng.IntN(len(X))
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i, d := range closest {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}

		c := clone(X[next])
		centroids = append(centroids, c)
		for i, x := range X {
			if d := sqDist(x, c); d < closest[i] {
				closest[i] = d
			}
		}
	}
	return centroids
}

// lloyd iterates assignment and update steps. Empty clusters keep their
// previous centroid.
func lloyd(X [][]float64, centroids [][]float64, maxIter int, tol float64) ([]int, [][]float64, float64) {
	k := len(centroids)
	p := len(X[0])
	labels := make([]int, len(X))

	for iter := 0; iter < maxIter; iter++ {
		assign(X, centroids, labels)

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, p)
		}
		for i, x := range X {
			c := labels[i]
			counts[c]++
			for j, v := range x {
				sums[c][j] += v
			}
		}

		var shift float64
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				sums[c][j] /= float64(counts[c])
			}
			shift += sqDist(centroids[c], sums[c])
			centroids[c] = sums[c]
		}
		if shift <= tol {
			break
		}
	}

	inertia := assign(X, centroids, labels)
	return labels, centroids, inertia
}

// assign labels each row with its nearest centroid and returns the inertia.
// Ties go to the lowest cluster index.
func assign(X [][]float64, centroids [][]float64, labels []int) float64 {
	var inertia float64
	for i, x := range X {
		bestC, bestD := 0, math.Inf(1)
		for c, cent := range centroids {
			if d := sqDist(x, cent); d < bestD {
				bestC, bestD = c, d
			}
		}
		labels[i] = bestC
		inertia += bestD
	}
	return inertia
}

// Silhouette returns the mean silhouette coefficient of a labelling. It is 0
// when fewer than two clusters are populated.
func Silhouette(X [][]float64, labels []int) float64 {
	if len(X) != len(labels) || len(X) < 2 {
		return 0
	}
	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	if len(sizes) < 2 {
		return 0
	}

	var total float64
	for i, x := range X {
		if sizes[labels[i]] == 1 {
			continue // singleton clusters score 0
		}
		sums := make(map[int]float64, len(sizes))
		for j, y := range X {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(sqDist(x, y))
		}
		a := sums[labels[i]] / float64(sizes[labels[i]]-1)
		b := math.Inf(1)
		for l, s := range sums {
			if l == labels[i] {
				continue
			}
			if m := s / float64(sizes[l]); m < b {
				b = m
			}
		}
		if den := math.Max(a, b); den > 0 {
			total += (b - a) / den
		}
	}
	return total / float64(len(X))
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
