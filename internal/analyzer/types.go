// Package analyzer provides descriptive statistics, correlation, ranking,
// clustering, predictive modeling and chart projections over training-session
// datasets.
package analyzer

import "errors"

// ErrInsufficientData marks a sub-result that could not be computed because
// the dataset is below the algorithm's minimum size.
var ErrInsufficientData = errors.New("insufficient data")

// ErrDegenerateLabels marks a classification whose target has a single class.
var ErrDegenerateLabels = errors.New("degenerate labels")

// Availability tags a sub-result as computed or not. Unavailable results
// carry a human-readable reason and the sentinel that caused them.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Cause     error  `json:"-"`
}

func availableResult() Availability {
	return Availability{Available: true}
}

func unavailable(cause error, reason string) Availability {
	return Availability{Reason: reason, Cause: cause}
}

// Err returns the cause of an unavailable result, or nil.
func (a Availability) Err() error {
	if a.Available {
		return nil
	}
	if a.Cause == nil {
		return ErrInsufficientData
	}
	return a.Cause
}

// Config carries the tunable thresholds and seeds shared by the engines.
type Config struct {
	// PassThreshold is the score at or above which a session passes.
	PassThreshold float64

	// MaxScore is the top of the score scale.
	MaxScore float64

	// DifficultyDurationSeconds is the mean duration treated as maximally hard.
	DifficultyDurationSeconds float64

	// Clusters is the requested k for k-means.
	Clusters int

	// TopN bounds the ranking length.
	TopN int

	// Seed drives every randomised step.
	Seed uint64

	// KMeansInits is the number of k-means++ initialisations.
	KMeansInits int

	ForestTrees    int
	ForestMaxDepth int

	// TestFraction is the share of records held out for classifier scoring.
	TestFraction float64

	// LongDurationSeconds marks a cluster's mean duration as "long".
	LongDurationSeconds float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		PassThreshold:             4,
		MaxScore:                  7,
		DifficultyDurationSeconds: 240,
		Clusters:                  3,
		TopN:                      10,
		Seed:                      42,
		KMeansInits:               10,
		ForestTrees:               50,
		ForestMaxDepth:            5,
		TestFraction:              0.3,
		LongDurationSeconds:       120,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PassThreshold <= 0 {
		c.PassThreshold = d.PassThreshold
	}
	if c.MaxScore <= 0 {
		c.MaxScore = d.MaxScore
	}
	if c.DifficultyDurationSeconds <= 0 {
		c.DifficultyDurationSeconds = d.DifficultyDurationSeconds
	}
	if c.Clusters < 2 {
		c.Clusters = d.Clusters
	}
	if c.TopN <= 0 {
		c.TopN = d.TopN
	}
	if c.KMeansInits <= 0 {
		c.KMeansInits = d.KMeansInits
	}
	if c.ForestTrees <= 0 {
		c.ForestTrees = d.ForestTrees
	}
	if c.ForestMaxDepth <= 0 {
		c.ForestMaxDepth = d.ForestMaxDepth
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		c.TestFraction = d.TestFraction
	}
	if c.LongDurationSeconds <= 0 {
		c.LongDurationSeconds = d.LongDurationSeconds
	}
	return c
}
