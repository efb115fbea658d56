package analyzer

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/cohortwatch/internal/ml"
	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// minModelRecords is the smallest dataset the predictive models accept.
const minModelRecords = 10

// Feature names used in importances and formulas.
const (
	FeatureDuration  = "duration_minutes"
	FeatureAssistant = "assistant_interactions"
)

// Model names.
const (
	ModelLogistic = "logistic_regression"
	ModelForest   = "random_forest"
)

// Regression is the linear model of score on duration and assistant usage.
type Regression struct {
	Availability
	R2 float64 `json:"r2"`

	// Precision buckets R²: High ≥ 0.7, Moderate ≥ 0.4, Low otherwise.
	Precision string `json:"precision"`

	// DurationCoef is the score change per second of duration.
	DurationCoef   float64 `json:"duration_coefficient"`
	AssistantCoef  float64 `json:"assistant_coefficient"`
	Intercept      float64 `json:"intercept"`
	Formula        string  `json:"formula"`
	Interpretation string  `json:"interpretation"`
}

// ModelScore is a classifier's held-out performance.
type ModelScore struct {
	Accuracy float64 `json:"accuracy"`

	// ConfusionMatrix is indexed [true][predicted] over labels fail=0, pass=1.
	ConfusionMatrix [2][2]int `json:"confusion_matrix"`
}

// ForestScore adds impurity-based feature importances.
type ForestScore struct {
	ModelScore
	FeatureImportance map[string]float64 `json:"feature_importance"`
}

// Classification compares logistic regression and a random forest on the
// pass/fail label.
type Classification struct {
	Availability

	// ObservedPassRate is the fraction of all sessions that passed.
	ObservedPassRate float64 `json:"observed_pass_rate"`

	Logistic ModelScore  `json:"logistic_regression"`
	Forest   ForestScore `json:"random_forest"`

	BestModel    string  `json:"best_model,omitempty"`
	BestAccuracy float64 `json:"best_accuracy"`

	// Stratified reports whether the train/test split kept class balance.
	Stratified bool `json:"stratified"`

	Interpretation []string `json:"interpretation"`
	TotalSessions  int      `json:"total_sessions"`
	Passed         int      `json:"passed"`
	Failed         int      `json:"failed"`
}

// PredictiveEngine fits the regression and classification models.
type PredictiveEngine struct {
	cfg Config
}

// NewPredictiveEngine returns an engine seeded from cfg.Seed.
func NewPredictiveEngine(cfg Config) *PredictiveEngine {
	return &PredictiveEngine{cfg: cfg.withDefaults()}
}

// Regress fits score ~ duration_seconds + assistant_interactions. Fewer than
// ten records yields an unavailable result.
func (e *PredictiveEngine) Regress(ds *records.Dataset) Regression {
	if ds.Len() < minModelRecords {
		return Regression{Availability: unavailable(ErrInsufficientData,
			fmt.Sprintf("at least %d sessions are required for regression", minModelRecords))}
	}

	X := make([][]float64, ds.Len())
	dur, assist := ds.Durations(), ds.Assistants()
	for i := range X {
		X[i] = []float64{dur[i], assist[i]}
	}
	m, err := ml.FitOLS(X, ds.Scores())
	if err != nil {
		return Regression{Availability: unavailable(err, "regression failed: "+err.Error())}
	}

	r2 := finite(m.R2)
	durCoef, assistCoef := finite(m.Coef[0]), finite(m.Coef[1])
	return Regression{
		Availability:  availableResult(),
		R2:            round(r2, 3),
		Precision:     precisionTier(r2),
		DurationCoef:  round(durCoef, 4),
		AssistantCoef: round(assistCoef, 4),
		Intercept:     round(m.Intercept, 4),
		Formula: fmt.Sprintf("score = %.2f + (%.4f) * duration_seconds + (%.4f) * assistant_interactions",
			finite(m.Intercept), durCoef, assistCoef),
		Interpretation: interpretRegression(durCoef, assistCoef, r2),
	}
}

func precisionTier(r2 float64) string {
	switch {
	case r2 >= 0.7:
		return "High"
	case r2 >= 0.4:
		return "Moderate"
	default:
		return "Low"
	}
}

func interpretRegression(durCoef, assistCoef, r2 float64) string {
	if r2 < 0.3 {
		return "The model has low predictive value; results are highly variable."
	}
	var parts []string
	if durCoef > 0 {
		parts = append(parts, "Longer duration is associated with a higher score")
	} else {
		parts = append(parts, "Shorter duration is associated with a higher score")
	}
	if assistCoef > 0 {
		parts = append(parts, "More assistant interactions improve the score")
	} else {
		parts = append(parts, "Fewer assistant interactions improve the score")
	}
	return strings.Join(parts, ". ") + fmt.Sprintf(". (R² = %.2f)", r2)
}

// Classify trains both classifiers on a seeded 70/30 split and scores them
// on the held-out part. It refuses datasets below ten records or with a
// single outcome class.
func (e *PredictiveEngine) Classify(ds *records.Dataset) Classification {
	empty := Classification{Interpretation: []string{}, TotalSessions: ds.Len()}
	if ds.Len() < minModelRecords {
		empty.Availability = unavailable(ErrInsufficientData,
			fmt.Sprintf("at least %d sessions are required to train the classifier", minModelRecords))
		return empty
	}

	n := ds.Len()
	scores, dur, assist := ds.Scores(), ds.Durations(), ds.Assistants()
	X := make([][]float64, n)
	y := make([]int, n)
	var passed int
	for i := range X {
		X[i] = []float64{minutes(dur[i]), assist[i]}
		if scores[i] >= e.cfg.PassThreshold {
			y[i] = 1
			passed++
		}
	}
	empty.Passed, empty.Failed = passed, n-passed
	if passed == 0 || passed == n {
		empty.Availability = unavailable(ErrDegenerateLabels, "all sessions share the same outcome (pass/fail)")
		return empty
	}

	split := ml.TrainTestSplit(y, e.cfg.TestFraction, e.cfg.Seed, true)
	Xtr, ytr := pick(X, y, split.Train)
	Xte, yte := pick(X, y, split.Test)

	scaler, err := ml.FitScaler(Xtr)
	if err != nil {
		empty.Availability = unavailable(err, "scaling failed: "+err.Error())
		return empty
	}
	lr, err := ml.FitLogistic(scaler.Transform(Xtr), ytr, ml.LogisticConfig{C: 1})
	if err != nil {
		empty.Availability = unavailable(err, "logistic regression failed: "+err.Error())
		return empty
	}
	rf, err := ml.FitForest(Xtr, ytr, ml.ForestConfig{
		Trees:    e.cfg.ForestTrees,
		MaxDepth: e.cfg.ForestMaxDepth,
		Seed:     e.cfg.Seed,
	})
	if err != nil {
		empty.Availability = unavailable(err, "random forest failed: "+err.Error())
		return empty
	}

	scaledTest := scaler.Transform(Xte)
	predLR := make([]int, len(Xte))
	predRF := make([]int, len(Xte))
	for i, row := range Xte {
		predLR[i] = lr.Predict(scaledTest[i])
		predRF[i] = rf.Predict(row)
	}
	accLR, accRF := ml.Accuracy(yte, predLR), ml.Accuracy(yte, predRF)
	imp := rf.FeatureImportances()

	out := Classification{
		Availability:     availableResult(),
		ObservedPassRate: round(float64(passed)/float64(n), 4),
		Logistic:         ModelScore{Accuracy: round(accLR, 4), ConfusionMatrix: ml.ConfusionMatrix(yte, predLR)},
		Forest: ForestScore{
			ModelScore: ModelScore{Accuracy: round(accRF, 4), ConfusionMatrix: ml.ConfusionMatrix(yte, predRF)},
			FeatureImportance: map[string]float64{
				FeatureDuration:  round(imp[0], 4),
				FeatureAssistant: round(imp[1], 4),
			},
		},
		BestModel:     ModelLogistic,
		BestAccuracy:  round(accLR, 4),
		Stratified:    split.Stratified,
		TotalSessions: n,
		Passed:        passed,
		Failed:        n - passed,
	}
	if accRF > accLR {
		out.BestModel, out.BestAccuracy = ModelForest, round(accRF, 4)
	}

	best := max(accLR, accRF)
	if best > 0.7 {
		out.Interpretation = append(out.Interpretation,
			fmt.Sprintf("Models predict pass/fail with %.1f%% accuracy", best*100))
	} else {
		out.Interpretation = append(out.Interpretation,
			fmt.Sprintf("Limited accuracy (%.1f%%); more data is needed", best*100))
	}
	if imp[0] > imp[1] {
		out.Interpretation = append(out.Interpretation, "Duration is the most important factor for passing")
	} else {
		out.Interpretation = append(out.Interpretation, "Assistant use is the most important factor for passing")
	}
	return out
}

func pick(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i], ys[i] = X[j], y[j]
	}
	return xs, ys
}
