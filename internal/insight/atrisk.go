package insight

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// durationBand is how many standard deviations from the mean record
// duration an entity's mean duration may sit before it is flagged.
const durationBand = 1.5

// Reason strings attached to at-risk entities.
const (
	ReasonExcessiveTime = "excessive time"
	ReasonRushing       = "very short time (possible rushing)"
)

// AtRiskEntity is an entity flagged for attention.
type AtRiskEntity struct {
	EntityID            string   `json:"entity_id"`
	EntityLabel         string   `json:"entity_label"`
	Sessions            int      `json:"sessions"`
	MeanScore           float64  `json:"mean_score"`
	StdScore            float64  `json:"std_score"`
	MeanDurationMinutes float64  `json:"mean_duration_minutes"`
	MeanAssistant       float64  `json:"mean_assistant_interactions"`
	Reasons             []string `json:"reasons"`

	// Reason joins Reasons with ", ".
	Reason string `json:"reason"`
}

// Detector flags entities with a low mean score or an unusual mean
// duration.
type Detector struct {
	threshold float64
}

// NewDetector returns a Detector flagging mean scores below threshold.
func NewDetector(threshold float64) *Detector {
	return &Detector{threshold: threshold}
}

// Detect returns flagged entities in first-seen order. Duration limits are
// the mean record duration ± 1.5 sample standard deviations; both tails are
// flagged. With fewer than two records only the score rule applies.
func (d *Detector) Detect(ds *records.Dataset) []AtRiskEntity {
	out := []AtRiskEntity{}
	if ds.Empty() {
		return out
	}

	durations := ds.Durations()
	popMean := stat.Mean(durations, nil)
	upper, lower := math.Inf(1), math.Inf(-1)
	if len(durations) >= 2 {
		sd := stat.StdDev(durations, nil)
		upper = popMean + durationBand*sd
		lower = popMean - durationBand*sd
	}

	for _, g := range ds.ByEntity() {
		scores := g.Column(ds.Scores())
		meanScore := stat.Mean(scores, nil)
		meanDur := stat.Mean(g.Column(durations), nil)

		var reasons []string
		if meanScore < d.threshold {
			reasons = append(reasons, fmt.Sprintf("low average (%.2f)", meanScore))
		}
		if meanDur > upper {
			reasons = append(reasons, ReasonExcessiveTime)
		}
		if meanDur < lower {
			reasons = append(reasons, ReasonRushing)
		}
		if len(reasons) == 0 {
			continue
		}

		var std float64
		if len(scores) >= 2 {
			std = stat.StdDev(scores, nil)
		}
		out = append(out, AtRiskEntity{
			EntityID:            g.Key,
			EntityLabel:         g.Label,
			Sessions:            len(g.Rows),
			MeanScore:           round2(meanScore),
			StdScore:            round2(std),
			MeanDurationMinutes: round2(meanDur / 60),
			MeanAssistant:       round2(stat.Mean(g.Column(ds.Assistants()), nil)),
			Reasons:             reasons,
			Reason:              strings.Join(reasons, ", "),
		})
	}
	return out
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
