package analyzer

import (
	"sort"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// Composite score weights.
const (
	weightScore      = 0.6
	weightEfficiency = 0.3
	weightEngagement = 0.1
)

// RankedEntity is one row of the entity ranking.
type RankedEntity struct {
	Rank                int     `json:"rank"`
	EntityID            string  `json:"entity_id"`
	EntityLabel         string  `json:"entity_label"`
	Sessions            int     `json:"sessions"`
	MeanScore           float64 `json:"mean_score"`
	MeanDurationMinutes float64 `json:"mean_duration_minutes"`
	MeanAssistant       float64 `json:"mean_assistant_interactions"`

	// Composite blends outcome, time efficiency and engagement on the
	// score scale.
	Composite float64 `json:"composite"`
}

// RankingEngine orders entities by composite score.
type RankingEngine struct {
	cfg Config
}

// NewRankingEngine returns a RankingEngine returning at most cfg.TopN rows.
func NewRankingEngine(cfg Config) *RankingEngine {
	return &RankingEngine{cfg: cfg.withDefaults()}
}

// entityAggregate is the per-entity mean feature row shared by ranking,
// clustering and at-risk detection.
type entityAggregate struct {
	ID            string
	Label         string
	Sessions      int
	MeanScore     float64
	StdScore      float64
	MeanDuration  float64 // seconds
	MeanAssistant float64
}

// aggregateEntities returns one row per entity in first-seen order.
func aggregateEntities(ds *records.Dataset) []entityAggregate {
	groups := ds.ByEntity()
	out := make([]entityAggregate, 0, len(groups))
	for _, g := range groups {
		scores := g.Column(ds.Scores())
		out = append(out, entityAggregate{
			ID:            g.Key,
			Label:         g.Label,
			Sessions:      len(g.Rows),
			MeanScore:     mean(scores),
			StdScore:      stdDev(scores),
			MeanDuration:  mean(g.Column(ds.Durations())),
			MeanAssistant: mean(g.Column(ds.Assistants())),
		})
	}
	return out
}

// Rank scores every entity and returns the top N, highest first. Ties keep
// first-appearance order.
func (e *RankingEngine) Rank(ds *records.Dataset) []RankedEntity {
	aggs := aggregateEntities(ds)
	if len(aggs) == 0 {
		return []RankedEntity{}
	}

	var maxDur, maxAssist float64
	for _, a := range aggs {
		maxDur = max(maxDur, a.MeanDuration)
		maxAssist = max(maxAssist, a.MeanAssistant)
	}

	ranked := make([]RankedEntity, len(aggs))
	for i, a := range aggs {
		ranked[i] = RankedEntity{
			EntityID:            a.ID,
			EntityLabel:         a.Label,
			Sessions:            a.Sessions,
			MeanScore:           round2(a.MeanScore),
			MeanDurationMinutes: round2(minutes(a.MeanDuration)),
			MeanAssistant:       round2(a.MeanAssistant),
			Composite:           round(compositeScore(a, maxDur, maxAssist, e.cfg.MaxScore), 4),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Composite > ranked[j].Composite
	})
	if len(ranked) > e.cfg.TopN {
		ranked = ranked[:e.cfg.TopN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// compositeScore is 0.6·score + 0.3·max·(1 − dur/maxDur) +
// 0.1·max·(assist/maxAssist). A zero maximum zeroes its term.
func compositeScore(a entityAggregate, maxDur, maxAssist, maxScore float64) float64 {
	var efficiency, engagement float64
	if maxDur > 0 {
		efficiency = 1 - a.MeanDuration/maxDur
	}
	if maxAssist > 0 {
		engagement = a.MeanAssistant / maxAssist
	}
	return finite(weightScore*a.MeanScore +
		weightEfficiency*maxScore*efficiency +
		weightEngagement*maxScore*engagement)
}
