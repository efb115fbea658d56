package analyzer

import (
	"fmt"
	"sort"

	"github.com/blackwell-systems/cohortwatch/internal/ml"
	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// Cluster tags.
const (
	TagFast          = "fast"
	TagHeavyAssist   = "heavy assistant use"
	TagNoDistinction = "no distinguishing traits"
)

// ClusterLevel labels a cluster by its mean score.
type ClusterLevel string

const (
	LevelTop     ClusterLevel = "Top performers"
	LevelGood    ClusterLevel = "Good"
	LevelRegular ClusterLevel = "Regular"
	LevelAtRisk  ClusterLevel = "At risk"
)

// ClusterProfile describes one k-means cluster in original units.
type ClusterProfile struct {
	Name                string       `json:"name"`
	Level               ClusterLevel `json:"level"`
	Size                int          `json:"size"`
	MeanScore           float64      `json:"mean_score"`
	MeanDurationMinutes float64      `json:"mean_duration_minutes"`
	MeanAssistant       float64      `json:"mean_assistant_interactions"`
	Tags                []string     `json:"tags"`
	Members             []string     `json:"members"`
	Description         string       `json:"description"`

	heavyAssist bool
}

// ClusteringModel is the full k-means result.
type ClusteringModel struct {
	Availability

	// Message explains an unavailable result.
	Message string `json:"message,omitempty"`

	K           int              `json:"n_clusters"`
	EntityCount int              `json:"entity_count"`
	Clusters    []ClusterProfile `json:"clusters"`

	// Assignments maps entity ID to its cluster index.
	Assignments map[string]int `json:"assignments"`

	// Centroids are in original units: mean score, mean duration in
	// minutes, mean assistant interactions.
	Centroids [][]float64 `json:"centroids"`

	Inertia        float64  `json:"inertia"`
	Silhouette     float64  `json:"silhouette"`
	Quality        string   `json:"quality"`
	Interpretation []string `json:"interpretation"`
}

// ClusterGroup is the compact per-cluster view.
type ClusterGroup struct {
	Name                string   `json:"name"`
	Size                int      `json:"size"`
	MeanScore           float64  `json:"mean_score"`
	MeanDurationMinutes float64  `json:"mean_duration_minutes"`
	MeanAssistant       float64  `json:"mean_assistant_interactions"`
	Members             []string `json:"members"`
}

// ClusterGroups is the compact clustering view.
type ClusterGroups struct {
	Availability
	Groups     []ClusterGroup `json:"groups"`
	Silhouette float64        `json:"silhouette"`
	Quality    string         `json:"quality"`
}

// ClusteringEngine groups entities by behaviour with seeded k-means.
type ClusteringEngine struct {
	cfg Config
}

// NewClusteringEngine returns an engine using cfg.Clusters, cfg.Seed and
// cfg.KMeansInits.
func NewClusteringEngine(cfg Config) *ClusteringEngine {
	return &ClusteringEngine{cfg: cfg.withDefaults()}
}

// Cluster aggregates ds per entity and clusters the standardised
// (mean score, mean duration, mean assistant) vectors. Fewer than two
// entities yields an unavailable model with zero clusters.
func (e *ClusteringEngine) Cluster(ds *records.Dataset) ClusteringModel {
	aggs := aggregateEntities(ds)
	n := len(aggs)
	if n < 2 {
		return ClusteringModel{
			Availability:   unavailable(ErrInsufficientData, "at least 2 entities are required for clustering"),
			Message:        fmt.Sprintf("Currently %d entity(ies). At least 2 are needed for clustering analysis.", n),
			EntityCount:    n,
			Clusters:       []ClusterProfile{},
			Assignments:    map[string]int{},
			Centroids:      [][]float64{},
			Interpretation: []string{},
		}
	}

	k := e.cfg.Clusters
	if k > n {
		k = max(2, n/2)
	}

	features := make([][]float64, n)
	for i, a := range aggs {
		features[i] = []float64{a.MeanScore, minutes(a.MeanDuration), a.MeanAssistant}
	}
	scaler, err := ml.FitScaler(features)
	if err != nil {
		return e.failed(n, err)
	}
	scaled := scaler.Transform(features)

	res, err := ml.KMeans(scaled, ml.KMeansConfig{K: k, Inits: e.cfg.KMeansInits, Seed: e.cfg.Seed})
	if err != nil {
		return e.failed(n, err)
	}

	var silhouette float64
	if n > k {
		silhouette = ml.Silhouette(scaled, res.Labels)
	}

	durations := make([]float64, n)
	assists := make([]float64, n)
	for i, f := range features {
		durations[i], assists[i] = f[1], f[2]
	}
	medDuration, medAssist := median(durations), median(assists)

	model := ClusteringModel{
		Availability: availableResult(),
		K:            k,
		EntityCount:  n,
		Assignments:  make(map[string]int, n),
		Inertia:      round(res.Inertia, 4),
		Silhouette:   round(silhouette, 4),
		Quality:      silhouetteQuality(silhouette),
	}
	for i, a := range aggs {
		model.Assignments[a.ID] = res.Labels[i]
	}
	for _, c := range res.Centroids {
		orig := scaler.Inverse(c)
		for j := range orig {
			orig[j] = round(orig[j], 4)
		}
		model.Centroids = append(model.Centroids, orig)
	}

	for c := 0; c < k; c++ {
		var score, dur, assist []float64
		var members []string
		for i, l := range res.Labels {
			if l != c {
				continue
			}
			score = append(score, features[i][0])
			dur = append(dur, features[i][1])
			assist = append(assist, features[i][2])
			members = append(members, aggs[i].Label)
		}
		if len(members) == 0 {
			continue
		}

		p := ClusterProfile{
			Name:                fmt.Sprintf("Cluster %d", c+1),
			Level:               e.level(mean(score)),
			Size:                len(members),
			MeanScore:           round2(mean(score)),
			MeanDurationMinutes: round2(mean(dur)),
			MeanAssistant:       round2(mean(assist)),
			Members:             members,
		}
		if mean(dur) < medDuration {
			p.Tags = append(p.Tags, TagFast)
		}
		if mean(assist) > medAssist {
			p.Tags = append(p.Tags, TagHeavyAssist)
			p.heavyAssist = true
		}
		if len(p.Tags) == 0 {
			p.Tags = []string{TagNoDistinction}
		}
		p.Description = fmt.Sprintf("%s: %d entities averaging %.1f/%.0f", p.Level, p.Size, mean(score), e.cfg.MaxScore)
		model.Clusters = append(model.Clusters, p)
	}

	model.Interpretation = e.interpret(model.Clusters)
	return model
}

// failed wraps an unexpected numerical error as an unavailable model.
func (e *ClusteringEngine) failed(n int, err error) ClusteringModel {
	return ClusteringModel{
		Availability:   unavailable(err, "clustering failed: "+err.Error()),
		EntityCount:    n,
		Clusters:       []ClusterProfile{},
		Assignments:    map[string]int{},
		Centroids:      [][]float64{},
		Interpretation: []string{},
	}
}

func (e *ClusteringEngine) level(meanScore float64) ClusterLevel {
	switch {
	case meanScore >= 6:
		return LevelTop
	case meanScore >= 5:
		return LevelGood
	case meanScore >= e.cfg.PassThreshold:
		return LevelRegular
	default:
		return LevelAtRisk
	}
}

// interpret names the best and worst clusters and flags low-scoring
// clusters that lean on the assistant or take long.
func (e *ClusteringEngine) interpret(clusters []ClusterProfile) []string {
	if len(clusters) == 0 {
		return []string{}
	}
	ordered := make([]ClusterProfile, len(clusters))
	copy(ordered, clusters)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].MeanScore > ordered[j].MeanScore })

	best, worst := ordered[0], ordered[len(ordered)-1]
	out := []string{
		fmt.Sprintf("%s has the best performance at %.2f/%.0f", best.Name, best.MeanScore, e.cfg.MaxScore),
	}
	if worst.MeanScore < e.cfg.PassThreshold {
		out = append(out, fmt.Sprintf("%s needs attention: %d entities averaging %.2f/%.0f",
			worst.Name, worst.Size, worst.MeanScore, e.cfg.MaxScore))
	}

	longMinutes := minutes(e.cfg.LongDurationSeconds)
	for _, c := range clusters {
		low := c.MeanScore < e.cfg.PassThreshold
		switch {
		case c.heavyAssist && low:
			out = append(out, fmt.Sprintf("%s uses the assistant heavily but scores low; review study approach", c.Name))
		case c.MeanDurationMinutes > longMinutes && low:
			out = append(out, fmt.Sprintf("%s takes long but scores low; the content may be too difficult", c.Name))
		}
	}
	return out
}

func silhouetteQuality(s float64) string {
	switch {
	case s > 0.7:
		return "Excellent"
	case s > 0.5:
		return "Good"
	default:
		return "Moderate"
	}
}

// Groups returns the compact view of m.
func (m ClusteringModel) Groups() ClusterGroups {
	out := ClusterGroups{
		Availability: m.Availability,
		Groups:       make([]ClusterGroup, 0, len(m.Clusters)),
		Silhouette:   m.Silhouette,
		Quality:      m.Quality,
	}
	for _, c := range m.Clusters {
		out.Groups = append(out.Groups, ClusterGroup{
			Name:                string(c.Level),
			Size:                c.Size,
			MeanScore:           c.MeanScore,
			MeanDurationMinutes: c.MeanDurationMinutes,
			MeanAssistant:       c.MeanAssistant,
			Members:             c.Members,
		})
	}
	return out
}
