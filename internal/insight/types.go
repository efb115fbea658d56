// Package insight turns dataset statistics into ranked findings and flags
// entities that need attention.
package insight

// Kind classifies an insight.
type Kind string

const (
	KindCritical  Kind = "critical"
	KindAttention Kind = "attention"
	KindInfo      Kind = "info"
	KindPositive  Kind = "positive"
)

// Priority levels for insights; lower sorts first.
const (
	PriorityCritical  = 1
	PriorityAttention = 2
	PriorityInfo      = 3
	PriorityPositive  = 4
)

// Insight is a single automated finding.
type Insight struct {
	Kind     Kind   `json:"kind"`
	Priority int    `json:"priority"`
	Title    string `json:"title"`
	Message  string `json:"message"`

	// Subjects names the exercises or entities the insight refers to.
	Subjects []string `json:"subjects,omitempty"`
}

// ExerciseMean is one exercise's mean score.
type ExerciseMean struct {
	Exercise string  `json:"exercise"`
	Mean     float64 `json:"mean"`
	Sessions int     `json:"sessions"`
}

// Context carries the statistics the rules read. It is built from a
// dataset by NewContext.
type Context struct {
	// TotalSessions is the number of records analyzed.
	TotalSessions int `json:"total_sessions"`

	// ApprovalRate is the fraction of sessions at or above PassThreshold.
	ApprovalRate float64 `json:"approval_rate"`

	// ScoreStd is the sample standard deviation of score. It is only
	// meaningful when ScoreStdDefined is set (two or more sessions).
	ScoreStd        float64 `json:"score_std"`
	ScoreStdDefined bool    `json:"score_std_defined"`

	// Exercises lists exercise means in first-seen order.
	Exercises []ExerciseMean `json:"exercises"`

	// MeanAssistant is the mean assistant interactions per session.
	MeanAssistant float64 `json:"mean_assistant"`

	PassThreshold float64 `json:"pass_threshold"`
}

// Rule is a function that examines the context and produces zero or more
// insights.
type Rule func(ctx *Context) []Insight
