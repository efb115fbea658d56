package insight

import (
	"fmt"
	"strings"
)

// Rule thresholds.
const (
	lowApproval      = 0.5
	highApproval     = 0.9
	highVariability  = 1.5
	lowAssistantMean = 2.0
)

// ApprovalRate flags a low approval rate as critical and a very high one as
// positive.
func ApprovalRate(ctx *Context) []Insight {
	pct := ctx.ApprovalRate * 100
	switch {
	case ctx.ApprovalRate < lowApproval:
		return []Insight{{
			Kind:     KindCritical,
			Priority: PriorityCritical,
			Title:    "Low approval rate",
			Message: fmt.Sprintf("Low approval rate (%.1f%%). Review the exercise difficulty or content.",
				pct),
		}}
	case ctx.ApprovalRate > highApproval:
		return []Insight{{
			Kind:     KindPositive,
			Priority: PriorityPositive,
			Title:    "Excellent approval rate",
			Message: fmt.Sprintf("Excellent approval rate (%.1f%%). Entities are understanding the material.",
				pct),
		}}
	}
	return nil
}

// ScoreVariability flags a wide score spread. It is skipped when the
// standard deviation is undefined.
func ScoreVariability(ctx *Context) []Insight {
	if !ctx.ScoreStdDefined || ctx.ScoreStd <= highVariability {
		return nil
	}
	return []Insight{{
		Kind:     KindAttention,
		Priority: PriorityAttention,
		Title:    "High score variability",
		Message: fmt.Sprintf("High score variability (σ=%.2f). Some entities need additional support.",
			ctx.ScoreStd),
	}}
}

// LowExercisePerformance names every exercise whose mean score is below the
// pass threshold.
func LowExercisePerformance(ctx *Context) []Insight {
	var low []string
	for _, ex := range ctx.Exercises {
		if ex.Mean < ctx.PassThreshold {
			low = append(low, ex.Exercise)
		}
	}
	if len(low) == 0 {
		return nil
	}
	return []Insight{{
		Kind:     KindCritical,
		Priority: PriorityCritical,
		Title:    "Low-performing exercises",
		Message: fmt.Sprintf("Low-performing exercises: %s. Consider simplifying them or adding more guidance.",
			strings.Join(low, ", ")),
		Subjects: low,
	}}
}

// LowAssistantUse notes when entities rarely use the assistant.
func LowAssistantUse(ctx *Context) []Insight {
	if ctx.MeanAssistant >= lowAssistantMean {
		return nil
	}
	return []Insight{{
		Kind:     KindInfo,
		Priority: PriorityInfo,
		Title:    "Low assistant use",
		Message: fmt.Sprintf("Low assistant use (%.1f interactions on average). Encourage using it for better learning.",
			ctx.MeanAssistant),
	}}
}
