package watcher

import (
	"fmt"
	"strings"
	"time"
)

// Compare detects notable changes between two states of the same cohort
// and returns alerts ordered critical, warning, info.
func Compare(prev, curr *WatchState, t Thresholds, now time.Time) []Alert {
	var alerts []Alert

	alerts = append(alerts, compareCritical(prev, curr, t, now)...)
	alerts = append(alerts, compareWarning(prev, curr, t, now)...)
	alerts = append(alerts, compareInfo(prev, curr, now)...)

	return alerts
}

// compareCritical detects critical-level changes.
func compareCritical(prev, curr *WatchState, t Thresholds, now time.Time) []Alert {
	var alerts []Alert

	// Approval crossed below the critical line.
	if curr.TotalSessions > 0 && curr.ApprovalPct < t.CriticalApprovalPct && prev.ApprovalPct >= t.CriticalApprovalPct {
		alerts = append(alerts, Alert{
			Level:   LevelCritical,
			Cohort:  curr.CohortID,
			Title:   "Approval rate below threshold",
			Message: fmt.Sprintf("Approval is %.1f%% (was %.1f%%)", curr.ApprovalPct, prev.ApprovalPct),
			Time:    now,
		})
	}

	// Exercise newly below pass mean.
	for _, name := range sortedKeys(curr.LowExercises) {
		if _, was := prev.LowExercises[name]; was {
			continue
		}
		alerts = append(alerts, Alert{
			Level:   LevelCritical,
			Cohort:  curr.CohortID,
			Title:   fmt.Sprintf("Exercise below pass: %s", name),
			Message: fmt.Sprintf("Mean score is %.2f (pass is %.0f)", curr.LowExercises[name], t.PassThreshold),
			Time:    now,
		})
	}

	return alerts
}

// compareWarning detects warning-level changes.
func compareWarning(prev, curr *WatchState, t Thresholds, now time.Time) []Alert {
	var alerts []Alert

	drop := prev.ApprovalPct - curr.ApprovalPct
	if t.ApprovalDropPoints > 0 && drop >= t.ApprovalDropPoints && curr.TotalSessions > 0 {
		alerts = append(alerts, Alert{
			Level:   LevelWarning,
			Cohort:  curr.CohortID,
			Title:   "Approval rate dropped",
			Message: fmt.Sprintf("Approval fell %.1f points, from %.1f%% to %.1f%%", drop, prev.ApprovalPct, curr.ApprovalPct),
			Time:    now,
		})
	}

	var newRisk []string
	for _, id := range sortedKeys(curr.AtRisk) {
		if _, was := prev.AtRisk[id]; !was {
			newRisk = append(newRisk, curr.AtRisk[id])
		}
	}
	if len(newRisk) > 0 {
		alerts = append(alerts, Alert{
			Level:   LevelWarning,
			Cohort:  curr.CohortID,
			Title:   "New at-risk entities",
			Message: fmt.Sprintf("%d newly flagged: %s", len(newRisk), strings.Join(newRisk, ", ")),
			Time:    now,
		})
	}

	return alerts
}

// compareInfo detects informational changes.
func compareInfo(prev, curr *WatchState, now time.Time) []Alert {
	var alerts []Alert

	if curr.TotalSessions > prev.TotalSessions {
		n := curr.TotalSessions - prev.TotalSessions
		alerts = append(alerts, Alert{
			Level:   LevelInfo,
			Cohort:  curr.CohortID,
			Title:   "New sessions recorded",
			Message: fmt.Sprintf("%d new session(s), %d total", n, curr.TotalSessions),
			Time:    now,
		})
	}

	for _, name := range sortedKeys(prev.LowExercises) {
		if _, still := curr.LowExercises[name]; still {
			continue
		}
		alerts = append(alerts, Alert{
			Level:   LevelInfo,
			Cohort:  curr.CohortID,
			Title:   fmt.Sprintf("Exercise recovered: %s", name),
			Message: fmt.Sprintf("Mean score was %.2f and is now at or above pass", prev.LowExercises[name]),
			Time:    now,
		})
	}

	var cleared []string
	for _, id := range sortedKeys(prev.AtRisk) {
		if _, still := curr.AtRisk[id]; !still {
			cleared = append(cleared, prev.AtRisk[id])
		}
	}
	if len(cleared) > 0 {
		alerts = append(alerts, Alert{
			Level:   LevelInfo,
			Cohort:  curr.CohortID,
			Title:   "Entities no longer at risk",
			Message: strings.Join(cleared, ", "),
			Time:    now,
		})
	}

	return alerts
}
