package output

import (
	"fmt"
	"strings"
)

const ruleWidth = 66

// ScoreBar renders a bar for a score on a 0..scale range, e.g.
// "████████░░ 5.6/7". The bar is green at or above pass, yellow within one
// point of it and red otherwise.
func ScoreBar(score, scale, pass float64, width int) string {
	if width <= 0 {
		width = 20
	}
	if scale <= 0 {
		scale = 7
	}
	bar := bar(score/scale, width)

	style := StyleError
	switch {
	case score >= pass:
		style = StyleSuccess
	case score >= pass-1:
		style = StyleWarning
	}
	return fmt.Sprintf("%s %s", style.Render(bar), StyleMuted.Render(fmt.Sprintf("%.1f/%.0f", score, scale)))
}

// RateBar renders a 0..1 rate as a bar with a percentage.
func RateBar(rate float64, width int) string {
	if width <= 0 {
		width = 20
	}
	style := StyleError
	switch {
	case rate >= 0.7:
		style = StyleSuccess
	case rate >= 0.5:
		style = StyleWarning
	}
	return fmt.Sprintf("%s %s", style.Render(bar(rate, width)), StyleMuted.Render(fmt.Sprintf("%.1f%%", rate*100)))
}

func bar(frac float64, width int) string {
	filled := max(0, min(width, int(frac*float64(width))))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// TrendArrow returns a styled indicator for a delta between two snapshots.
// Whether an increase is good depends on higherIsBetter.
func TrendArrow(delta float64, higherIsBetter bool) string {
	if delta == 0 {
		return StyleMuted.Render("─")
	}

	var arrow string
	if delta > 0 {
		arrow = fmt.Sprintf("▲ +%.2f", delta)
	} else {
		arrow = fmt.Sprintf("▼ %.2f", delta)
	}
	if (delta > 0) == higherIsBetter {
		return StyleSuccess.Render(arrow)
	}
	return StyleError.Render(arrow)
}

// Section returns a styled section header followed by a horizontal rule.
func Section(title string) string {
	return fmt.Sprintf("\n %s\n %s", StyleHeader.Render(title), StyleMuted.Render(strings.Repeat("─", ruleWidth)))
}
