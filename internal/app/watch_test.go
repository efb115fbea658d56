package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blackwell-systems/cohortwatch/internal/output"
	"github.com/blackwell-systems/cohortwatch/internal/watcher"
)

func TestPrintAlert(t *testing.T) {
	output.SetNoColor(true)

	var buf bytes.Buffer
	printAlert(&buf, watcher.Alert{
		Level:   watcher.LevelCritical,
		Cohort:  "c1",
		Title:   "Exercise below pass: Fractions",
		Message: "Mean score is 3.20 (pass is 4)",
		Time:    time.Date(2025, 5, 1, 14, 3, 9, 0, time.UTC),
	})
	assert.Equal(t, "[14:03:09] ✗ c1: Exercise below pass: Fractions\n         Mean score is 3.20 (pass is 4)\n", buf.String())

	buf.Reset()
	printAlert(&buf, watcher.Alert{Level: watcher.LevelInfo, Title: "New sessions recorded", Time: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)})
	assert.Equal(t, "[09:00:00] · (none): New sessions recorded\n", buf.String())
}

func TestWriteLog(t *testing.T) {
	var buf bytes.Buffer
	writeLog(&buf, "daemon started (PID %d)", 42)
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] daemon started \(PID 42\)\n$`, buf.String())
}
