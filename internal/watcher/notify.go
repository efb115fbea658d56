package watcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// LevelOff disables desktop notifications when used as a Notifier level.
const LevelOff = "off"

var levelRank = map[string]int{LevelInfo: 1, LevelWarning: 2, LevelCritical: 3}

// Notifier sends alerts at or above a minimum level as desktop
// notifications: osascript on macOS, notify-send on Linux. When neither is
// usable the alert is written to Fallback.
type Notifier struct {
	MinLevel string
	Fallback io.Writer

	goos     string
	lookPath func(string) (string, error)
	run      func(name string, args ...string) error
}

// NewNotifier returns a Notifier for the current platform. An unknown
// minLevel behaves like LevelWarning.
func NewNotifier(minLevel string, fallback io.Writer) *Notifier {
	if fallback == nil {
		fallback = os.Stderr
	}
	return &Notifier{
		MinLevel: minLevel,
		Fallback: fallback,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Enabled reports whether alerts at level pass the minimum level.
func (n *Notifier) Enabled(level string) bool {
	if n.MinLevel == LevelOff {
		return false
	}
	floor, ok := levelRank[n.MinLevel]
	if !ok {
		floor = levelRank[LevelWarning]
	}
	return levelRank[level] >= floor
}

// Notify delivers a when its level is enabled.
func (n *Notifier) Notify(a Alert) error {
	if !n.Enabled(a.Level) {
		return nil
	}

	var name string
	var args []string
	switch n.goos {
	case "darwin":
		name = "osascript"
		args = []string{"-e", fmt.Sprintf(`display notification %q with title "cohortwatch" subtitle %q`, a.Message, alertTitle(a))}
	case "linux":
		name = "notify-send"
		args = []string{"cohortwatch: " + alertTitle(a), a.Message}
	default:
		return n.fallback(a)
	}

	if _, err := n.lookPath(name); err != nil {
		return n.fallback(a)
	}
	if err := n.run(name, args...); err != nil {
		return n.fallback(a)
	}
	return nil
}

func (n *Notifier) fallback(a Alert) error {
	_, err := fmt.Fprintf(n.Fallback, "[%s] %s: %s\n", a.Level, alertTitle(a), a.Message)
	return err
}

// alertTitle prefixes the title with the cohort when set.
func alertTitle(a Alert) string {
	if a.Cohort == "" {
		return a.Title
	}
	return a.Cohort + " / " + a.Title
}
