package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/cohortwatch/internal/config"
	"github.com/blackwell-systems/cohortwatch/internal/output"
	"github.com/blackwell-systems/cohortwatch/internal/watcher"
)

var (
	watchDaemon      bool
	watchInterval    string
	watchStop        bool
	watchQuiet       bool
	watchCohorts     []string
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor cohorts and alert on declines",
	Long: `Run a monitor that re-analyzes cohorts periodically and whenever the
session store changes. When notable events are detected (approval drops,
exercises falling below the pass mean, newly at-risk entities, new sessions),
desktop notifications and/or terminal alerts are emitted.

Examples:
  cohortwatch watch                          # all stored cohorts, foreground
  cohortwatch watch --cohort c1 --cohort c2  # specific cohorts
  cohortwatch watch --daemon                 # write PID file, log to file
  cohortwatch watch --metrics-addr :9464     # serve Prometheus metrics
  cohortwatch watch --stop                   # stop the background daemon`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "Run in background mode (write PID file, log to file)")
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "Check interval as duration string (default from config, 5m)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop a running background daemon")
	watchCmd.Flags().BoolVar(&watchQuiet, "quiet", false, "Suppress terminal output, only send notifications")
	watchCmd.Flags().StringSliceVar(&watchCohorts, "cohort", nil, "Cohort to watch (repeatable; default: every stored cohort)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	rootCmd.AddCommand(watchCmd)
}

// pidFilePath returns the path to the daemon PID file.
func pidFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.pid")
}

// logFilePath returns the path to the daemon log file.
func logFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.log")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchStop {
		return stopDaemon(cmd.OutOrStdout())
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	interval := e.cfg.Watch.Interval
	if watchInterval != "" {
		interval, err = time.ParseDuration(watchInterval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", watchInterval, err)
		}
	}
	if interval < 30*time.Second {
		return fmt.Errorf("interval must be at least 30s, got %s", interval)
	}

	cohorts := watchCohorts
	if len(cohorts) == 0 {
		summaries, err := e.db.ListCohorts(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range summaries {
			cohorts = append(cohorts, s.CohortID)
		}
	}
	if len(cohorts) == 0 {
		return errors.New("no cohorts to watch; import sessions first")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	addr := watchMetricsAddr
	if addr == "" {
		addr = e.cfg.Metrics.Addr
	}
	if addr != "" {
		srv := serveMetrics(e, addr)
		defer func() { _ = srv.Close() }()
	}

	var out io.Writer = cmd.OutOrStdout()
	if watchDaemon {
		f, cleanup, err := startDaemon()
		if err != nil {
			return err
		}
		defer cleanup()
		out = f
		writeLog(out, "cohortwatch daemon started (PID %d, interval %s)", os.Getpid(), interval)
	} else if watchQuiet {
		out = io.Discard
	}

	notifier := watcher.NewNotifier(e.cfg.Watch.NotifyLevel, cmd.ErrOrStderr())
	alertFn := func(a watcher.Alert) {
		if err := notifier.Notify(a); err != nil {
			e.logger.Debug("desktop notification failed", zap.Error(err))
		}
		if watchDaemon {
			writeLog(out, "[%s] %s / %s: %s", a.Level, cohortName(a.Cohort), a.Title, a.Message)
			return
		}
		printAlert(out, a)
	}

	opts := []watcher.Option{
		watcher.WithLogger(e.logger),
		watcher.WithThresholds(watcher.Thresholds{
			PassThreshold:       e.passThreshold(),
			CriticalApprovalPct: e.cfg.Watch.CriticalApprovalPct,
			ApprovalDropPoints:  e.cfg.Watch.ApprovalDropPoints,
		}),
	}
	if trig, err := watcher.WatchFile(e.db.Path(), e.logger); err != nil {
		e.logger.Warn("file change trigger unavailable, polling only", zap.Error(err))
	} else {
		defer func() { _ = trig.Close() }()
		opts = append(opts, watcher.WithTrigger(trig.C))
	}

	w := watcher.New(e.orch, cohorts, interval, alertFn, opts...)
	if !watchDaemon {
		fmt.Fprintf(out, "cohortwatch watching %d cohort(s)... (checking every %s)\n", len(cohorts), interval)
	}

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		if watchDaemon {
			writeLog(out, "daemon stopped")
		} else {
			fmt.Fprintln(out, "\nStopped.")
		}
		return nil
	}
	return err
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, shutdownSignals...)
}

// serveMetrics exposes the pipeline registry over HTTP.
func serveMetrics(e *env, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	e.logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// startDaemon writes the PID file and opens the log file. Backgrounding is
// left to the caller (nohup, &, etc.) since Go cannot reliably fork.
func startDaemon() (*os.File, func(), error) {
	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating config dir: %w", err)
	}

	if pid, err := readPID(); err == nil {
		if processExists(pid) {
			return nil, nil, fmt.Errorf("daemon already running (PID %d). Use --stop to stop it", pid)
		}
		// Stale PID file.
		_ = os.Remove(pidFilePath())
	}

	if err := os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, nil, fmt.Errorf("writing PID file: %w", err)
	}

	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = os.Remove(pidFilePath())
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	cleanup := func() {
		_ = logFile.Close()
		_ = os.Remove(pidFilePath())
	}
	return logFile, cleanup, nil
}

// stopDaemon signals the daemon named in the PID file and removes the file.
func stopDaemon(w io.Writer) error {
	pid, err := readPID()
	if err != nil {
		return fmt.Errorf("no watch daemon running (could not read PID file: %w)", err)
	}
	if !processExists(pid) {
		_ = os.Remove(pidFilePath())
		return fmt.Errorf("no watch daemon running (PID %d is stale, removed PID file)", pid)
	}
	if err := terminate(pid); err != nil {
		return fmt.Errorf("stopping watch daemon (PID %d): %w", pid, err)
	}
	_ = os.Remove(pidFilePath())
	fmt.Fprintf(w, "Stopped watch daemon (PID %d)\n", pid)
	return nil
}

// readPID reads the daemon PID from the PID file.
func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// writeLog writes a timestamped line to the log.
func writeLog(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	_, _ = fmt.Fprintf(w, "[%s] %s\n", timestamp, msg)
}

// printAlert formats and prints an alert to the terminal.
func printAlert(w io.Writer, a watcher.Alert) {
	timestamp := a.Time.Format("15:04:05")
	fmt.Fprintf(w, "[%s] %s %s: %s\n", timestamp, output.Marker(a.Level), cohortName(a.Cohort), a.Title)
	if a.Message != "" {
		fmt.Fprintf(w, "         %s\n", a.Message)
	}
}

