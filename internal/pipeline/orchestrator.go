package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/cache"
	"github.com/blackwell-systems/cohortwatch/internal/insight"
	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// Memoized operation names, used as cache key prefixes.
const (
	opCohort = "analyze_cohort"
	opEntity = "analyze_entity"
)

// errNoFetcher is reported when an Orchestrator was built without a Fetcher.
var errNoFetcher = errors.New("no record fetcher configured")

// Orchestrator fetches records, runs every engine and merges the results.
// Its operations never return errors: failures produce a report with
// Success=false and a diagnostic Message.
type Orchestrator struct {
	fetcher records.Fetcher
	engines Engines
	cache   cache.Cache
	memo    *cache.Memo
	ttl     time.Duration
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string

	// namespace prefixes every cache key so orchestrators with different
	// engines can share one cache.
	namespace  string
	customized bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEngines overrides engines; nil fields keep their defaults.
func WithEngines(e Engines) Option {
	return func(o *Orchestrator) {
		o.engines = e.merge(o.engines)
		o.customized = true
	}
}

// WithNamespace sets the cache key namespace. By default it is derived from
// the analyzer configuration, or random when WithEngines is used.
func WithNamespace(ns string) Option {
	return func(o *Orchestrator) { o.namespace = ns }
}

// WithCache sets the result cache and entry TTL.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.cache = c
		o.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source used for generated_at and timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides report ID generation.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// New creates an Orchestrator reading from fetcher. Without WithCache the
// results are not cached.
func New(fetcher records.Fetcher, cfg analyzer.Config, atRiskThreshold float64, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		engines: DefaultEngines(cfg, atRiskThreshold),
		cache:   cache.Nop{},
		logger:  zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = cache.Nop{}
	}
	if o.namespace == "" {
		o.namespace = configNamespace(cfg, atRiskThreshold)
		if o.customized {
			o.namespace = uuid.NewString()
		}
	}
	o.memo = cache.NewMemo(o.cache, o.ttl)
	return o
}

// Analyze runs the engines over rows. It does not touch the cache or the
// fetcher.
func (o *Orchestrator) Analyze(rows []records.SessionRecord) Report {
	return o.run(records.NewDataset(rows), zap.Int("records", len(rows)))
}

// AnalyzeCohort fetches and analyzes a cohort. Successful reports are
// cached per cohort; degraded ones are not.
func (o *Orchestrator) AnalyzeCohort(ctx context.Context, cohortID string) (report Report) {
	field := zap.String("cohort", cohortID)
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("cohort analysis panicked", field, zap.Any("panic", p))
			o.metrics.observeRun(OutcomePanic, 0)
			report = o.degraded(fmt.Sprintf("analysis failed: %v", p))
		}
	}()

	report, hit, err := cache.Call(o.memo, o.op(opCohort), func() (Report, error) {
		rows, err := o.fetch(ctx, records.Scope{CohortID: cohortID})
		if err != nil {
			return Report{}, err
		}
		r := o.run(records.NewDataset(rows), field)
		if !r.Success {
			return r, errDegraded{r}
		}
		return r, nil
	}, cohortID)
	o.metrics.observeLookup(hit)

	if err != nil {
		var d errDegraded
		if errors.As(err, &d) {
			return d.report
		}
		return o.fetchFailed(err, field)
	}
	return report
}

// AnalyzeEntity analyzes one entity's sessions, optionally restricted to a
// cohort.
func (o *Orchestrator) AnalyzeEntity(ctx context.Context, entityID, cohortID string) (report EntityReport) {
	fields := []zap.Field{zap.String("entity", entityID), zap.String("cohort", cohortID)}
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("entity analysis panicked", append(fields, zap.Any("panic", p))...)
			o.metrics.observeRun(OutcomePanic, 0)
			report = o.emptyEntity(entityID)
			report.Success = false
			report.Message = fmt.Sprintf("analysis failed: %v", p)
		}
	}()

	report, hit, err := cache.Call(o.memo, o.op(opEntity), func() (EntityReport, error) {
		rows, err := o.fetch(ctx, records.Scope{CohortID: cohortID, EntityID: entityID})
		if err != nil {
			return EntityReport{}, err
		}
		r := o.runEntity(entityID, records.NewDataset(rows), fields...)
		if !r.Success {
			return r, errDegradedEntity{r}
		}
		return r, nil
	}, entityID, cohortID)
	o.metrics.observeLookup(hit)

	if err != nil {
		var d errDegradedEntity
		if errors.As(err, &d) {
			return d.report
		}
		o.logger.Error("fetching entity records failed", append(fields, zap.Error(err))...)
		o.metrics.observeRun(fetchOutcome(err), 0)
		r := o.emptyEntity(entityID)
		r.Success = false
		r.Message = fmt.Sprintf("fetching records: %v", err)
		return r
	}
	return report
}

// AnalyzeExercise analyzes a single exercise within a cohort. It is not
// cached.
func (o *Orchestrator) AnalyzeExercise(ctx context.Context, cohortID, exercise string) (report ExerciseReport) {
	fields := []zap.Field{zap.String("cohort", cohortID), zap.String("exercise", exercise)}
	start := o.now()
	report = ExerciseReport{
		ReportID:     o.newID(),
		GeneratedAt:  start,
		ExerciseView: emptyExerciseView(exercise),
	}
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("exercise analysis panicked", append(fields, zap.Any("panic", p))...)
			o.metrics.observeRun(OutcomePanic, o.now().Sub(start))
			report.Success = false
			report.Message = fmt.Sprintf("analysis failed: %v", p)
			report.ExerciseView = emptyExerciseView(exercise)
		}
	}()

	rows, err := o.fetch(ctx, records.Scope{CohortID: cohortID})
	if err != nil {
		o.logger.Error("fetching exercise records failed", append(fields, zap.Error(err))...)
		o.metrics.observeRun(fetchOutcome(err), 0)
		report.Message = fmt.Sprintf("fetching records: %v", err)
		return report
	}
	ds := records.NewDataset(rows).Filter(func(r records.SessionRecord) bool {
		return r.ExerciseLabel == exercise
	})
	if ds.Empty() {
		o.metrics.observeRun(OutcomeEmpty, o.now().Sub(start))
		report.Message = fmt.Sprintf("no sessions recorded for exercise %q", exercise)
		return report
	}

	report.ExerciseView = analyzer.ExerciseView{
		Exercise:      exercise,
		TotalSessions: ds.Len(),
		EntityCount:   ds.EntityCount(),
		Statistics:    o.engines.Stats.Describe(ds),
		Visualization: o.engines.Visualization.Prepare(ds),
	}
	report.Success = true
	o.metrics.observeRun(OutcomeOK, o.now().Sub(start))
	return report
}

// Invalidate drops cached results for a cohort, or every result this
// Orchestrator cached when cohortID is empty. Entity results are always
// dropped since they may span cohorts. It is a no-op for caches that cannot
// evict.
func (o *Orchestrator) Invalidate(cohortID string) {
	p, ok := o.cache.(interface {
		Delete(key string)
		Purge(prefix string) int
	})
	if !ok {
		return
	}
	if cohortID == "" {
		p.Purge(o.namespace + "/")
		return
	}
	p.Delete(cache.Key(o.op(opCohort), cohortID))
	p.Purge(o.op(opEntity) + ":")
}

func (o *Orchestrator) op(name string) string {
	return o.namespace + "/" + name
}

// configNamespace derives a stable key namespace from the engine settings.
func configNamespace(cfg analyzer.Config, atRiskThreshold float64) string {
	name := fmt.Sprintf("%+v at_risk=%v", cfg, atRiskThreshold)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// fetch loads records for scope, turning a Fetcher panic into an error.
func (o *Orchestrator) fetch(ctx context.Context, scope records.Scope) (rows []records.SessionRecord, err error) {
	if o.fetcher == nil {
		return nil, errNoFetcher
	}
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("record fetcher panicked", zap.Stringer("scope", scope), zap.Any("panic", p))
			err = fetchPanic{value: p}
		}
	}()
	return o.fetcher.Fetch(ctx, scope)
}

// fetchPanic carries a value recovered from a Fetcher.
type fetchPanic struct{ value any }

func (e fetchPanic) Error() string { return fmt.Sprintf("fetcher panicked: %v", e.value) }

func fetchOutcome(err error) string {
	var p fetchPanic
	if errors.As(err, &p) {
		return OutcomePanic
	}
	return OutcomeFetchError
}

// run executes every engine over ds and recovers engine panics into a
// degraded report.
func (o *Orchestrator) run(ds *records.Dataset, fields ...zap.Field) (report Report) {
	start := o.now()
	defer func() {
		if p := recover(); p != nil {
			elapsed := o.now().Sub(start)
			o.logger.Error("analysis panicked",
				append(fields, zap.Any("panic", p), zap.Duration("duration", elapsed))...)
			o.metrics.observeRun(OutcomePanic, elapsed)
			report = o.degraded(fmt.Sprintf("analysis failed: %v", p))
		}
	}()

	report = assemble(o.engines, ds)
	report.ReportID = o.newID()
	report.GeneratedAt = start
	elapsed := o.now().Sub(start)

	if ds.Empty() {
		report.Message = "no sessions recorded for this scope"
		o.logger.Info("analysis skipped: no records", fields...)
		o.metrics.observeRun(OutcomeEmpty, elapsed)
		return report
	}
	for model, a := range map[string]analyzer.Availability{
		"classification": report.ClassificationModel.Availability,
		"clustering":     report.ClusteringModel.Availability,
		"correlation":    report.CorrelationModel.Availability,
	} {
		if err := a.Err(); err != nil {
			o.logger.Debug("model unavailable", append(fields, zap.String("model", model), zap.Error(err))...)
		}
	}
	o.logger.Debug("analysis complete",
		append(fields, zap.Int("sessions", ds.Len()), zap.Duration("duration", elapsed))...)
	o.metrics.observeRun(OutcomeOK, elapsed)
	return report
}

func (o *Orchestrator) runEntity(entityID string, ds *records.Dataset, fields ...zap.Field) (report EntityReport) {
	start := o.now()
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("entity analysis panicked", append(fields, zap.Any("panic", p))...)
			o.metrics.observeRun(OutcomePanic, o.now().Sub(start))
			report = o.emptyEntity(entityID)
			report.Success = false
			report.Message = fmt.Sprintf("analysis failed: %v", p)
		}
	}()

	report = o.emptyEntity(entityID)
	if ds.Empty() {
		report.Message = "No sessions recorded yet. Complete an exercise to start tracking progress."
		o.metrics.observeRun(OutcomeEmpty, o.now().Sub(start))
		return report
	}
	report.EntityLabel = ds.Rows()[0].Label()
	report.TotalSessions = ds.Len()
	report.EntityView = o.engines.Stats.DescribeEntity(ds)
	o.metrics.observeRun(OutcomeOK, o.now().Sub(start))
	return report
}

func (o *Orchestrator) emptyEntity(entityID string) EntityReport {
	return EntityReport{
		Success:     true,
		ReportID:    o.newID(),
		GeneratedAt: o.now(),
		EntityID:    entityID,
		EntityLabel: entityID,
		EntityView: analyzer.EntityView{
			PerExercise: []analyzer.EntityExercise{},
			Progress:    map[string][]analyzer.ProgressPoint{},
			Insights:    []string{},
		},
	}
}

func (o *Orchestrator) fetchFailed(err error, fields ...zap.Field) Report {
	o.logger.Error("fetching records failed", append(fields, zap.Error(err))...)
	o.metrics.observeRun(fetchOutcome(err), 0)
	return o.degraded(fmt.Sprintf("fetching records: %v", err))
}

func (o *Orchestrator) degraded(msg string) Report {
	r := emptyReport()
	r.Success = false
	r.Message = msg
	r.ReportID = o.newID()
	r.GeneratedAt = o.now()
	return r
}

// assemble runs engines over ds and fills every report key. A nil ds is
// treated as empty.
func assemble(e Engines, ds *records.Dataset) Report {
	if ds == nil {
		ds = records.Empty()
	}
	corr := e.Correlation.Correlate(ds)
	clusters := e.Clustering.Cluster(ds)

	r := Report{
		Success:             true,
		TotalSessions:       ds.Len(),
		Statistics:          e.Stats.Describe(ds),
		PerExercise:         e.Stats.ByExercise(ds),
		Correlations:        corr.Overview(),
		Clustering:          clusters.Groups(),
		Prediction:          e.Predictive.Regress(ds),
		Insights:            e.Insights.Generate(ds),
		Ranking:             e.Ranking.Rank(ds),
		AtRisk:              e.Insights.AtRisk(ds),
		Visualization:       e.Visualization.Prepare(ds),
		ClassificationModel: e.Predictive.Classify(ds),
		ClusteringModel:     clusters,
		CorrelationModel:    corr,
	}
	if r.PerExercise == nil {
		r.PerExercise = map[string]analyzer.ExerciseStats{}
	}
	if r.Insights == nil {
		r.Insights = []insight.Insight{}
	}
	if r.Ranking == nil {
		r.Ranking = []analyzer.RankedEntity{}
	}
	if r.AtRisk == nil {
		r.AtRisk = []insight.AtRiskEntity{}
	}
	return r
}

func emptyExerciseView(exercise string) analyzer.ExerciseView {
	return analyzer.ExerciseView{
		Exercise:      exercise,
		Statistics:    analyzer.Statistics{},
		Visualization: analyzer.EmptyVisualization(),
	}
}

// errDegraded carries a degraded report through the memo without caching
// it.
type errDegraded struct{ report Report }

func (e errDegraded) Error() string { return e.report.Message }

type errDegradedEntity struct{ report EntityReport }

func (e errDegradedEntity) Error() string { return e.report.Message }
