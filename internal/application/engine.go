package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-compass/infrastructure/middleware"
	"github.com/ahrav/go-compass/infrastructure/scoring"
	"github.com/ahrav/go-compass/infrastructure/validation"
	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/logging"
	"github.com/ahrav/go-compass/internal/ports"
)

const engineTracerName = "github.com/ahrav/go-compass/engine"

// Engine is the integration layer around one scoring profile. It validates
// inputs, fans comparisons out over a bounded worker pool, and reports
// logs, spans and metrics. Scores are exactly those of the profile's
// kernel.
//
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	profile    Profile
	kernel     *scoring.Kernel
	comparator *middleware.TracingComparator
	tracer     trace.Tracer
	metrics    ports.MetricsCollector
	logger     *slog.Logger
	maxWorkers int
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger         *slog.Logger
	metrics        ports.MetricsCollector
	tracerProvider trace.TracerProvider
	maxWorkers     int
}

// WithLogger sets the engine logger. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// WithMetrics sets the metrics collector. Defaults to none.
func WithMetrics(metrics ports.MetricsCollector) EngineOption {
	return func(o *engineOptions) { o.metrics = metrics }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(o *engineOptions) { o.tracerProvider = tp }
}

// WithMaxWorkers bounds ProximityMap concurrency. Values below one mean
// DefaultMaxWorkers.
func WithMaxWorkers(n int) EngineOption {
	return func(o *engineOptions) { o.maxWorkers = n }
}

// NewEngine creates an Engine for profile.
// NewEngine returns an error if the profile cannot produce a kernel.
func NewEngine(profile Profile, opts ...EngineOption) (*Engine, error) {
	o := engineOptions{maxWorkers: DefaultMaxWorkers}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.maxWorkers < 1 {
		o.maxWorkers = DefaultMaxWorkers
	}

	kernel, err := profile.NewKernel()
	if err != nil {
		return nil, fmt.Errorf("failed to create kernel for profile %s: %w", profile.Name, err)
	}

	e := &Engine{
		profile:    profile,
		kernel:     kernel,
		comparator: middleware.NewTracingComparator(kernel, o.tracerProvider, o.metrics, profile.Name),
		tracer:     o.tracerProvider.Tracer(engineTracerName),
		metrics:    o.metrics,
		logger:     logging.WithProfile(o.logger, profile.Name),
		maxWorkers: o.maxWorkers,
	}
	e.recordGauge("max_workers", float64(e.maxWorkers))
	return e, nil
}

// Profile returns the engine's profile.
func (e *Engine) Profile() Profile { return e.profile }

// Kernel returns the engine's uninstrumented kernel.
func (e *Engine) Kernel() *scoring.Kernel { return e.kernel }

// Proximity scores a against b.
func (e *Engine) Proximity(ctx context.Context, a, b domain.Positions) domain.Score {
	return e.comparator.WithContext(ctx).Proximity(a, b)
}

// Compare returns the full comparison record of a against b.
func (e *Engine) Compare(ctx context.Context, a, b domain.Positions) domain.Comparison {
	return e.comparator.WithContext(ctx).Compare(a, b)
}

// ProximityMap scores a against every counterpart concurrently, bounded by
// the worker limit. The result equals scoring.ProximityMap on the same
// inputs. A nil weights map means the profile's default weights.
//
// Returns ctx.Err() if the context is cancelled before every comparison
// has run, and scoring.ErrInvalidWeight for unusable weights.
func (e *Engine) ProximityMap(
	ctx context.Context,
	a domain.Positions,
	counterparts map[string]domain.Positions,
	weights map[string]float64,
) (map[string]domain.Score, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ProximityMap",
		trace.WithAttributes(attribute.Int("compass.counterparts", len(counterparts))),
	)
	defer span.End()
	start := time.Now()

	if weights == nil {
		weights = e.profile.Weights
	}
	if err := scoring.ValidateWeights(weights); err != nil {
		e.fail(span, "proximity_map", err)
		return nil, err
	}

	keys := slices.Collect(maps.Keys(counterparts))
	slices.SortFunc(keys, domain.CompareStatementIDs)
	scores := make([]domain.Score, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	comparator := e.comparator.WithContext(gctx)

	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each goroutine owns one slot.
			scores[i] = scoring.ApplyWeight(comparator.Proximity(a, counterparts[key]), key, weights)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.fail(span, "proximity_map", err)
		return nil, err
	}

	result := make(map[string]domain.Score, len(keys))
	for i, key := range keys {
		result[key] = scores[i]
	}

	elapsed := time.Since(start)
	e.recordLatency("proximity_map", elapsed)
	e.logger.DebugContext(ctx, "proximity map computed",
		"counterparts", len(keys),
		"workers", e.maxWorkers,
		"elapsed", elapsed,
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ProximityMix blends a's proximity to b1 and b2 with b1's share capped at
// the profile's MaxRatio. See scoring.ProximityMix.
func (e *Engine) ProximityMix(ctx context.Context, a, b1, b2 domain.Positions) (domain.Score, error) {
	return e.ProximityMixRatio(ctx, a, b1, e.profile.MaxRatio, b2)
}

// ProximityMixRatio is ProximityMix with an explicit cap.
func (e *Engine) ProximityMixRatio(
	ctx context.Context,
	a, b1 domain.Positions,
	maxRatio float64,
	b2 domain.Positions,
) (domain.Score, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ProximityMix",
		trace.WithAttributes(attribute.Float64("compass.max_ratio", maxRatio)),
	)
	defer span.End()

	score, err := scoring.ProximityMix(e.comparator.WithContext(ctx), a, b1, maxRatio, b2)
	if err != nil {
		e.fail(span, "proximity_mix", err)
		return score, err
	}
	span.SetStatus(codes.Ok, "")
	return score, nil
}

// Average combines position sets. See scoring.Average.
func (e *Engine) Average(sets ...domain.Positions) domain.Positions {
	start := time.Now()
	avg := scoring.Average(sets...)
	e.recordLatency("average", time.Since(start))
	return avg
}

// WeightedAverage combines position sets with weights. See
// scoring.WeightedAverage.
func (e *Engine) WeightedAverage(weights []float64, sets ...domain.Positions) (domain.Positions, error) {
	start := time.Now()
	avg, err := scoring.WeightedAverage(weights, sets...)
	if err != nil {
		logging.WithError(e.logger, err).Warn("weighted average rejected")
		e.recordCounter("weighted_average", "rejected")
		return nil, err
	}
	e.recordLatency("weighted_average", time.Since(start))
	return avg, nil
}

// Match validates a voter and a set of candidates and then scores the voter
// against every candidate.
//
// The voter must only use legal stances. Each candidate must use legal
// stances and take a side on every statement it lists. All failures are
// reported together, joined, each as a *domain.ValidationError naming the
// offending entity.
func (e *Engine) Match(
	ctx context.Context,
	voter domain.Positions,
	candidates map[string]domain.Positions,
	weights map[string]float64,
) (map[string]domain.Score, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Match")
	defer span.End()

	if err := e.validate(voter, candidates); err != nil {
		logging.WithError(e.logger, err).WarnContext(ctx, "match input rejected")
		e.failWith(span, "match", "rejected", err)
		return nil, err
	}

	scores, err := e.ProximityMap(ctx, voter, candidates, weights)
	if err != nil {
		e.fail(span, "match", err)
		return nil, err
	}

	e.recordCounter("match", "success")
	span.SetStatus(codes.Ok, "")
	return scores, nil
}

func (e *Engine) validate(voter domain.Positions, candidates map[string]domain.Positions) error {
	scale := e.profile.Scale

	var errs []error
	if err := validation.ValidatePositions(scale, voter); err != nil {
		errs = append(errs, withEntity(err, "voter"))
	}

	keys := slices.Collect(maps.Keys(candidates))
	slices.SortFunc(keys, domain.CompareStatementIDs)
	for _, key := range keys {
		ps := candidates[key]
		if err := validation.ValidatePositions(scale, ps); err != nil {
			errs = append(errs, withEntity(err, key))
		}
		if err := validation.ValidatePositionsTaken(scale, ps); err != nil {
			errs = append(errs, withEntity(err, key))
		}
	}
	return errors.Join(errs...)
}

// withEntity labels a validation error with the entity it concerns.
func withEntity(err error, entity string) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		verr.Entity = entity
	}
	return err
}

func (e *Engine) fail(span trace.Span, operation string, err error) {
	e.failWith(span, operation, "error", err)
}

func (e *Engine) failWith(span trace.Span, operation, status string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.recordCounter(operation, status)
}

func (e *Engine) labels() map[string]string {
	return map[string]string{middleware.LabelProfile: e.profile.Name}
}

func (e *Engine) recordLatency(operation string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordLatency(operation, d, e.labels())
	}
}

func (e *Engine) recordCounter(operation, status string) {
	if e.metrics != nil {
		labels := e.labels()
		labels[middleware.LabelStatus] = status
		e.metrics.RecordCounter(operation, 1, labels)
	}
}

func (e *Engine) recordGauge(metric string, value float64) {
	if e.metrics != nil {
		e.metrics.RecordGauge(metric, value, e.labels())
	}
}
