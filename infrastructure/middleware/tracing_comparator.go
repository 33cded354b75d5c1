package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/ports"
)

var _ ports.Comparator = (*TracingComparator)(nil)

// tracerName is the instrumentation scope for comparison spans.
const tracerName = "github.com/ahrav/go-compass/comparator"

// TracingComparator decorates a Comparator with one OpenTelemetry span and a
// set of metrics per comparison. Scores pass through untouched.
//
// Comparator methods take no context, so spans are parented on the context
// bound with WithContext (context.Background by default).
type TracingComparator struct {
	next    ports.Comparator
	tracer  trace.Tracer
	metrics ports.MetricsCollector
	profile string
	ctx     context.Context
}

// NewTracingComparator wraps next. A nil tp uses the global tracer provider;
// metrics may be nil.
func NewTracingComparator(
	next ports.Comparator,
	tp trace.TracerProvider,
	metrics ports.MetricsCollector,
	profile string,
) *TracingComparator {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingComparator{
		next:    next,
		tracer:  tp.Tracer(tracerName),
		metrics: metrics,
		profile: profile,
		ctx:     context.Background(),
	}
}

// WithContext returns a copy whose spans are children of ctx.
func (t *TracingComparator) WithContext(ctx context.Context) *TracingComparator {
	c := *t
	c.ctx = ctx
	return &c
}

// Compare implements ports.Comparator.
func (t *TracingComparator) Compare(a, b domain.Positions) domain.Comparison {
	_, span := t.tracer.Start(t.ctx, "Comparator.Compare",
		trace.WithAttributes(
			attribute.String("compass.profile", t.profile),
			attribute.Int("compass.left_statements", len(a)),
			attribute.Int("compass.right_statements", len(b)),
		),
	)
	defer span.End()

	start := time.Now()
	cmp := t.next.Compare(a, b)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int("compass.common_statements", len(cmp.Statements)),
		attribute.Bool("compass.unknowable", cmp.Score.IsUnknowable()),
	)
	if v, ok := cmp.Score.Value(); ok {
		span.SetAttributes(attribute.Float64("compass.proximity", v))
	}
	if len(cmp.Statements) == 0 {
		span.AddEvent("compass.empty_overlap")
	}
	span.SetStatus(codes.Ok, "")

	t.record(cmp, elapsed)
	return cmp
}

// Proximity implements ports.Comparator.
func (t *TracingComparator) Proximity(a, b domain.Positions) domain.Score {
	return t.Compare(a, b).Score
}

// EmptyScore implements ports.Comparator.
func (t *TracingComparator) EmptyScore() domain.Score {
	return t.next.EmptyScore()
}

func (t *TracingComparator) record(cmp domain.Comparison, elapsed time.Duration) {
	if t.metrics == nil {
		return
	}

	labels := map[string]string{LabelProfile: t.profile}
	t.metrics.RecordLatency("compare", elapsed, labels)
	t.metrics.RecordHistogram(MetricCommonStatements, float64(len(cmp.Statements)), labels)

	outcome := "known"
	if v, ok := cmp.Score.Value(); ok {
		t.metrics.RecordHistogram(MetricProximityScore, v, labels)
	} else {
		outcome = "unknowable"
	}
	t.metrics.RecordCounter(MetricComparisons, 1, map[string]string{
		LabelProfile: t.profile,
		LabelOutcome: outcome,
	})
}
