package application

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ahrav/go-compass/infrastructure/middleware"
	"github.com/ahrav/go-compass/infrastructure/scoring"
	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/logging"
	"github.com/ahrav/go-compass/internal/testutils"
)

type engineHarness struct {
	engine   *Engine
	recorder *tracetest.SpanRecorder
	metrics  *middleware.PrometheusMetrics
	registry *prometheus.Registry
	logs     *bytes.Buffer
}

func newEngineHarness(t *testing.T, profile Profile, opts ...EngineOption) *engineHarness {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	reg := prometheus.NewRegistry()
	metrics := middleware.NewPrometheusMetrics(reg)
	logs := &bytes.Buffer{}

	all := append([]EngineOption{
		WithTracerProvider(tp),
		WithMetrics(metrics),
		WithLogger(logging.New("debug", "text", logs)),
	}, opts...)

	engine, err := NewEngine(profile, all...)
	require.NoError(t, err)

	return &engineHarness{engine: engine, recorder: recorder, metrics: metrics, registry: reg, logs: logs}
}

func spanNames(recorder *tracetest.SpanRecorder) []string {
	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func TestNewEngine(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e, err := NewEngine(CurrentProfile())
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxWorkers, e.maxWorkers)
		assert.Equal(t, ProfileCurrent, e.Profile().Name)
		assert.Equal(t, scoring.CurrentKernelConfig(), e.Kernel().Config())
	})

	t.Run("non-positive worker limit falls back", func(t *testing.T) {
		e, err := NewEngine(LegacyProfile(), WithMaxWorkers(0))
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxWorkers, e.maxWorkers)
	})

	t.Run("records worker gauge", func(t *testing.T) {
		h := newEngineHarness(t, LegacyProfile(), WithMaxWorkers(3))
		assert.Equal(t, 3, h.engine.maxWorkers)
		assert.Equal(t, 1, testutil.CollectAndCount(h.registry, "compass_state"))
	})

	t.Run("invalid profile", func(t *testing.T) {
		_, err := NewEngine(Profile{Name: "broken"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidScale)
	})
}

func TestEngine_ProximityAndCompare(t *testing.T) {
	h := newEngineHarness(t, CurrentProfile())
	a := domain.FromFloats(map[string]float64{"0": 2, "1": 1})
	b := domain.FromFloats(map[string]float64{"0": -2, "1": -1})

	score := h.engine.Proximity(context.Background(), a, b)
	assert.Equal(t, h.engine.Kernel().Proximity(a, b), score)
	v, ok := score.Value()
	require.True(t, ok)
	assert.InDelta(t, 0.25, v, 1e-12)

	cmp := h.engine.Compare(context.Background(), a, b)
	assert.Equal(t, []string{"0", "1"}, cmp.Statements)
	assert.Equal(t, score, cmp.Score)

	assert.Equal(t, []string{"Comparator.Compare", "Comparator.Compare"}, spanNames(h.recorder))
	assert.Equal(t, 2.0, testutil.ToFloat64(comparisonsCounter(t, h, "known")))
}

// registered returns the collector already registered under the same
// descriptor as vec.
func registered[T prometheus.Collector](t *testing.T, h *engineHarness, vec T) T {
	t.Helper()
	var are prometheus.AlreadyRegisteredError
	require.ErrorAs(t, h.registry.Register(vec), &are)
	return are.ExistingCollector.(T)
}

func comparisonsCounter(t *testing.T, h *engineHarness, outcome string) prometheus.Collector {
	t.Helper()
	vec := registered(t, h, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compass",
		Name:      middleware.MetricComparisons,
		Help:      "Total number of position comparisons by outcome.",
	}, []string{middleware.LabelProfile, middleware.LabelOutcome}))
	return vec.WithLabelValues(h.engine.Profile().Name, outcome)
}

func operationsCounter(t *testing.T, h *engineHarness, operation, status string) prometheus.Collector {
	t.Helper()
	vec := registered(t, h, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compass",
		Name:      "operations_total",
		Help:      "Total number of engine operations by status.",
	}, []string{"operation", middleware.LabelStatus, middleware.LabelProfile}))
	return vec.WithLabelValues(operation, status, h.engine.Profile().Name)
}

// TestEngine_ProximityMap_MatchesSequential verifies the concurrent map
// equals the sequential aggregate for every worker limit.
func TestEngine_ProximityMap_MatchesSequential(t *testing.T) {
	gen := testutils.NewPositionGenerator(domain.DefaultScale(), 20, 7).WithGaps(0.2, 0.05)
	voter := gen.Next()
	counterparts := make(map[string]domain.Positions)
	for _, key := range []string{"green", "red", "blue", "10", "2", "yellow", "purple"} {
		counterparts[key] = gen.Next()
	}
	weights := map[string]float64{"green": 1.5, "2": 0}

	for _, profile := range []Profile{LegacyProfile(), CurrentProfile()} {
		kernel, err := profile.NewKernel()
		require.NoError(t, err)
		want, err := scoring.ProximityMap(kernel, voter, counterparts, weights)
		require.NoError(t, err)

		for _, workers := range []int{1, 2, 16} {
			h := newEngineHarness(t, profile, WithMaxWorkers(workers))
			got, err := h.engine.ProximityMap(context.Background(), voter, counterparts, weights)
			require.NoError(t, err)
			assert.Equal(t, want, got, "profile %s, workers %d", profile.Name, workers)
		}
	}
}

func TestEngine_ProximityMap_ProfileWeights(t *testing.T) {
	profile := LegacyProfile()
	profile.Weights = map[string]float64{"a": 0.5}
	h := newEngineHarness(t, profile)

	voter := domain.FromFloats(map[string]float64{"0": 2})
	counterparts := map[string]domain.Positions{
		"a": domain.FromFloats(map[string]float64{"0": 2}),
		"b": domain.FromFloats(map[string]float64{"0": 2}),
	}

	got, err := h.engine.ProximityMap(context.Background(), voter, counterparts, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Known(0.5), got["a"])
	assert.Equal(t, domain.Known(1), got["b"])

	// An explicit empty map overrides the profile weights.
	got, err = h.engine.ProximityMap(context.Background(), voter, counterparts, map[string]float64{})
	require.NoError(t, err)
	assert.Equal(t, domain.Known(1), got["a"])
}

func TestEngine_ProximityMap_Errors(t *testing.T) {
	h := newEngineHarness(t, CurrentProfile())
	voter := domain.FromFloats(map[string]float64{"0": 1})
	counterparts := map[string]domain.Positions{"a": voter}

	_, err := h.engine.ProximityMap(context.Background(), voter, counterparts, map[string]float64{"a": -1})
	assert.ErrorIs(t, err, scoring.ErrInvalidWeight)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.engine.ProximityMap(ctx, voter, counterparts, nil)
	assert.ErrorIs(t, err, context.Canceled)

	var failed int
	for _, s := range h.recorder.Ended() {
		if s.Name() == "Engine.ProximityMap" {
			assert.Equal(t, codes.Error, s.Status().Code)
			failed++
		}
	}
	assert.Equal(t, 2, failed)
	assert.Equal(t, 2.0, testutil.ToFloat64(operationsCounter(t, h, "proximity_map", "error")))
}

func TestEngine_ProximityMix(t *testing.T) {
	profile := CurrentProfile()
	profile.MaxRatio = 0.5
	h := newEngineHarness(t, profile)

	a := domain.FromFloats(map[string]float64{"0": 2, "1": 2})
	b1 := domain.FromFloats(map[string]float64{"0": 2, "1": 2})
	b2 := domain.FromFloats(map[string]float64{"0": -2, "1": -2})

	want, err := scoring.ProximityMix(h.engine.Kernel(), a, b1, 0.5, b2)
	require.NoError(t, err)
	got, err := h.engine.ProximityMix(context.Background(), a, b1, b2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, domain.Known(0.5), got)

	_, err = h.engine.ProximityMixRatio(context.Background(), a, b1, 1.5, b2)
	assert.ErrorIs(t, err, scoring.ErrInvalidRatio)
}

func TestEngine_Averages(t *testing.T) {
	h := newEngineHarness(t, LegacyProfile())
	a := domain.FromFloats(map[string]float64{"0": 2})
	b := domain.FromFloats(map[string]float64{"0": -2})

	assert.Equal(t, scoring.Average(a, b), h.engine.Average(a, b))

	// Divides by the number of sets, not the weight total.
	avg, err := h.engine.WeightedAverage([]float64{3, 1}, a, b)
	require.NoError(t, err)
	v, ok := avg["0"].Value()
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12)

	_, err = h.engine.WeightedAverage([]float64{1}, a, b)
	assert.ErrorIs(t, err, domain.ErrArityMismatch)
	assert.Contains(t, h.logs.String(), "weighted average rejected")
	assert.Equal(t, 1.0, testutil.ToFloat64(operationsCounter(t, h, "weighted_average", "rejected")))
}

func TestEngine_Match(t *testing.T) {
	profile := CurrentProfile()
	profile.Scale = domain.PartyScale()

	t.Run("scores valid input", func(t *testing.T) {
		h := newEngineHarness(t, profile)
		voter := domain.FromFloats(map[string]float64{"0": 2, "1": 1})
		candidates := map[string]domain.Positions{
			"same":     domain.FromFloats(map[string]float64{"0": 2, "1": 1}),
			"opposite": domain.FromFloats(map[string]float64{"0": -2, "1": -1}),
		}

		scores, err := h.engine.Match(context.Background(), voter, candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.Known(1), scores["same"])
		assert.Equal(t, domain.Known(0.25), scores["opposite"])
		assert.Equal(t, 1.0, testutil.ToFloat64(operationsCounter(t, h, "match", "success")))
	})

	t.Run("reports every invalid entity", func(t *testing.T) {
		h := newEngineHarness(t, profile)
		voter := domain.FromFloats(map[string]float64{"0": 3})
		candidates := map[string]domain.Positions{
			"fine":    domain.FromFloats(map[string]float64{"0": 1}),
			"neutral": domain.FromFloats(map[string]float64{"0": 0}),
		}

		scores, err := h.engine.Match(context.Background(), voter, candidates, nil)
		require.Error(t, err)
		assert.Nil(t, scores)

		joined, ok := err.(interface{ Unwrap() []error })
		require.True(t, ok)

		var entities []string
		for _, e := range joined.Unwrap() {
			var verr *domain.ValidationError
			require.ErrorAs(t, e, &verr)
			entities = append(entities, verr.Entity)
		}
		// The neutral candidate fails both the legal-stance and the
		// side-taking check.
		assert.Equal(t, []string{"voter", "neutral", "neutral"}, entities)
		assert.Contains(t, err.Error(), "Expected position 3 to be one of [-2,-1,1,2]")
		assert.Contains(t, err.Error(), "Expected position to not be 0")

		assert.Contains(t, h.logs.String(), "match input rejected")
		assert.Contains(t, h.logs.String(), "error=")
		assert.Equal(t, 1.0, testutil.ToFloat64(operationsCounter(t, h, "match", "rejected")))
		assert.NotContains(t, spanNames(h.recorder), "Engine.ProximityMap")
	})
}

// TestEngine_SpanParenting verifies comparator spans nest under the engine
// span that issued them.
func TestEngine_SpanParenting(t *testing.T) {
	h := newEngineHarness(t, LegacyProfile(), WithMaxWorkers(2))
	voter := domain.FromFloats(map[string]float64{"0": 1})
	counterparts := map[string]domain.Positions{
		"a": domain.FromFloats(map[string]float64{"0": 1}),
		"b": domain.FromFloats(map[string]float64{"0": -1}),
	}

	_, err := h.engine.ProximityMap(context.Background(), voter, counterparts, nil)
	require.NoError(t, err)

	var parent sdktrace.ReadOnlySpan
	var children []sdktrace.ReadOnlySpan
	for _, s := range h.recorder.Ended() {
		switch s.Name() {
		case "Engine.ProximityMap":
			parent = s
		case "Comparator.Compare":
			children = append(children, s)
		}
	}
	require.NotNil(t, parent)
	require.Len(t, children, 2)
	for _, c := range children {
		assert.Equal(t, parent.SpanContext().SpanID(), c.Parent().SpanID())
	}
}

func BenchmarkEngine_ProximityMap(b *testing.B) {
	gen := testutils.NewPositionGeneratorDefault()
	voter := gen.Next()
	counterparts := make(map[string]domain.Positions, 40)
	for i, ps := range gen.NextN(40) {
		counterparts[i] = ps
	}

	engine, err := NewEngine(CurrentProfile())
	require.NoError(b, err)
	ctx := context.Background()

	for b.Loop() {
		if _, err := engine.ProximityMap(ctx, voter, counterparts, nil); err != nil {
			b.Fatal(err)
		}
	}
}
