package scoring

import (
	"maps"
	"math"
	"slices"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/testutils"
)

// pos builds positions from floats; NaN marks an explicit null.
func pos(m map[string]float64) domain.Positions {
	return domain.FromFloats(m)
}

func mustKernel(t testing.TB, scale domain.Scale, config KernelConfig) *Kernel {
	t.Helper()
	k, err := NewKernel(scale, config)
	require.NoError(t, err)
	return k
}

func assertScore(t *testing.T, expected float64, got domain.Score) {
	t.Helper()
	v, ok := got.Value()
	require.True(t, ok, "expected a numeric score, got %s", got)
	assert.InDelta(t, expected, v, 1e-12)
}

// TestNewKernel tests configuration validation at construction time.
func TestNewKernel(t *testing.T) {
	tests := []struct {
		name          string
		scale         domain.Scale
		config        KernelConfig
		expectedError string
		expectedIs    error
	}{
		{name: "legacy", scale: domain.DefaultScale(), config: LegacyKernelConfig()},
		{name: "current", scale: domain.DefaultScale(), config: CurrentKernelConfig()},
		{name: "explicit cap", scale: domain.DefaultScale(), config: KernelConfig{
			EmptyOverlap: UnknowableScore, NearNeutral: AmplifyXor(0.3, 4),
		}},
		{
			name:       "zero scale",
			scale:      domain.Scale{},
			config:     LegacyKernelConfig(),
			expectedIs: domain.ErrInvalidScale,
		},
		{
			name:          "missing empty-overlap policy",
			scale:         domain.DefaultScale(),
			config:        KernelConfig{NearNeutral: NoNearNeutral()},
			expectedError: "configuration validation failed",
		},
		{
			name:          "unknown near-neutral mode",
			scale:         domain.DefaultScale(),
			config:        KernelConfig{EmptyOverlap: ZeroScore, NearNeutral: NearNeutralRule{Mode: "double"}},
			expectedError: "configuration validation failed",
		},
		{
			name:          "negative band",
			scale:         domain.DefaultScale(),
			config:        KernelConfig{EmptyOverlap: ZeroScore, NearNeutral: AmplifyXor(-0.1, 0)},
			expectedError: "configuration validation failed",
		},
		{
			name:       "cap beyond max distance",
			scale:      domain.DefaultScale(),
			config:     KernelConfig{EmptyOverlap: ZeroScore, NearNeutral: AmplifyXor(0.3, 5)},
			expectedIs: domain.ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewKernel(tt.scale, tt.config)
			switch {
			case tt.expectedIs != nil:
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedIs)
				assert.Nil(t, k)
			case tt.expectedError != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Nil(t, k)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.config, k.Config())
			}
		})
	}
}

// TestKernel_Proximity tests the proximity formula on hand-computed cases.
func TestKernel_Proximity(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name     string
		a, b     map[string]float64
		expected float64
	}{
		{
			name:     "neutral counterpart answer is ignored",
			a:        map[string]float64{"0": 1, "1": -1},
			b:        map[string]float64{"0": 0, "1": -2},
			expected: 0.75,
		},
		{
			name:     "left missing",
			a:        map[string]float64{"0": -2, "1": 1},
			b:        map[string]float64{"0": 1, "1": 1, "2": 2},
			expected: 5.0 / 8.0,
		},
		{
			name:     "right not answered",
			a:        map[string]float64{"0": -2, "1": 1, "2": 2},
			b:        map[string]float64{"0": 1, "1": 1, "2": 0},
			expected: 5.0 / 8.0,
		},
		{
			name:     "right null",
			a:        map[string]float64{"0": -2, "1": 1, "2": 2},
			b:        map[string]float64{"0": 1, "1": 1, "2": nan},
			expected: 5.0 / 8.0,
		},
		{
			name:     "both sides missing different statements",
			a:        map[string]float64{"0": -2, "1": 1, "3": 2},
			b:        map[string]float64{"0": 1, "1": 1, "2": 2},
			expected: 5.0 / 8.0,
		},
		{
			name:     "identical",
			a:        map[string]float64{"0": 2, "1": -1, "2": 1},
			b:        map[string]float64{"0": 2, "1": -1, "2": 1},
			expected: 1,
		},
		{
			name:     "opposite extremes",
			a:        map[string]float64{"0": 2, "1": -2},
			b:        map[string]float64{"0": -2, "1": 2},
			expected: 0,
		},
		{
			name:     "off-scale stances are clamped",
			a:        map[string]float64{"0": 5},
			b:        map[string]float64{"0": -5},
			expected: 0,
		},
	}

	for _, config := range []KernelConfig{LegacyKernelConfig(), CurrentKernelConfig()} {
		k := mustKernel(t, domain.DefaultScale(), config)
		for _, tt := range tests {
			t.Run(string(config.EmptyOverlap)+"/"+tt.name, func(t *testing.T) {
				assertScore(t, tt.expected, k.Proximity(pos(tt.a), pos(tt.b)))
				assertScore(t, tt.expected, k.Proximity(pos(tt.b), pos(tt.a)))
			})
		}
	}
}

// TestKernel_EmptyOverlap tests both empty-overlap policies. Missing,
// null and neutral answers must all produce the same empty result.
func TestKernel_EmptyOverlap(t *testing.T) {
	a := pos(map[string]float64{"0": 1, "1": -2})
	counterparts := map[string]domain.Positions{
		"empty map":    {},
		"nil map":      nil,
		"all null":     pos(map[string]float64{"0": math.NaN(), "1": math.NaN()}),
		"all neutral":  pos(map[string]float64{"0": 0, "1": 0}),
		"disjoint ids": pos(map[string]float64{"2": 1, "3": 2}),
	}

	legacy := mustKernel(t, domain.DefaultScale(), LegacyKernelConfig())
	current := mustKernel(t, domain.DefaultScale(), CurrentKernelConfig())

	for name, b := range counterparts {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, domain.Known(0), legacy.Proximity(a, b))
			assert.True(t, current.Proximity(a, b).IsUnknowable())

			cmp := current.Compare(a, b)
			assert.Empty(t, cmp.Statements)
			assert.NotNil(t, cmp.Statements)
		})
	}

	assert.Equal(t, domain.Known(0), legacy.EmptyScore())
	assert.True(t, current.EmptyScore().IsUnknowable())
}

// TestKernel_NearNeutral tests XOR amplification on a scale whose neutral
// stance counts as an answer.
func TestKernel_NearNeutral(t *testing.T) {
	scale, err := domain.NewScale([]float64{-2, -1, 0, 1, 2}, false)
	require.NoError(t, err)

	tests := []struct {
		name     string
		config   KernelConfig
		a, b     float64
		expected float64
	}{
		{name: "plain difference", config: LegacyKernelConfig(), a: 0, b: 1, expected: 0.75},
		{name: "one side neutral doubles", config: CurrentKernelConfig(), a: 0, b: 1, expected: 0.5},
		{name: "both neutral", config: CurrentKernelConfig(), a: 0, b: 0, expected: 1},
		{name: "neither neutral", config: CurrentKernelConfig(), a: -1, b: 2, expected: 0.25},
		{name: "doubling capped at max distance", config: CurrentKernelConfig(), a: 0, b: 2, expected: 0},
		{
			name:     "explicit cap",
			config:   KernelConfig{EmptyOverlap: UnknowableScore, NearNeutral: AmplifyXor(0.3, 1.5)},
			a:        0,
			b:        1,
			expected: 0.625,
		},
		{
			name:     "cap below plain gap never shrinks it",
			config:   KernelConfig{EmptyOverlap: UnknowableScore, NearNeutral: AmplifyXor(0.3, 0.5)},
			a:        0,
			b:        2,
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := mustKernel(t, scale, tt.config)
			a := pos(map[string]float64{"0": tt.a})
			b := pos(map[string]float64{"0": tt.b})
			assertScore(t, tt.expected, k.Proximity(a, b))
			assertScore(t, tt.expected, k.Proximity(b, a))
		})
	}
}

// TestKernel_Compare tests the full comparison record.
func TestKernel_Compare(t *testing.T) {
	k := mustKernel(t, domain.DefaultScale(), LegacyKernelConfig())
	a := pos(map[string]float64{"10": 2, "2": 1, "0": -2, "x": 1})
	b := pos(map[string]float64{"10": -2, "2": 1, "0": -1, "y": 1})

	cmp := k.Compare(a, b)
	assert.Equal(t, []string{"0", "2", "10"}, cmp.Statements)
	assert.Equal(t, 5.0, cmp.Distance)
	assert.Equal(t, 12.0, cmp.MaxDistance)
	assertScore(t, 7.0/12.0, cmp.Score)
	assertScore(t, 5.0/12.0, k.Distance(a, b))
}

// TestKernel_Properties checks symmetry, range and identity on random input.
func TestKernel_Properties(t *testing.T) {
	for _, config := range []KernelConfig{LegacyKernelConfig(), CurrentKernelConfig()} {
		k := mustKernel(t, domain.DefaultScale(), config)

		t.Run(string(config.EmptyOverlap), func(t *testing.T) {
			symmetric := func(a, b testutils.QuickPositions) bool {
				return k.Proximity(domain.Positions(a), domain.Positions(b)) ==
					k.Proximity(domain.Positions(b), domain.Positions(a))
			}
			require.NoError(t, quick.Check(symmetric, &quick.Config{MaxCount: 1000}))

			inRange := func(a, b testutils.QuickPositions) bool {
				v, ok := k.Proximity(domain.Positions(a), domain.Positions(b)).Value()
				return !ok || (v >= 0 && v <= 1)
			}
			require.NoError(t, quick.Check(inRange, &quick.Config{MaxCount: 1000}))

			identity := func(a testutils.QuickPositions) bool {
				ps := domain.Positions(a)
				got := k.Proximity(ps, ps)
				if len(k.Scale().CommonStatements(ps, ps)) == 0 {
					return got == k.EmptyScore()
				}
				return got == domain.Known(1)
			}
			require.NoError(t, quick.Check(identity, &quick.Config{MaxCount: 1000}))
		})
	}
}

// TestKernel_ContinuousProperties checks symmetry, range and identity on
// values anywhere in [-2, 2], so near-neutral answers reach amplify_xor.
func TestKernel_ContinuousProperties(t *testing.T) {
	for _, config := range []KernelConfig{LegacyKernelConfig(), CurrentKernelConfig()} {
		k := mustKernel(t, domain.DefaultScale(), config)

		t.Run(string(config.EmptyOverlap), func(t *testing.T) {
			symmetric := func(a, b testutils.QuickContinuousPositions) bool {
				return k.Proximity(domain.Positions(a), domain.Positions(b)) ==
					k.Proximity(domain.Positions(b), domain.Positions(a))
			}
			require.NoError(t, quick.Check(symmetric, &quick.Config{MaxCount: 2000}))

			inRange := func(a, b testutils.QuickContinuousPositions) bool {
				v, ok := k.Proximity(domain.Positions(a), domain.Positions(b)).Value()
				return !ok || (v >= 0 && v <= 1)
			}
			require.NoError(t, quick.Check(inRange, &quick.Config{MaxCount: 2000}))

			identity := func(a testutils.QuickContinuousPositions) bool {
				ps := domain.Positions(a)
				got := k.Proximity(ps, ps)
				if len(k.Scale().CommonStatements(ps, ps)) == 0 {
					return got == k.EmptyScore()
				}
				return got == domain.Known(1)
			}
			require.NoError(t, quick.Check(identity, &quick.Config{MaxCount: 1000}))
		})
	}
}

// TestKernel_ContinuousReachesAmplification makes sure the continuous
// generator produces pairs that the current kernel amplifies.
func TestKernel_ContinuousReachesAmplification(t *testing.T) {
	k := mustKernel(t, domain.DefaultScale(), CurrentKernelConfig())
	gen := testutils.NewPositionGenerator(domain.DefaultScale(), 50, 17).WithContinuousValues()

	var amplified int
	for range 20 {
		a, b := gen.Next(), gen.Next()
		for _, id := range k.Scale().CommonStatements(a, b) {
			x, _ := a[id].Value()
			y, _ := b[id].Value()
			d := k.Difference(x, y)
			assert.Equal(t, d, k.Difference(y, x))
			if d > math.Abs(x-y) {
				amplified++
			}
		}
	}
	assert.Positive(t, amplified)
}

// Ideological blocks with fractional answers. Many sit inside the
// near-neutral band of the default scale.
var (
	leftBlock = map[string]float64{
		"3": -0.25, "8": -0.25, "16": -0.25, "23": 0.25, "38": -0.25,
		"42": -0.5, "63": -0.5, "64": 0.25, "71": -0.25, "142": -0.25,
		"222": -0.25, "391": 0.25, "411": -0.5, "432": -0.5, "442": 0.25,
	}
	centreBlock = map[string]float64{
		"3": 0.33, "8": -0.66, "16": 0.33, "23": -0.66, "38": -0.33,
		"42": 0.66, "63": -0.66, "64": 0.33, "71": 0.33, "142": 0.66,
		"222": 0.33, "391": -0.33, "411": -0.66, "432": 0.33, "442": 0.66,
	}
	rightBlock = map[string]float64{
		"3": 1, "8": 1, "16": -1, "23": 1, "38": -0.5,
		"42": 1, "63": -0.5, "64": -0.5, "71": -1, "142": -1,
		"222": -1, "391": -1, "411": -1, "432": 1, "442": -1,
	}
)

// TestKernel_BlockSymmetry scores random voters against each block in both
// directions.
func TestKernel_BlockSymmetry(t *testing.T) {
	tests := []struct {
		name      string
		block     map[string]float64
		amplified bool
	}{
		{name: "left", block: leftBlock, amplified: true},
		{name: "centre", block: centreBlock},
		{name: "right", block: rightBlock},
	}

	for _, tt := range tests {
		block := pos(tt.block)
		ids := slices.Sorted(maps.Keys(tt.block))

		for _, config := range []KernelConfig{LegacyKernelConfig(), CurrentKernelConfig()} {
			t.Run(tt.name+"/"+string(config.EmptyOverlap), func(t *testing.T) {
				k := mustKernel(t, domain.DefaultScale(), config)
				var amplified int
				for seed := range int64(25) {
					voter := testutils.NewPositionGenerator(domain.DefaultScale(), 0, seed).NextFor(ids)

					ab := k.Proximity(block, voter)
					assert.Equal(t, ab, k.Proximity(voter, block), "seed %d", seed)
					if v, ok := ab.Value(); ok {
						assert.True(t, v >= 0 && v <= 1, "seed %d: %v", seed, v)
					}

					for _, id := range k.Scale().CommonStatements(block, voter) {
						x, _ := block[id].Value()
						y, _ := voter[id].Value()
						if k.Difference(x, y) > math.Abs(x-y) {
							amplified++
						}
					}
				}
				expectAmplified := tt.amplified && config.NearNeutral.Mode == NearNeutralAmplifyXor
				assert.Equal(t, expectAmplified, amplified > 0)
			})
		}
	}
}

// TestKernel_ConcurrentUse runs the kernel from many goroutines.
func TestKernel_ConcurrentUse(t *testing.T) {
	k := mustKernel(t, domain.DefaultScale(), CurrentKernelConfig())
	gen := testutils.NewPositionGenerator(domain.DefaultScale(), 20, 42)
	voter := gen.Next()
	candidates := gen.NextN(50)

	expected, err := k.ProximityMap(voter, candidates, nil)
	require.NoError(t, err)

	done := make(chan map[string]domain.Score, 8)
	for range 8 {
		go func() {
			got, _ := k.ProximityMap(voter, candidates, nil)
			done <- got
		}()
	}
	for range 8 {
		assert.Equal(t, expected, <-done)
	}
}

func BenchmarkKernel_Proximity(b *testing.B) {
	k := mustKernel(b, domain.DefaultScale(), CurrentKernelConfig())
	gen := testutils.NewPositionGenerator(domain.DefaultScale(), testutils.DefaultStatementCount, 1)
	voter, party := gen.Next(), gen.Next()

	for b.Loop() {
		k.Proximity(voter, party)
	}
}
