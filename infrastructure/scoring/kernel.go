package scoring

import (
	"fmt"
	"math"

	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/ports"
)

var _ ports.Comparator = (*Kernel)(nil)

// defaultNeutralBand is the half-width of the "close to neutral" band used
// by the current scoring revision.
const defaultNeutralBand = 0.3

// NearNeutralRule configures the per-statement difference.
type NearNeutralRule struct {
	// Mode is "none" for the plain absolute difference or "amplify_xor".
	Mode NearNeutralMode `yaml:"mode" json:"mode" validate:"required,oneof=none amplify_xor"`

	// Band is the half-width around the midpoint within which a stance is
	// considered close to neutral. Ignored when Mode is "none".
	Band float64 `yaml:"band" json:"band" validate:"min=0"`

	// Cap bounds an amplified difference. Zero means the scale's maximum
	// distance; larger than that is rejected. Ignored when Mode is "none".
	Cap float64 `yaml:"cap" json:"cap" validate:"min=0"`
}

// NoNearNeutral returns the plain absolute-difference rule.
func NoNearNeutral() NearNeutralRule {
	return NearNeutralRule{Mode: NearNeutralNone}
}

// AmplifyXor returns the near-neutral amplification rule. A cap of 0 means
// the scale's maximum distance.
func AmplifyXor(band, limit float64) NearNeutralRule {
	return NearNeutralRule{Mode: NearNeutralAmplifyXor, Band: band, Cap: limit}
}

// KernelConfig selects the scoring revision. Both fields must be set
// explicitly; there is no implicit default policy.
type KernelConfig struct {
	// EmptyOverlap decides the result when no statement is commonly answered.
	EmptyOverlap EmptyOverlapPolicy `yaml:"empty_overlap" json:"empty_overlap" validate:"required,oneof=zero_score unknowable"`

	// NearNeutral decides how per-statement differences are computed.
	NearNeutral NearNeutralRule `yaml:"near_neutral" json:"near_neutral"`
}

// LegacyKernelConfig reproduces the first scoring revision: plain absolute
// differences, 0 for an empty overlap.
func LegacyKernelConfig() KernelConfig {
	return KernelConfig{EmptyOverlap: ZeroScore, NearNeutral: NoNearNeutral()}
}

// CurrentKernelConfig is the latest scoring revision: near-neutral XOR
// amplification within ±0.3 of the midpoint, unknowable for an empty
// overlap.
func CurrentKernelConfig() KernelConfig {
	return KernelConfig{EmptyOverlap: UnknowableScore, NearNeutral: AmplifyXor(defaultNeutralBand, 0)}
}

// Kernel computes the normalized proximity between two sets of positions
// over the statements both sides answered.
//
// Algorithm: both sides are normalized on the scale (neutral and missing
// answers become unanswered), the common-statement set S is taken in
// canonical order, per-statement differences are summed, and the result is
// (|S|·maxDistance − sum) / (|S|·maxDistance).
//
// Symmetry: Proximity(a, b) == Proximity(b, a) bit for bit, since the
// difference is symmetric and S is summed in the same order either way.
//
// Concurrency: a Kernel is immutable after construction and safe for
// concurrent use.
type Kernel struct {
	scale  domain.Scale
	config KernelConfig
	// ampCap is the resolved amplification cap.
	ampCap float64
}

// NewKernel creates a Kernel for the given scale and scoring revision.
// Returns an error if the scale is unset, the configuration fails
// validation, or the amplification cap exceeds the scale's maximum
// distance (which would break the [0,1] bound).
func NewKernel(scale domain.Scale, config KernelConfig) (*Kernel, error) {
	if scale.IsZero() {
		return nil, fmt.Errorf("%w: kernel requires a scale", domain.ErrInvalidScale)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	capDistance := scale.MaxDistance()
	if config.NearNeutral.Mode == NearNeutralAmplifyXor && config.NearNeutral.Cap != 0 {
		if config.NearNeutral.Cap > scale.MaxDistance() {
			return nil, fmt.Errorf("%w: near-neutral cap %v exceeds scale max distance %v",
				domain.ErrInvalidConfiguration, config.NearNeutral.Cap, scale.MaxDistance())
		}
		capDistance = config.NearNeutral.Cap
	}

	return &Kernel{scale: scale, config: config, ampCap: capDistance}, nil
}

// Scale returns the kernel's stance scale.
func (k *Kernel) Scale() domain.Scale { return k.scale }

// Config returns the kernel's scoring revision.
func (k *Kernel) Config() KernelConfig { return k.config }

// EmptyScore implements ports.Comparator.
func (k *Kernel) EmptyScore() domain.Score {
	if k.config.EmptyOverlap == ZeroScore {
		return domain.Known(0)
	}
	return domain.Unknowable()
}

// Difference returns the per-statement distance between stances a and b.
func (k *Kernel) Difference(a, b float64) float64 {
	d := math.Abs(a - b)
	if k.config.NearNeutral.Mode != NearNeutralAmplifyXor {
		return d
	}
	if k.closeToNeutral(a) != k.closeToNeutral(b) {
		// Amplification never shrinks the plain gap.
		return math.Max(d, math.Min(2*d, k.ampCap))
	}
	return d
}

func (k *Kernel) closeToNeutral(v float64) bool {
	return math.Abs(v-k.scale.Midpoint()) <= k.config.NearNeutral.Band
}

// Compare implements ports.Comparator.
func (k *Kernel) Compare(a, b domain.Positions) domain.Comparison {
	na, nb := k.scale.Normalize(a), k.scale.Normalize(b)
	statements := domain.CommonStatements(na, nb)
	if len(statements) == 0 {
		return domain.Comparison{Statements: statements, Score: k.EmptyScore()}
	}

	var sum float64
	for _, id := range statements {
		// Both values are present: statements is the answered intersection.
		va, _ := na[id].Value()
		vb, _ := nb[id].Value()
		sum += k.Difference(va, vb)
	}

	maxPossible := float64(len(statements)) * k.scale.MaxDistance()
	proximity := (maxPossible - sum) / maxPossible

	return domain.Comparison{
		Statements:  statements,
		Distance:    sum,
		MaxDistance: maxPossible,
		Score:       domain.Known(clamp01(proximity)),
	}
}

// Proximity implements ports.Comparator.
func (k *Kernel) Proximity(a, b domain.Positions) domain.Score {
	return k.Compare(a, b).Score
}

// Distance returns the complement of Proximity over the same common set.
func (k *Kernel) Distance(a, b domain.Positions) domain.Score {
	return k.Proximity(a, b).Complement()
}

// ProximityMap scores a against every entry of counterparts.
// See the package-level ProximityMap.
func (k *Kernel) ProximityMap(
	a domain.Positions,
	counterparts map[string]domain.Positions,
	weights map[string]float64,
) (map[string]domain.Score, error) {
	return ProximityMap(k, a, counterparts, weights)
}

// ProximityMix blends a's proximity to b1 and b2. See the package-level
// ProximityMix.
func (k *Kernel) ProximityMix(a, b1 domain.Positions, maxRatio float64, b2 domain.Positions) (domain.Score, error) {
	return ProximityMix(k, a, b1, maxRatio, b2)
}

// clamp01 keeps scores in range for stances outside the scale, such as
// weighted averages.
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
