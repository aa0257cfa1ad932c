// Package latent maps raw behavioral signals onto the four latent
// context variables used to modulate forecast uncertainty.
package latent

// Recognized signal keys. Unknown keys are ignored; missing keys
// default to a neutral midpoint so inference is total.
const (
	KeyDwellTime            = "dwell_time"
	KeyRelianceRatio        = "reliance_ratio"
	KeyQueryComplexity      = "query_complexity"
	KeyInteractionFrequency = "interaction_frequency"
	KeyOverrideRate         = "override_rate"
)

// #region types

// Variables holds the inferred latent context for one cycle.
// All continuous fields are in [0, 1]; ContextShift is a 0/1 indicator.
type Variables struct {
	TaskComplexity float64 `json:"task_complexity"`
	CognitiveLoad  float64 `json:"cognitive_load"`
	Expertise      float64 `json:"expertise"`
	ContextShift   bool    `json:"context_shift"`
}

// Indicator returns ContextShift as 0 or 1 for use in arithmetic.
func (v Variables) Indicator() float64 {
	if v.ContextShift {
		return 1
	}
	return 0
}

// Config holds the heuristic mapping weights. The mapping is a bounded
// linear combination of the recognized signals; the weights are tunable
// rather than contractual.
type Config struct {
	LoadDwellWeight      float64 `yaml:"load_dwell_weight"`
	LoadComplexityWeight float64 `yaml:"load_complexity_weight"`
	LoadFrequencyWeight  float64 `yaml:"load_frequency_weight"`

	ExpertiseRelianceWeight float64 `yaml:"expertise_reliance_weight"`
	ExpertiseOverrideWeight float64 `yaml:"expertise_override_weight"`

	// ContextShiftOverride is the override_rate level at or above
	// which a context shift is flagged.
	ContextShiftOverride float64 `yaml:"context_shift_override"`
	// ContextShiftFrequency flags a shift when interaction_frequency
	// departs from its midpoint by more than this much.
	ContextShiftFrequency float64 `yaml:"context_shift_frequency"`
}

// DefaultConfig returns the standard mapping weights.
func DefaultConfig() Config {
	return Config{
		LoadDwellWeight:         0.4,
		LoadComplexityWeight:    0.3,
		LoadFrequencyWeight:     0.3,
		ExpertiseRelianceWeight: 0.6,
		ExpertiseOverrideWeight: 0.4,
		ContextShiftOverride:    0.5,
		ContextShiftFrequency:   0.4,
	}
}

// #endregion types

// #region inference

// Inference computes latent variables from raw signals.
type Inference struct {
	config Config
}

// NewInference creates an Inference with the given mapping weights.
func NewInference(config Config) *Inference {
	return &Inference{config: config}
}

// Infer maps signals to latent variables. It is deterministic and
// total: it never fails, regardless of input, and every output is
// clamped to its valid range.
func (in *Inference) Infer(signals map[string]float64) Variables {
	dwell := signalOr(signals, KeyDwellTime, 0.5)
	reliance := signalOr(signals, KeyRelianceRatio, 0.5)
	complexity := signalOr(signals, KeyQueryComplexity, 0.5)
	frequency := signalOr(signals, KeyInteractionFrequency, 0.5)
	override := signalOr(signals, KeyOverrideRate, 0)

	c := in.config

	load := c.LoadDwellWeight*dwell +
		c.LoadComplexityWeight*complexity +
		c.LoadFrequencyWeight*frequency

	expertise := c.ExpertiseRelianceWeight*reliance +
		c.ExpertiseOverrideWeight*(1-override)

	shift := override >= c.ContextShiftOverride ||
		abs(frequency-0.5) > c.ContextShiftFrequency

	return Variables{
		TaskComplexity: clamp(complexity),
		CognitiveLoad:  clamp(load),
		Expertise:      clamp(expertise),
		ContextShift:   shift,
	}
}

// #endregion inference

// #region helpers

// signalOr clamps a present signal into [0, 1] or returns def.
func signalOr(signals map[string]float64, key string, def float64) float64 {
	v, ok := signals[key]
	if !ok || v != v { // missing or NaN
		return def
	}
	return clamp(v)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// #endregion helpers
