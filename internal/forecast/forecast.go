// Package forecast rolls the calibration belief forward to anticipate
// miscalibration before it is observed.
package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/kalman"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/latent"
)

// stdFloor keeps the per-step standard deviation away from zero so
// tail probabilities stay defined.
const stdFloor = 1e-6

// #region config

// Config tunes the forecaster. The latent weights scale how much the
// current context inflates forecast uncertainty; they are tunable, not
// contractual.
type Config struct {
	// Horizon is the default number of steps to roll forward.
	Horizon int `yaml:"horizon"`
	// Threshold is the delta level considered miscalibrated.
	Threshold float64 `yaml:"threshold"`
	// Confidence is the exceedance probability required before a step
	// is flagged as an intervention trigger.
	Confidence float64 `yaml:"confidence"`
	// Alpha is the default prediction-interval significance.
	Alpha float64 `yaml:"alpha"`

	// LoadWeight (w_L) inflates noise under high cognitive load.
	LoadWeight float64 `yaml:"load_weight"`
	// ShiftWeight (w_E) inflates noise on a context shift.
	ShiftWeight float64 `yaml:"shift_weight"`
	// ExpertiseWeight (w_U) inflates noise for low expertise.
	ExpertiseWeight float64 `yaml:"expertise_weight"`
}

// DefaultConfig returns the standard forecaster tuning.
func DefaultConfig() Config {
	return Config{
		Horizon:         10,
		Threshold:       0.15,
		Confidence:      0.85,
		Alpha:           0.05,
		LoadWeight:      0.5,
		ShiftWeight:     1.0,
		ExpertiseWeight: 0.5,
	}
}

// ConfigError reports an invalid forecaster parameter.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "forecast: bad " + e.Param + ": " + e.Reason
}

// #endregion config

// #region types

// Forecast is a k-step-ahead projection of the calibration delta.
// Produced on demand, never stored by the engine.
type Forecast struct {
	Horizon int `json:"horizon"`
	// DeltaMean[i] is the expected |trust - reliability| at step i+1.
	DeltaMean []float64 `json:"delta_mean"`
	// DeltaStd[i] is a first-order (delta-method) approximation of the
	// spread of trust - reliability, used as the spread of its absolute
	// value. Not exact for deltas far from zero.
	DeltaStd []float64 `json:"delta_std"`
	// Lower/Upper bound the delta at the configured alpha.
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
	// Probabilities[i] is P(delta at step i+1 exceeds the threshold).
	Probabilities []float64 `json:"miscalibration_probabilities"`
	// Trigger is the first step (0-based) whose exceedance probability
	// reaches the confidence level, or -1.
	Trigger int `json:"intervention_trigger"`
	// NoiseScale is the latent-context multiplier applied to process
	// noise while rolling forward.
	NoiseScale float64 `json:"noise_scale"`
}

// Triggered reports whether any step within the horizon qualifies.
func (fc Forecast) Triggered() bool { return fc.Trigger >= 0 }

// #endregion types

// #region engine

// Engine derives delta forecasts from a filter's belief.
type Engine struct {
	config Config
}

// NewEngine creates a forecaster.
func NewEngine(config Config) (*Engine, error) {
	if config.Horizon <= 0 {
		return nil, &ConfigError{Param: "Horizon", Reason: "must be positive"}
	}
	if config.Threshold <= 0 {
		return nil, &ConfigError{Param: "Threshold", Reason: "must be positive"}
	}
	if config.Confidence <= 0 || config.Confidence >= 1 {
		return nil, &ConfigError{Param: "Confidence", Reason: "must be in (0,1)"}
	}
	if config.Alpha <= 0 || config.Alpha >= 1 {
		return nil, &ConfigError{Param: "Alpha", Reason: "must be in (0,1)"}
	}
	return &Engine{config: config}, nil
}

// Forecast rolls the filter belief k steps ahead (the configured
// horizon when k <= 0). Latent context inflates the effective process
// noise multiplicatively:
//
//	Q' = Q * (1 + wL*load + wE*shift + wU*(1-expertise))
//
// widening the projected uncertainty under load, context shifts, or
// low expertise. The filter itself is not mutated.
func (e *Engine) Forecast(f *kalman.Filter, vars latent.Variables, k int) Forecast {
	if k <= 0 {
		k = e.config.Horizon
	}

	scale := 1 +
		e.config.LoadWeight*vars.CognitiveLoad +
		e.config.ShiftWeight*vars.Indicator() +
		e.config.ExpertiseWeight*(1-vars.Expertise)

	means, covs := f.Forecast(k, scale)

	fc := Forecast{
		Horizon:       k,
		DeltaMean:     make([]float64, k),
		DeltaStd:      make([]float64, k),
		Probabilities: make([]float64, k),
		Trigger:       -1,
		NoiseScale:    scale,
	}

	norm := distuv.UnitNormal
	for i := 0; i < k; i++ {
		fc.DeltaMean[i] = math.Abs(means[i][0] - means[i][1])

		// Var(T - R) = P00 + P11 - 2*P01, first-order for |T - R|.
		v := covs[i].At(0, 0) + covs[i].At(1, 1) - 2*covs[i].At(0, 1)
		fc.DeltaStd[i] = math.Sqrt(math.Max(v, stdFloor*stdFloor))

		p := norm.Survival((e.config.Threshold - fc.DeltaMean[i]) / fc.DeltaStd[i])
		fc.Probabilities[i] = p
		if fc.Trigger < 0 && p >= e.config.Confidence {
			fc.Trigger = i
		}
	}

	fc.Lower, fc.Upper = fc.PredictionIntervals(e.config.Alpha)
	return fc
}

// #endregion engine

// #region intervals

// PredictionIntervals returns normal-approximation bounds at the given
// significance. The bounds always bracket the mean, and the lower
// bound is floored at zero since delta is non-negative.
func (fc Forecast) PredictionIntervals(alpha float64) (lower, upper []float64) {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	z := distuv.UnitNormal.Quantile(1 - alpha/2)

	lower = make([]float64, len(fc.DeltaMean))
	upper = make([]float64, len(fc.DeltaMean))
	for i := range fc.DeltaMean {
		lower[i] = math.Max(0, fc.DeltaMean[i]-z*fc.DeltaStd[i])
		upper[i] = fc.DeltaMean[i] + z*fc.DeltaStd[i]
	}
	return lower, upper
}

// #endregion intervals
