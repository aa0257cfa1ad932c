package calibration

import (
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/drift"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/forecast"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/kalman"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/latent"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/metrics"
)

// #region config

// Config holds every tunable for one session. Immutable once a
// session is constructed.
type Config struct {
	// WindowSize bounds the observation history.
	WindowSize int `yaml:"window_size"`

	// Kalman noise model.
	ProcessNoiseStd     float64 `yaml:"process_noise_std"`
	MeasurementNoiseStd float64 `yaml:"measurement_noise_std"`

	// Intervention policy.
	InterventionThreshold  float64 `yaml:"intervention_threshold"`
	InterventionConfidence float64 `yaml:"intervention_confidence"`
	CooldownSteps          int     `yaml:"cooldown_steps"`
	// RecoveryWindow is how many cycles an intervention has to pull
	// delta back under the threshold before it is scored ineffective.
	RecoveryWindow int `yaml:"recovery_window"`

	// Drift detection baseline and sensitivity.
	BaselineReliability float64 `yaml:"baseline_reliability"`
	BaselineStd         float64 `yaml:"baseline_std"`
	EpsilonFactor       float64 `yaml:"epsilon_factor"`
	HFactor             float64 `yaml:"h_factor"`
	// RecalibrationSpan is how many recent reliability samples feed
	// the new baseline after a detection.
	RecalibrationSpan int `yaml:"recalibration_span"`

	// Forecasting.
	EnablePredictive bool `yaml:"enable_predictive"`
	ForecastHorizon  int  `yaml:"forecast_horizon"`
	ForecastInterval int  `yaml:"forecast_interval"`

	// Latent mapping weights.
	Latent latent.Config `yaml:"latent"`
	// Latent-to-noise inflation weights (w_L, w_E, w_U).
	LoadWeight      float64 `yaml:"load_weight"`
	ShiftWeight     float64 `yaml:"shift_weight"`
	ExpertiseWeight float64 `yaml:"expertise_weight"`
}

// DefaultConfig returns the standard session tuning.
func DefaultConfig() Config {
	return Config{
		WindowSize:             20,
		ProcessNoiseStd:        0.05,
		MeasurementNoiseStd:    0.1,
		InterventionThreshold:  0.15,
		InterventionConfidence: 0.85,
		CooldownSteps:          10,
		RecoveryWindow:         10,
		BaselineReliability:    0.85,
		BaselineStd:            0.05,
		EpsilonFactor:          0.5,
		HFactor:                3.0,
		RecalibrationSpan:      10,
		EnablePredictive:       true,
		ForecastHorizon:        10,
		ForecastInterval:       5,
		Latent:                 latent.DefaultConfig(),
		LoadWeight:             0.5,
		ShiftWeight:            1.0,
		ExpertiseWeight:        0.5,
	}
}

// Validate checks structural constraints. Component constructors
// recheck their own slices of the config.
func (c Config) Validate() error {
	switch {
	case c.WindowSize <= 0:
		return &ConfigError{Param: "window_size", Reason: "must be positive"}
	case c.InterventionThreshold <= 0:
		return &ConfigError{Param: "intervention_threshold", Reason: "must be positive"}
	case c.InterventionConfidence <= 0 || c.InterventionConfidence >= 1:
		return &ConfigError{Param: "intervention_confidence", Reason: "must be in (0,1)"}
	case c.CooldownSteps < 0:
		return &ConfigError{Param: "cooldown_steps", Reason: "must be non-negative"}
	case c.ForecastHorizon <= 0:
		return &ConfigError{Param: "forecast_horizon", Reason: "must be positive"}
	case c.ForecastInterval <= 0:
		return &ConfigError{Param: "forecast_interval", Reason: "must be positive"}
	case c.RecalibrationSpan <= 0:
		return &ConfigError{Param: "recalibration_span", Reason: "must be positive"}
	case c.RecoveryWindow <= 0:
		return &ConfigError{Param: "recovery_window", Reason: "must be positive"}
	}
	return nil
}

// #endregion config

// #region derived

func (c Config) kalmanConfig() kalman.Config {
	kc := kalman.DefaultConfig()
	kc.ProcessNoiseStd = c.ProcessNoiseStd
	kc.MeasurementNoiseStd = c.MeasurementNoiseStd
	return kc
}

func (c Config) driftConfig() drift.Config {
	return drift.Config{
		Mean:          c.BaselineReliability,
		Std:           c.BaselineStd,
		EpsilonFactor: c.EpsilonFactor,
		HFactor:       c.HFactor,
		WindowSize:    maxInt(c.WindowSize, 50),
	}
}

func (c Config) forecastConfig() forecast.Config {
	return forecast.Config{
		Horizon:         c.ForecastHorizon,
		Threshold:       c.InterventionThreshold,
		Confidence:      c.InterventionConfidence,
		Alpha:           0.05,
		LoadWeight:      c.LoadWeight,
		ShiftWeight:     c.ShiftWeight,
		ExpertiseWeight: c.ExpertiseWeight,
	}
}

func (c Config) metricsConfig() metrics.Config {
	mc := metrics.DefaultConfig()
	mc.Threshold = c.InterventionThreshold
	mc.RecoveryWindow = c.RecoveryWindow
	return mc
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// #endregion derived
