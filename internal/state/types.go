package state

import "time"

// #region trust-state
// TrustState is one immutable trust/reliability observation.
// Delta is always derived as |TrustLevel - Reliability|, never supplied.
type TrustState struct {
	Timestamp   time.Time          `json:"timestamp"`
	TrustLevel  float64            `json:"trust_level"`
	Reliability float64            `json:"reliability"`
	Delta       float64            `json:"delta"`
	Signals     map[string]float64 `json:"signals,omitempty"`
}
// #endregion trust-state

// #region statistics
// Statistics summarizes the current observation window.
// Slopes are least-squares trends over the window, per cycle.
type Statistics struct {
	Samples          int     `json:"samples"`
	MeanDelta        float64 `json:"mean_delta"`
	StdDelta         float64 `json:"std_delta"`
	MaxDelta         float64 `json:"max_delta"`
	DeltaSlope       float64 `json:"delta_slope"`
	ReliabilitySlope float64 `json:"reliability_slope"`
}
// #endregion statistics

// #region errors
// ValidationError reports an observation value outside [0, 1].
type ValidationError struct {
	Field string
	Value float64
}

func (e *ValidationError) Error() string {
	return "state: " + e.Field + " outside [0,1]"
}

// ConfigError reports an invalid construction parameter.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "state: bad " + e.Param + ": " + e.Reason
}
// #endregion errors
