package calibration

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/drift"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/forecast"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/latent"
)

// #region phase

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseInitialized   Phase = "initialized"
	PhaseRunning       Phase = "running"
	PhaseDriftDetected Phase = "drift_detected"
	PhaseRecalibrating Phase = "recalibrating"
	PhaseClosed        Phase = "closed"
)

// #endregion phase

// #region status

// KalmanStatus is the reported filter posterior. Trust, reliability,
// and delta are clamped into [0, 1] here, at the reporting boundary;
// the filter's internal recursion is never clamped.
type KalmanStatus struct {
	TrustLevel  float64 `json:"trust_level"`
	Reliability float64 `json:"reliability"`
	Delta       float64 `json:"delta"`
	CovTrace    float64 `json:"cov_trace"`
	Regularized bool    `json:"regularized,omitempty"`
}

// InterventionStatus is the per-cycle intervention decision. At most
// one of ProactiveRecommended/ReactiveRequired is set per cycle.
type InterventionStatus struct {
	ProactiveRecommended bool   `json:"proactive_recommended"`
	ReactiveRequired     bool   `json:"reactive_required"`
	Reason               string `json:"reason,omitempty"`
	CooldownRemaining    int    `json:"cooldown_remaining,omitempty"`
}

// InterventionRecord describes the currently active intervention.
type InterventionRecord struct {
	Kind          string `json:"kind"` // "proactive" | "reactive"
	Cycle         int    `json:"cycle"`
	CooldownUntil int    `json:"cooldown_until"`
}

// Status is the single record returned for each completed cycle.
type Status struct {
	Cycle     int       `json:"cycle"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`

	TrustLevel    float64 `json:"trust_level"`
	Reliability   float64 `json:"reliability"`
	Delta         float64 `json:"delta"`
	Miscalibrated bool    `json:"miscalibrated"`
	LatencyMS     float64 `json:"latency_ms"`

	Kalman       KalmanStatus       `json:"kalman_state"`
	Latent       latent.Variables   `json:"latent"`
	Drift        drift.Signal       `json:"drift"`
	Forecast     *forecast.Forecast `json:"forecast,omitempty"`
	Intervention InterventionStatus `json:"intervention"`

	// Recalibrated marks a cycle where drift handling re-baselined
	// the detector.
	Recalibrated bool `json:"recalibrated,omitempty"`
	// Diagnostics carries non-fatal numerical warnings.
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// #endregion status

// #region errors

// ConfigError reports an invalid session configuration.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("calibration: bad config %s: %s", e.Param, e.Reason)
}

// StateError reports an operation against a session in the wrong phase.
type StateError struct {
	Op    string
	Phase Phase
}

func (e *StateError) Error() string {
	return fmt.Sprintf("calibration: %s on %s session", e.Op, e.Phase)
}

// #endregion errors
