package calibration

import (
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/drift"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/forecast"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/kalman"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/state"
)

// #region checkpoint

// Checkpoint is a plain, serializable snapshot of everything a host
// needs to resume a session across restarts: the filter belief, the
// detector state, the observation window, and the policy counters.
// No wire format is mandated; all fields carry JSON tags.
type Checkpoint struct {
	Phase            Phase              `json:"phase"`
	Cycle            int                `json:"cycle"`
	CooldownUntil    int                `json:"cooldown_until"`
	Recalibrations   int                `json:"recalibrations"`
	InteractionCount int                `json:"interaction_count"`
	History          []state.TrustState `json:"history"`
	Belief           kalman.Belief      `json:"belief"`
	Drift            drift.State        `json:"drift"`

	Active         *InterventionRecord `json:"active_intervention,omitempty"`
	LastForecast   *forecast.Forecast  `json:"last_forecast,omitempty"`
	LastForecastAt int                 `json:"last_forecast_at"`
}

// Checkpoint snapshots the session. The session itself is untouched.
func (s *Session) Checkpoint() Checkpoint {
	cp := Checkpoint{
		Phase:            s.phase,
		Cycle:            s.cycle,
		CooldownUntil:    s.cooldownUntil,
		Recalibrations:   s.recalibrations,
		InteractionCount: s.tracker.Count(),
		History:          s.tracker.Trajectory(),
		Belief:           s.filter.Belief(),
		Drift:            s.detector.Snapshot(),
		LastForecastAt:   s.lastForecastAt,
	}
	if s.active != nil {
		rec := *s.active
		cp.Active = &rec
	}
	if s.lastForecast != nil {
		fc := *s.lastForecast
		cp.LastForecast = &fc
	}
	return cp
}

// RestoreSession builds a session from a checkpoint taken with the
// same configuration. Running metrics restart from zero; estimator
// and policy state resume exactly where the checkpoint left off, so
// an identical future input stream reproduces identical outputs.
func RestoreSession(config Config, cp Checkpoint) (*Session, error) {
	s, err := NewSession(config)
	if err != nil {
		return nil, err
	}

	s.phase = cp.Phase
	if s.phase == "" {
		s.phase = PhaseInitialized
	}
	s.cycle = cp.Cycle
	s.cooldownUntil = cp.CooldownUntil
	s.recalibrations = cp.Recalibrations
	s.tracker.RestoreHistory(cp.History, cp.InteractionCount)
	s.filter.Restore(cp.Belief)
	s.detector.Restore(cp.Drift)
	s.lastForecastAt = cp.LastForecastAt
	if cp.Active != nil {
		rec := *cp.Active
		s.active = &rec
	}
	if cp.LastForecast != nil {
		fc := *cp.LastForecast
		s.lastForecast = &fc
	}
	return s, nil
}

// #endregion checkpoint
