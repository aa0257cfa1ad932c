// Package calibration composes the tracker, latent inference, filter,
// drift detector, and forecaster into one per-cycle update loop with
// an intervention/cooldown policy. One Session monitors one
// human-system pair; sessions share nothing.
package calibration

import (
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/drift"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/forecast"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/kalman"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/latent"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/metrics"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/state"
)

// #region session

// Session drives one observation per cycle through every component
// and fuses their outputs into a single status record. Not safe for
// concurrent use: exactly one in-flight Update per session.
type Session struct {
	config Config
	phase  Phase
	cycle  int // next cycle index; equals completed cycles

	tracker    *state.Tracker
	inference  *latent.Inference
	filter     *kalman.Filter
	detector   *drift.Detector
	forecaster *forecast.Engine
	recorder   *metrics.Recorder

	cooldownUntil   int
	active          *InterventionRecord
	lastForecast    *forecast.Forecast
	lastForecastAt  int
	recalibrations  int
	quiet           bool // suppress log output (replay/tests)
}

// NewSession wires a session from the given configuration.
func NewSession(config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tracker, err := state.NewTracker(config.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	filter, err := kalman.New(config.kalmanConfig())
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	detector, err := drift.New(config.driftConfig())
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	forecaster, err := forecast.NewEngine(config.forecastConfig())
	if err != nil {
		return nil, fmt.Errorf("forecaster: %w", err)
	}

	return &Session{
		config:         config,
		phase:          PhaseInitialized,
		tracker:        tracker,
		inference:      latent.NewInference(config.Latent),
		filter:         filter,
		detector:       detector,
		forecaster:     forecaster,
		recorder:       metrics.NewRecorder(config.metricsConfig()),
		lastForecastAt: -1,
	}, nil
}

// SetQuiet disables the session's log output.
func (s *Session) SetQuiet(quiet bool) { s.quiet = quiet }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// Cycle returns the number of completed cycles.
func (s *Session) Cycle() int { return s.cycle }

// #endregion session

// #region update

// Update runs one full calibration cycle. Validation happens before
// any component mutates, so a rejected observation leaves the session
// exactly as it was. A closed session rejects all updates.
func (s *Session) Update(trustLevel, reliability float64, signals map[string]float64) (Status, error) {
	if s.phase == PhaseClosed {
		return Status{}, &StateError{Op: "update", Phase: s.phase}
	}
	if err := state.ValidateObservation(trustLevel, reliability); err != nil {
		return Status{}, err
	}

	start := time.Now()
	if s.phase == PhaseInitialized {
		s.phase = PhaseRunning
	}

	// 1. History.
	obs, err := s.tracker.Update(trustLevel, reliability, signals)
	if err != nil {
		// Unreachable after the pre-validation above.
		return Status{}, err
	}

	// 2. Latent context.
	vars := s.inference.Infer(signals)

	// 3. Belief update.
	s.filter.Predict()
	est := s.filter.Update([kalman.Dim]float64{trustLevel, reliability, obs.Delta})

	// 4. Drift monitoring off the raw reliability stream.
	driftSig := s.detector.Update(reliability)
	recalibrated := false
	if driftSig.Detected {
		s.phase = PhaseDriftDetected
		recalibrated = s.recalibrate(driftSig)
	}

	// 5. Periodic forecast.
	var fc *forecast.Forecast
	if s.config.EnablePredictive && (s.cycle+1)%s.config.ForecastInterval == 0 {
		f := s.forecaster.Forecast(s.filter, vars, s.config.ForecastHorizon)
		fc = &f
		s.lastForecast = fc
		s.lastForecastAt = s.cycle
		s.recorder.RecordForecast(s.cycle, f.Horizon, f.DeltaMean[f.Horizon-1])
		if f.Triggered() {
			s.recorder.RecordProactiveTrigger(s.cycle, f.Horizon)
		}
	}

	// 6. Intervention policy: reactive beats proactive, cooldown beats
	// both, and exactly one decision is produced.
	intervention := s.decideIntervention(obs.Delta)

	// 7. Running metrics.
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	s.recorder.RecordCycle(s.cycle, obs.Delta, latency)

	// 8. Status record.
	status := Status{
		Cycle:         s.cycle,
		Phase:         s.phase,
		Timestamp:     obs.Timestamp,
		TrustLevel:    trustLevel,
		Reliability:   reliability,
		Delta:         obs.Delta,
		Miscalibrated: obs.Delta > s.config.InterventionThreshold,
		LatencyMS:     latency,
		Kalman: KalmanStatus{
			TrustLevel:  clamp01(est.State[0]),
			Reliability: clamp01(est.State[1]),
			Delta:       clamp01(est.State[2]),
			CovTrace:    est.CovTrace,
			Regularized: est.Regularized,
		},
		Latent:       vars,
		Drift:        driftSig,
		Forecast:     fc,
		Intervention: intervention,
		Recalibrated: recalibrated,
	}
	if est.Regularized {
		status.Diagnostics = append(status.Diagnostics, "innovation covariance regularized")
	}

	if s.phase == PhaseDriftDetected || s.phase == PhaseRecalibrating {
		s.phase = PhaseRunning
	}
	s.cycle++
	return status, nil
}

// #endregion update

// #region drift-handling

// recalibrate re-baselines the drift detector to the post-change
// reliability mean and resets it, returning to normal monitoring.
func (s *Session) recalibrate(sig drift.Signal) bool {
	s.phase = PhaseRecalibrating

	traj := s.tracker.Trajectory()
	if len(traj) == 0 {
		return false
	}
	// Prefer samples after the estimated change point so the new
	// baseline reflects the post-shift regime, not the mixture.
	span := s.config.RecalibrationSpan
	if sig.ChangePoint >= 0 {
		if post := s.cycle + 1 - sig.ChangePoint; post < span {
			span = post
		}
	}
	if span < 1 {
		span = 1
	}
	if span > len(traj) {
		span = len(traj)
	}
	var sum float64
	for _, o := range traj[len(traj)-span:] {
		sum += o.Reliability
	}
	newMean := sum / float64(span)

	s.detector.Recalibrate(newMean)
	s.recalibrations++
	if !s.quiet {
		log.Printf("[CAL] drift at cycle %d (change point %d): baseline -> %.3f", s.cycle, sig.ChangePoint, newMean)
	}
	return true
}

// Recalibrations returns how many times the detector was re-baselined.
func (s *Session) Recalibrations() int { return s.recalibrations }

// #endregion drift-handling

// #region intervention

// decideIntervention applies the policy: reactive when the observed
// delta already exceeds the threshold, otherwise proactive when the
// most recent forecast still predicts an upcoming trigger; any
// intervention opens a cooldown suppressing further ones.
func (s *Session) decideIntervention(delta float64) InterventionStatus {
	st := InterventionStatus{}
	if s.cooldownUntil > s.cycle {
		st.CooldownRemaining = s.cooldownUntil - s.cycle
	} else if s.active != nil {
		s.active = nil
	}

	inCooldown := st.CooldownRemaining > 0

	if delta > s.config.InterventionThreshold {
		if inCooldown {
			st.Reason = "miscalibrated but cooling down"
			return st
		}
		st.ReactiveRequired = true
		st.Reason = fmt.Sprintf("delta %.3f exceeds threshold %.3f", delta, s.config.InterventionThreshold)
		s.openIntervention("reactive")
		return st
	}

	if !inCooldown && s.pendingForecastTrigger() {
		st.ProactiveRecommended = true
		st.Reason = fmt.Sprintf("forecast trigger at step %d", s.lastForecast.Trigger)
		s.openIntervention("proactive")
		return st
	}

	if st.Reason == "" {
		st.Reason = "calibrated"
	}
	return st
}

// pendingForecastTrigger reports whether the latest forecast predicts
// a miscalibration at a step that has not yet passed.
func (s *Session) pendingForecastTrigger() bool {
	if s.lastForecast == nil || !s.lastForecast.Triggered() {
		return false
	}
	return s.lastForecastAt+s.lastForecast.Trigger >= s.cycle
}

// openIntervention starts the cooldown and records the intervention.
// At most one is active at a time; the cooldown guarantees it.
func (s *Session) openIntervention(kind string) {
	s.cooldownUntil = s.cycle + s.config.CooldownSteps
	s.active = &InterventionRecord{
		Kind:          kind,
		Cycle:         s.cycle,
		CooldownUntil: s.cooldownUntil,
	}
	s.recorder.RecordIntervention(s.cycle)
	if !s.quiet {
		log.Printf("[CAL] %s intervention at cycle %d, cooldown until %d", kind, s.cycle, s.cooldownUntil)
	}
}

// ActiveIntervention returns the intervention whose cooldown is still
// open, or nil.
func (s *Session) ActiveIntervention() *InterventionRecord {
	if s.active == nil || s.cooldownUntil <= s.cycle {
		return nil
	}
	rec := *s.active
	return &rec
}

// #endregion intervention

// #region queries

// GetMetrics returns the running framework metrics. Pure read.
func (s *Session) GetMetrics() metrics.Metrics {
	return s.recorder.Snapshot()
}

// Statistics returns window summary statistics from the tracker.
func (s *Session) Statistics() state.Statistics {
	return s.tracker.ComputeStatistics()
}

// Trajectory returns the current observation window, oldest first.
func (s *Session) Trajectory() []state.TrustState {
	return s.tracker.Trajectory()
}

// Close ends the session. Further updates fail with a StateError.
func (s *Session) Close() {
	s.phase = PhaseClosed
}

// #endregion queries

// #region helpers

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
