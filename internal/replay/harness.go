package replay

import (
	"fmt"
	"math/rand"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/metrics"
)

// #region result

// Summary aggregates one replay run.
type Summary struct {
	Cycles          int             `json:"cycles"`
	FirstDriftCycle int             `json:"first_drift_cycle"` // -1 if never
	Recalibrations  int             `json:"recalibrations"`
	Proactive       int             `json:"proactive"`
	Reactive        int             `json:"reactive"`
	MeanDelta       float64         `json:"mean_delta"`
	Metrics         metrics.Metrics `json:"metrics"`
}

// Result is the full outcome of a replay run.
type Result struct {
	Statuses []calibration.Status
	Summary  Summary
	// Failures lists expectation mismatches; empty means the fixture
	// passed.
	Failures []string
}

// #endregion result

// #region run

// Run replays every observation through a fresh session and checks
// the fixture's expectations.
func Run(fx Fixture) (Result, error) {
	return RunWithObserver(fx, nil)
}

// RunWithObserver is Run with a per-cycle callback. The callback may
// block (e.g. to pace playback); a callback error aborts the run.
func RunWithObserver(fx Fixture, observe func(calibration.Status) error) (Result, error) {
	sess, err := calibration.NewSession(fx.SessionConfig())
	if err != nil {
		return Result{}, fmt.Errorf("session: %w", err)
	}
	sess.SetQuiet(true)

	res := Result{Summary: Summary{FirstDriftCycle: -1}}
	var deltaSum float64

	for i, obs := range fx.Observations {
		st, err := sess.Update(obs.TrustLevel, obs.Reliability, obs.Signals)
		if err != nil {
			return res, fmt.Errorf("observation %d: %w", i, err)
		}
		res.Statuses = append(res.Statuses, st)
		deltaSum += st.Delta

		if observe != nil {
			if err := observe(st); err != nil {
				return res, fmt.Errorf("observer at cycle %d: %w", st.Cycle, err)
			}
		}

		if st.Drift.Detected && res.Summary.FirstDriftCycle < 0 {
			res.Summary.FirstDriftCycle = st.Cycle
		}
		if st.Intervention.ProactiveRecommended {
			res.Summary.Proactive++
		}
		if st.Intervention.ReactiveRequired {
			res.Summary.Reactive++
		}
	}

	res.Summary.Cycles = len(res.Statuses)
	res.Summary.Recalibrations = sess.Recalibrations()
	res.Summary.Metrics = sess.GetMetrics()
	if res.Summary.Cycles > 0 {
		res.Summary.MeanDelta = deltaSum / float64(res.Summary.Cycles)
	}

	res.Failures = checkExpectations(fx, res.Statuses)
	return res, nil
}

func checkExpectations(fx Fixture, statuses []calibration.Status) []string {
	var failures []string
	for _, exp := range fx.Expectations {
		if exp.Cycle < 0 || exp.Cycle >= len(statuses) {
			failures = append(failures, fmt.Sprintf("expectation cycle %d out of range", exp.Cycle))
			continue
		}
		st := statuses[exp.Cycle]
		if exp.Miscalibrated != nil && st.Miscalibrated != *exp.Miscalibrated {
			failures = append(failures, fmt.Sprintf("cycle %d: miscalibrated=%v, want %v", exp.Cycle, st.Miscalibrated, *exp.Miscalibrated))
		}
		if exp.DriftDetected != nil && st.Drift.Detected != *exp.DriftDetected {
			failures = append(failures, fmt.Sprintf("cycle %d: drift=%v, want %v", exp.Cycle, st.Drift.Detected, *exp.DriftDetected))
		}
		if exp.ReactiveRequired != nil && st.Intervention.ReactiveRequired != *exp.ReactiveRequired {
			failures = append(failures, fmt.Sprintf("cycle %d: reactive=%v, want %v", exp.Cycle, st.Intervention.ReactiveRequired, *exp.ReactiveRequired))
		}
		if exp.ProactiveAllowed != nil && !*exp.ProactiveAllowed && st.Intervention.ProactiveRecommended {
			failures = append(failures, fmt.Sprintf("cycle %d: unexpected proactive intervention", exp.Cycle))
		}
	}
	return failures
}

// #endregion run

// #region scenario

// ScenarioConfig describes a synthetic drift scenario: a stable
// baseline, a sustained reliability shift, and an operator whose
// trust tracks reliability slowly but adapts faster after an
// intervention.
type ScenarioConfig struct {
	Cycles int   `json:"cycles"`
	Seed   int64 `json:"seed"`

	BaselineReliability float64 `json:"baseline_reliability"`
	ReliabilityStd      float64 `json:"reliability_std"`
	DriftCycle          int     `json:"drift_cycle"` // -1 disables the shift
	DriftedReliability  float64 `json:"drifted_reliability"`

	InitialTrust          float64 `json:"initial_trust"`
	TrustAdaptRate        float64 `json:"trust_adapt_rate"`
	InterventionAdaptRate float64 `json:"intervention_adapt_rate"`
}

// DefaultScenarioConfig returns the standard 100-cycle drift scenario.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Cycles:                100,
		Seed:                  1,
		BaselineReliability:   0.85,
		ReliabilityStd:        0.03,
		DriftCycle:            60,
		DriftedReliability:    0.70,
		InitialTrust:          0.85,
		TrustAdaptRate:        0.05,
		InterventionAdaptRate: 0.5,
	}
}

// GenerateScenario synthesizes a fixture. The operator model needs
// the engine in the loop (interventions change trust), so the stream
// is produced by actually running a session.
func GenerateScenario(sc ScenarioConfig, cfg calibration.Config) (Fixture, error) {
	sess, err := calibration.NewSession(cfg)
	if err != nil {
		return Fixture{}, fmt.Errorf("session: %w", err)
	}
	sess.SetQuiet(true)

	rng := rand.New(rand.NewSource(sc.Seed))
	trust := sc.InitialTrust

	fx := Fixture{
		Description: fmt.Sprintf("synthetic drift scenario: %d cycles, shift at %d", sc.Cycles, sc.DriftCycle),
		Config:      &cfg,
	}

	for i := 0; i < sc.Cycles; i++ {
		mean := sc.BaselineReliability
		if sc.DriftCycle >= 0 && i >= sc.DriftCycle {
			mean = sc.DriftedReliability
		}
		rel := clamp01(mean + sc.ReliabilityStd*rng.NormFloat64())
		tr := clamp01(trust)

		fx.Observations = append(fx.Observations, Observation{
			Cycle:       i,
			TrustLevel:  tr,
			Reliability: rel,
		})

		st, err := sess.Update(tr, rel, nil)
		if err != nil {
			return Fixture{}, fmt.Errorf("cycle %d: %w", i, err)
		}
		rate := sc.TrustAdaptRate
		if st.Intervention.ReactiveRequired || st.Intervention.ProactiveRecommended {
			rate = sc.InterventionAdaptRate
		}
		trust += rate * (rel - trust)
	}
	return fx, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion scenario
