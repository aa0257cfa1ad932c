package calibration

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/state"
)

func newQuietSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.SetQuiet(true)
	return s
}

func TestWellCalibratedObservation(t *testing.T) {
	s := newQuietSession(t, DefaultConfig())

	st, err := s.Update(0.80, 0.85, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if math.Abs(st.Delta-0.05) > 1e-12 {
		t.Fatalf("delta %v, want 0.05", st.Delta)
	}
	if st.Miscalibrated {
		t.Fatal("delta 0.05 flagged as miscalibrated")
	}
	if st.Intervention.ReactiveRequired || st.Intervention.ProactiveRecommended {
		t.Fatalf("unexpected intervention: %+v", st.Intervention)
	}
	if st.Phase != PhaseRunning {
		t.Fatalf("phase %s, want running", st.Phase)
	}
}

func TestMiscalibratedObservationForcesReactive(t *testing.T) {
	s := newQuietSession(t, DefaultConfig())

	st, err := s.Update(0.95, 0.60, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if math.Abs(st.Delta-0.35) > 1e-12 {
		t.Fatalf("delta %v, want 0.35", st.Delta)
	}
	if !st.Miscalibrated {
		t.Fatal("delta 0.35 not flagged as miscalibrated")
	}
	if !st.Intervention.ReactiveRequired {
		t.Fatalf("reactive intervention not required: %+v", st.Intervention)
	}
	if st.Intervention.ProactiveRecommended {
		t.Fatal("both intervention kinds set in one cycle")
	}
	if s.ActiveIntervention() == nil {
		t.Fatal("no active intervention recorded")
	}
}

func TestCooldownSuppressesInterventions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownSteps = 5
	s := newQuietSession(t, cfg)

	first, _ := s.Update(0.95, 0.60, nil)
	if !first.Intervention.ReactiveRequired {
		t.Fatal("expected reactive intervention at cycle 0")
	}

	// Thresholds stay exceeded for the whole cooldown window.
	for i := 1; i < 5; i++ {
		st, err := s.Update(0.95, 0.60, nil)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if st.Intervention.ReactiveRequired || st.Intervention.ProactiveRecommended {
			t.Fatalf("cycle %d: intervention during cooldown: %+v", i, st.Intervention)
		}
		if st.Intervention.CooldownRemaining == 0 {
			t.Fatalf("cycle %d: cooldown not reported", i)
		}
	}

	// Cooldown expired: the policy may fire again.
	st, _ := s.Update(0.95, 0.60, nil)
	if !st.Intervention.ReactiveRequired {
		t.Fatalf("cycle 5: expected reactive after cooldown, got %+v", st.Intervention)
	}
}

func TestInvalidInputAbortsCycleAtomically(t *testing.T) {
	s := newQuietSession(t, DefaultConfig())
	s.Update(0.8, 0.8, nil)

	before := s.Checkpoint()
	_, err := s.Update(1.3, 0.8, nil)
	var ve *state.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	after := s.Checkpoint()

	if before.Cycle != after.Cycle ||
		before.InteractionCount != after.InteractionCount ||
		before.Belief != after.Belief ||
		before.Drift.Stat != after.Drift.Stat ||
		before.Drift.Count != after.Drift.Count {
		t.Fatal("rejected update mutated session state")
	}
}

func TestClosedSessionRejectsUpdates(t *testing.T) {
	s := newQuietSession(t, DefaultConfig())
	s.Update(0.8, 0.8, nil)
	s.Close()

	_, err := s.Update(0.8, 0.8, nil)
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if s.Phase() != PhaseClosed {
		t.Fatalf("phase %s, want closed", s.Phase())
	}
}

func TestForecastCadence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForecastInterval = 4
	s := newQuietSession(t, cfg)

	for i := 0; i < 12; i++ {
		st, err := s.Update(0.8, 0.8, nil)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		wantForecast := (i+1)%4 == 0
		if (st.Forecast != nil) != wantForecast {
			t.Fatalf("cycle %d: forecast presence %v, want %v", i, st.Forecast != nil, wantForecast)
		}
	}
}

func TestPredictiveDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnablePredictive = false
	s := newQuietSession(t, cfg)

	for i := 0; i < 20; i++ {
		st, _ := s.Update(0.9, 0.6, nil)
		if st.Forecast != nil {
			t.Fatalf("cycle %d: forecast produced with prediction disabled", i)
		}
	}
}

// statusComparable strips wall-clock fields so two runs of the same
// stream can be compared.
func statusComparable(st Status) Status {
	st.Timestamp = Status{}.Timestamp
	st.LatencyMS = 0
	return st
}

func TestCheckpointRestoreReproducesOutputs(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(42))

	type obs struct{ trust, rel float64 }
	stream := make([]obs, 60)
	for i := range stream {
		mean := 0.85
		if i >= 30 {
			mean = 0.68
		}
		stream[i] = obs{
			trust: clamp01(0.80 + 0.02*rng.NormFloat64()),
			rel:   clamp01(mean + 0.03*rng.NormFloat64()),
		}
	}

	s := newQuietSession(t, cfg)
	for _, o := range stream[:35] {
		if _, err := s.Update(o.trust, o.rel, nil); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	cp := s.Checkpoint()
	restored, err := RestoreSession(cfg, cp)
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	restored.SetQuiet(true)

	for i, o := range stream[35:] {
		a, errA := s.Update(o.trust, o.rel, nil)
		b, errB := restored.Update(o.trust, o.rel, nil)
		if errA != nil || errB != nil {
			t.Fatalf("step %d: %v / %v", i, errA, errB)
		}
		ca, cb := statusComparable(a), statusComparable(b)
		if ca.Cycle != cb.Cycle || ca.Delta != cb.Delta ||
			ca.Kalman != cb.Kalman || ca.Drift != cb.Drift ||
			ca.Intervention != cb.Intervention || ca.Miscalibrated != cb.Miscalibrated {
			t.Fatalf("step %d diverged:\n  original %+v\n  restored %+v", i, ca, cb)
		}
		if (ca.Forecast == nil) != (cb.Forecast == nil) {
			t.Fatalf("step %d: forecast presence diverged", i)
		}
		if ca.Forecast != nil && ca.Forecast.Trigger != cb.Forecast.Trigger {
			t.Fatalf("step %d: forecast trigger diverged", i)
		}
	}
}

func TestDriftScenarioEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	s := newQuietSession(t, cfg)
	rng := rand.New(rand.NewSource(99))

	// Simulated operator: trust tracks reliability slowly, faster when
	// the engine intervenes.
	trust := 0.85
	detectedAt := -1
	var deltas []float64
	interventionCycles := []int{}

	for i := 0; i < 100; i++ {
		mean := 0.85
		if i >= 60 {
			mean = 0.70
		}
		rel := clamp01(mean + 0.03*rng.NormFloat64())

		st, err := s.Update(clamp01(trust), rel, nil)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		deltas = append(deltas, st.Delta)

		if st.Drift.Detected && detectedAt < 0 {
			detectedAt = i
		}
		if st.Intervention.ReactiveRequired || st.Intervention.ProactiveRecommended {
			interventionCycles = append(interventionCycles, i)
			if st.Intervention.ReactiveRequired && st.Intervention.ProactiveRecommended {
				t.Fatalf("cycle %d: two intervention kinds in one cycle", i)
			}
			trust += 0.5 * (rel - trust)
		} else {
			trust += 0.05 * (rel - trust)
		}
	}

	if detectedAt < 60 || detectedAt > 75 {
		t.Fatalf("drift detected at cycle %d, want within [60, 75]", detectedAt)
	}
	if s.Recalibrations() < 1 {
		t.Fatal("no recalibration occurred")
	}

	early := meanOf(deltas[60:70])
	late := meanOf(deltas[80:])
	if late >= early {
		t.Fatalf("mean delta did not recover: last 20 %.4f vs [60,70) %.4f", late, early)
	}

	// Cooldown invariant over the whole run.
	for i := 1; i < len(interventionCycles); i++ {
		if gap := interventionCycles[i] - interventionCycles[i-1]; gap < cfg.CooldownSteps {
			t.Fatalf("interventions %d and %d only %d cycles apart, cooldown %d",
				interventionCycles[i-1], interventionCycles[i], gap, cfg.CooldownSteps)
		}
	}

	m := s.GetMetrics()
	if m.Cycles != 100 {
		t.Fatalf("metrics cycles %d, want 100", m.Cycles)
	}
	if m.MeanDelta <= 0 {
		t.Fatalf("mean delta %v, want positive", m.MeanDelta)
	}
}

func TestGetMetricsIsPure(t *testing.T) {
	s := newQuietSession(t, DefaultConfig())
	for i := 0; i < 10; i++ {
		s.Update(0.8, 0.75, nil)
	}
	a := s.GetMetrics()
	b := s.GetMetrics()
	if a != b {
		t.Fatalf("GetMetrics mutated state: %+v vs %+v", a, b)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.WindowSize = 0 },
		func(c *Config) { c.InterventionThreshold = 0 },
		func(c *Config) { c.InterventionConfidence = 1.2 },
		func(c *Config) { c.CooldownSteps = -1 },
		func(c *Config) { c.ForecastHorizon = 0 },
		func(c *Config) { c.ForecastInterval = 0 },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewSession(cfg)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("case %d: expected ConfigError, got %v", i, err)
		}
	}
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
