package drift

import (
	"errors"
	"math/rand"
	"testing"
)

func TestStatMonotoneExceptReset(t *testing.T) {
	d, err := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prev := 0.0
	// Constant degradation: the statistic must never decrease.
	for i := 0; i < 30; i++ {
		sig := d.Update(0.70)
		if sig.Stat < prev {
			t.Fatalf("cycle %d: statistic fell from %v to %v", i, prev, sig.Stat)
		}
		prev = sig.Stat
	}

	d.Reset()
	if sig := d.Update(0.85); sig.Stat < 0 {
		t.Fatalf("statistic negative after reset: %v", sig.Stat)
	}
	s := d.Snapshot()
	if s.Fired {
		t.Fatal("alarm latch survived reset")
	}
}

func TestStatNeverNegative(t *testing.T) {
	d, _ := New(DefaultConfig())
	// Reliability far above baseline drives the increment negative;
	// the statistic must floor at zero.
	for i := 0; i < 20; i++ {
		if sig := d.Update(1.0); sig.Stat != 0 {
			t.Fatalf("statistic %v, want 0 for improving stream", sig.Stat)
		}
	}
}

func TestDetectsShiftWithinTenCycles(t *testing.T) {
	d, err := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewSource(7))

	// 50 cycles at baseline N(0.85, 0.03). A noise excursion can
	// legitimately trip a 3-sigma CUSUM; clear it, the property under
	// test is the response to the shift.
	for i := 0; i < 50; i++ {
		d.Update(clamp(0.85 + 0.03*rng.NormFloat64()))
	}
	if d.Snapshot().Fired {
		d.Reset()
	}

	// Shift to N(0.65, 0.03): must fire within 10 cycles.
	fired := -1
	for i := 0; i < 10; i++ {
		sig := d.Update(clamp(0.65 + 0.03*rng.NormFloat64()))
		if sig.Detected {
			fired = i
			break
		}
	}
	if fired < 0 {
		t.Fatal("shift not detected within 10 cycles")
	}
}

func TestAlarmLatchesUntilReset(t *testing.T) {
	d, _ := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	for i := 0; i < 10; i++ {
		d.Update(0.60)
	}
	first := d.Update(0.60)
	if !first.Detected {
		t.Fatal("alarm should have fired")
	}
	cp := first.ChangePoint
	later := d.Update(0.60)
	if !later.Detected || later.ChangePoint != cp {
		t.Fatalf("latched signal changed: %+v vs change point %d", later, cp)
	}

	d.Reset()
	if sig := d.Update(0.85); sig.Detected {
		t.Fatal("alarm survived reset")
	}
}

func TestConfidenceBounds(t *testing.T) {
	d, _ := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	var sig Signal
	for i := 0; i < 200; i++ {
		sig = d.Update(0.40)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Fatalf("confidence %v outside [0,1]", sig.Confidence)
	}
	if sig.Confidence != 1 {
		t.Fatalf("massive sustained overshoot should saturate confidence, got %v", sig.Confidence)
	}
}

func TestConfidenceZeroBeforeDetection(t *testing.T) {
	d, _ := New(DefaultConfig())
	if sig := d.Update(0.85); sig.Confidence != 0 {
		t.Fatalf("confidence %v before detection, want 0", sig.Confidence)
	}
}

func TestChangePointNearShift(t *testing.T) {
	d, _ := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 40; i++ {
		d.Update(clamp(0.85 + 0.03*rng.NormFloat64()))
	}
	if d.Snapshot().Fired {
		d.Reset()
	}
	var sig Signal
	for i := 0; i < 15; i++ {
		sig = d.Update(clamp(0.65 + 0.03*rng.NormFloat64()))
		if sig.Detected {
			break
		}
	}
	if !sig.Detected {
		t.Fatal("shift not detected")
	}
	// Shift injected at absolute cycle 40; the estimate should land
	// in its neighborhood.
	if sig.ChangePoint < 30 || sig.ChangePoint > 55 {
		t.Fatalf("change point %d too far from injected shift at 40", sig.ChangePoint)
	}
}

func TestChangePointFallbackWithShortHistory(t *testing.T) {
	// Huge eps slack and tiny h: fires on the very first bad sample.
	d, _ := New(Config{Mean: 0.9, Std: 0.05, EpsilonFactor: 0.1, HFactor: 1, WindowSize: 50})
	sig := d.Update(0.2)
	if !sig.Detected {
		t.Fatal("expected immediate detection")
	}
	if sig.ChangePoint != 0 {
		t.Fatalf("change point %d, want clamped fallback 0", sig.ChangePoint)
	}
}

func TestRecalibratePreservesAudit(t *testing.T) {
	d, _ := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	for i := 0; i < 20; i++ {
		d.Update(0.65)
	}
	d.Recalibrate(0.65)

	s := d.Snapshot()
	if s.Stat != 0 || s.Fired {
		t.Fatalf("recalibrate did not reset: %+v", s)
	}
	if s.Mean != 0.65 {
		t.Fatalf("baseline %v, want 0.65", s.Mean)
	}
	if len(s.Observations) == 0 {
		t.Fatal("raw observation history lost on recalibration")
	}

	// At the new baseline the detector should stay quiet.
	for i := 0; i < 20; i++ {
		if sig := d.Update(0.65); sig.Detected {
			t.Fatal("false alarm after recalibration")
		}
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	d, _ := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	for i := 0; i < 12; i++ {
		d.Update(0.7)
	}
	snap := d.Snapshot()

	d2, _ := New(Config{Mean: 0.85, Std: 0.03, EpsilonFactor: 0.5, HFactor: 3, WindowSize: 50})
	d2.Restore(snap)

	for i := 0; i < 10; i++ {
		a := d.Update(0.7)
		b := d2.Update(0.7)
		if a != b {
			t.Fatalf("cycle %d diverged after restore: %+v vs %+v", i, a, b)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	bad := []Config{
		{Mean: 0.8, Std: 0, HFactor: 3, WindowSize: 10},
		{Mean: 0.8, Std: 0.05, HFactor: 0, WindowSize: 10},
		{Mean: 0.8, Std: 0.05, HFactor: 3, EpsilonFactor: -1, WindowSize: 10},
		{Mean: 0.8, Std: 0.05, HFactor: 3, WindowSize: 0},
	}
	for i, c := range bad {
		_, err := New(c)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("case %d: expected ConfigError, got %v", i, err)
		}
	}
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
