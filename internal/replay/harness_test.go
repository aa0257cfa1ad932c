package replay

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
)

func boolPtr(b bool) *bool { return &b }

func TestRunChecksExpectations(t *testing.T) {
	fx := Fixture{
		Description: "two-point calibration check",
		Observations: []Observation{
			{Cycle: 0, TrustLevel: 0.80, Reliability: 0.85},
			{Cycle: 1, TrustLevel: 0.95, Reliability: 0.60},
		},
		Expectations: []Expectation{
			{Cycle: 0, Miscalibrated: boolPtr(false), ReactiveRequired: boolPtr(false)},
			{Cycle: 1, Miscalibrated: boolPtr(true), ReactiveRequired: boolPtr(true)},
		},
	}

	res, err := Run(fx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	if res.Summary.Cycles != 2 || res.Summary.Reactive != 1 {
		t.Fatalf("summary %+v", res.Summary)
	}
}

func TestRunReportsMismatch(t *testing.T) {
	fx := Fixture{
		Observations: []Observation{
			{Cycle: 0, TrustLevel: 0.80, Reliability: 0.85},
		},
		Expectations: []Expectation{
			{Cycle: 0, Miscalibrated: boolPtr(true)},
		},
	}
	res, err := Run(fx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Failures) != 1 || !strings.Contains(res.Failures[0], "miscalibrated") {
		t.Fatalf("failures %v", res.Failures)
	}
}

func TestGeneratedScenarioDetectsDrift(t *testing.T) {
	sc := DefaultScenarioConfig()
	fx, err := GenerateScenario(sc, calibration.DefaultConfig())
	if err != nil {
		t.Fatalf("GenerateScenario: %v", err)
	}
	if len(fx.Observations) != sc.Cycles {
		t.Fatalf("%d observations, want %d", len(fx.Observations), sc.Cycles)
	}

	res, err := Run(fx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.FirstDriftCycle < sc.DriftCycle || res.Summary.FirstDriftCycle > sc.DriftCycle+15 {
		t.Fatalf("first drift at %d, want shortly after %d", res.Summary.FirstDriftCycle, sc.DriftCycle)
	}
	if res.Summary.Recalibrations < 1 {
		t.Fatal("no recalibration in drift scenario")
	}
}

func TestScenarioIsDeterministic(t *testing.T) {
	sc := DefaultScenarioConfig()
	a, _ := GenerateScenario(sc, calibration.DefaultConfig())
	b, _ := GenerateScenario(sc, calibration.DefaultConfig())
	for i := range a.Observations {
		if a.Observations[i].TrustLevel != b.Observations[i].TrustLevel ||
			a.Observations[i].Reliability != b.Observations[i].Reliability {
			t.Fatalf("observation %d differs between runs with the same seed", i)
		}
	}
}

func TestFixtureRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	fx, _ := GenerateScenario(DefaultScenarioConfig(), calibration.DefaultConfig())

	if err := WriteFixture(path, fx); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(loaded.Observations) != len(fx.Observations) {
		t.Fatalf("%d observations after round trip, want %d", len(loaded.Observations), len(fx.Observations))
	}
	if loaded.Observations[3].Reliability != fx.Observations[3].Reliability {
		t.Fatalf("observation mismatch after round trip")
	}

	resA, _ := Run(fx)
	resB, _ := Run(loaded)
	if resA.Summary.FirstDriftCycle != resB.Summary.FirstDriftCycle ||
		resA.Summary.Reactive != resB.Summary.Reactive {
		t.Fatalf("replay summaries diverge: %+v vs %+v", resA.Summary, resB.Summary)
	}
}
