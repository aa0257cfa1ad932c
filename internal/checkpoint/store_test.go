package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "calibration.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCheckpoint(t *testing.T, cycles int) calibration.Checkpoint {
	t.Helper()
	sess, err := calibration.NewSession(calibration.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sess.SetQuiet(true)
	for i := 0; i < cycles; i++ {
		if _, err := sess.Update(0.8, 0.75, nil); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	return sess.Checkpoint()
}

func TestSaveAndLoadLatest(t *testing.T) {
	store := tempStore(t)
	cp := sampleCheckpoint(t, 7)

	v1, err := store.Save("session-a", cp)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, version, err := store.LoadLatest("session-a")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if version != v1 {
		t.Fatalf("version %s, want %s", version, v1)
	}
	if got.Cycle != cp.Cycle || got.InteractionCount != cp.InteractionCount {
		t.Fatalf("loaded counters %d/%d, want %d/%d", got.Cycle, got.InteractionCount, cp.Cycle, cp.InteractionCount)
	}
	if got.Belief != cp.Belief {
		t.Fatalf("belief mismatch:\n  got  %+v\n  want %+v", got.Belief, cp.Belief)
	}
	if len(got.History) != len(cp.History) {
		t.Fatalf("history length %d, want %d", len(got.History), len(cp.History))
	}
}

func TestVersionsAreChained(t *testing.T) {
	store := tempStore(t)

	v1, _ := store.Save("session-a", sampleCheckpoint(t, 3))
	v2, _ := store.Save("session-a", sampleCheckpoint(t, 6))

	versions, err := store.ListVersions("session-a")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("%d versions, want 2", len(versions))
	}
	if versions[0].VersionID != v1 || versions[0].ParentID != "" {
		t.Fatalf("first version %+v, want root %s", versions[0], v1)
	}
	if versions[1].VersionID != v2 || versions[1].ParentID != v1 {
		t.Fatalf("second version %+v, want parent %s", versions[1], v1)
	}
}

func TestLoadLatestMissingSession(t *testing.T) {
	store := tempStore(t)
	_, _, err := store.LoadLatest("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRestoredSessionContinuesIdentically(t *testing.T) {
	store := tempStore(t)
	cfg := calibration.DefaultConfig()

	sess, _ := calibration.NewSession(cfg)
	sess.SetQuiet(true)
	for i := 0; i < 20; i++ {
		sess.Update(0.9, 0.65, nil)
	}

	if _, err := store.Save("s", sess.Checkpoint()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cp, _, err := store.LoadLatest("s")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	restored, err := calibration.RestoreSession(cfg, cp)
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	restored.SetQuiet(true)

	// The JSON round trip through SQLite must preserve enough state
	// that both sessions keep producing identical estimates.
	for i := 0; i < 10; i++ {
		a, _ := sess.Update(0.85, 0.7, nil)
		b, _ := restored.Update(0.85, 0.7, nil)
		if a.Kalman != b.Kalman || a.Drift != b.Drift || a.Intervention != b.Intervention {
			t.Fatalf("step %d diverged after DB round trip", i)
		}
	}
}

func TestInterventionAuditLog(t *testing.T) {
	store := tempStore(t)

	store.LogIntervention("s", 4, "reactive", "delta 0.350 exceeds threshold 0.150")
	store.LogIntervention("s", 19, "proactive", "forecast trigger at step 2")

	rows, err := store.Interventions("s")
	if err != nil {
		t.Fatalf("Interventions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("%d rows, want 2", len(rows))
	}
	if rows[0].Cycle != 4 || rows[0].Kind != "reactive" {
		t.Fatalf("first row %+v", rows[0])
	}
	if rows[1].Cycle != 19 || rows[1].Kind != "proactive" {
		t.Fatalf("second row %+v", rows[1])
	}

	if other, _ := store.Interventions("other"); len(other) != 0 {
		t.Fatalf("cross-session leak: %+v", other)
	}
}
