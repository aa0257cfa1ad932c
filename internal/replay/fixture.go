// Package replay runs recorded or synthetic observation streams
// through a fresh session, for regression fixtures and offline
// scenario analysis.
package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description  string              `json:"description"`
	Config       *calibration.Config `json:"config,omitempty"`
	Observations []Observation       `json:"observations"`
	Expectations []Expectation       `json:"expected_results,omitempty"`
}

// Observation is one recorded engine input.
type Observation struct {
	Cycle       int                `json:"cycle"`
	TrustLevel  float64            `json:"trust_level"`
	Reliability float64            `json:"reliability"`
	Signals     map[string]float64 `json:"signals,omitempty"`
}

// Expectation pins down the engine output at one cycle. Nil fields
// are not checked.
type Expectation struct {
	Cycle            int   `json:"cycle"`
	Miscalibrated    *bool `json:"miscalibrated,omitempty"`
	DriftDetected    *bool `json:"drift_detected,omitempty"`
	ReactiveRequired *bool `json:"reactive_required,omitempty"`
	ProactiveAllowed *bool `json:"proactive_allowed,omitempty"`
}

// #endregion fixture-types

// #region load-save

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (Fixture, error) {
	var fx Fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return fx, fmt.Errorf("read fixture: %w", err)
	}
	if err := json.Unmarshal(data, &fx); err != nil {
		return fx, fmt.Errorf("parse fixture: %w", err)
	}
	if len(fx.Observations) == 0 {
		return fx, fmt.Errorf("fixture %s has no observations", path)
	}
	return fx, nil
}

// WriteFixture writes a fixture as indented JSON.
func WriteFixture(path string, fx Fixture) error {
	data, err := json.MarshalIndent(fx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// SessionConfig returns the fixture's config or the defaults.
func (f Fixture) SessionConfig() calibration.Config {
	if f.Config != nil {
		return *f.Config
	}
	return calibration.DefaultConfig()
}

// #endregion load-save
