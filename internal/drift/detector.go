// Package drift implements a one-sided CUSUM monitor for sustained
// reliability degradation. Only decay is monitored; improvement never
// accumulates evidence.
package drift

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// #region config

// Config holds the CUSUM baseline and sensitivity parameters.
// Slack epsilon and threshold h are expressed in units of the baseline
// standard deviation.
type Config struct {
	// Mean is the baseline reliability the stream is expected to hold.
	Mean float64 `yaml:"mean"`
	// Std is the baseline reliability noise.
	Std float64 `yaml:"std"`
	// EpsilonFactor sets the slack: eps = EpsilonFactor * Std.
	// Deviations smaller than the slack never accumulate.
	EpsilonFactor float64 `yaml:"epsilon_factor"`
	// HFactor sets the alarm threshold: h = HFactor * Std.
	HFactor float64 `yaml:"h_factor"`
	// WindowSize bounds the retained observation and statistic
	// history used for change-point estimation.
	WindowSize int `yaml:"window_size"`
}

// DefaultConfig returns the standard detector tuning.
func DefaultConfig() Config {
	return Config{
		Mean:          0.85,
		Std:           0.05,
		EpsilonFactor: 0.5,
		HFactor:       4.0,
		WindowSize:    50,
	}
}

// ConfigError reports an invalid detector parameter.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "drift: bad " + e.Param + ": " + e.Reason
}

// #endregion config

// #region types

// Signal is the per-observation detector output.
type Signal struct {
	Detected bool `json:"detected"`
	// Stat is the cumulative evidence S_t, never negative.
	Stat float64 `json:"stat"`
	// Threshold is the alarm level h the statistic is compared against.
	Threshold float64 `json:"threshold"`
	// ChangePoint is the estimated onset cycle of the shift, -1 when
	// no detection has fired.
	ChangePoint int `json:"change_point"`
	// Confidence grows with the threshold overshoot, clamped to [0,1].
	Confidence float64 `json:"confidence"`
}

// State is a plain snapshot of the detector for checkpointing.
type State struct {
	Stat         float64   `json:"stat"`
	Mean         float64   `json:"mean"`
	Std          float64   `json:"std"`
	Fired        bool      `json:"fired"`
	Count        int       `json:"count"`
	ChangePoint  int       `json:"change_point"`
	Observations []float64 `json:"observations"`
	StatHistory  []float64 `json:"stat_history"`
}

// #endregion types

// #region detector

// Detector accumulates one-sided CUSUM evidence of reliability decay:
//
//	S_t = max(0, S_{t-1} + (mean - r_t - eps))
//
// The alarm fires once, on the first crossing of h, and stays latched
// until Reset or Recalibrate.
type Detector struct {
	config Config
	eps    float64
	h      float64

	stat        float64
	fired       bool
	count       int
	changePoint int

	observations []float64 // bounded raw reliability history, audit
	statHistory  []float64 // bounded S_t history, change-point source
}

// New creates a detector around the given baseline.
func New(config Config) (*Detector, error) {
	if config.Std <= 0 {
		return nil, &ConfigError{Param: "Std", Reason: "must be positive"}
	}
	if config.HFactor <= 0 {
		return nil, &ConfigError{Param: "HFactor", Reason: "must be positive"}
	}
	if config.EpsilonFactor < 0 {
		return nil, &ConfigError{Param: "EpsilonFactor", Reason: "must be non-negative"}
	}
	if config.WindowSize <= 0 {
		return nil, &ConfigError{Param: "WindowSize", Reason: "must be positive"}
	}
	return &Detector{
		config:      config,
		eps:         config.EpsilonFactor * config.Std,
		h:           config.HFactor * config.Std,
		changePoint: -1,
	}, nil
}

// #endregion detector

// #region update

// Update folds one reliability observation into the statistic.
func (d *Detector) Update(reliability float64) Signal {
	d.count++
	d.stat = math.Max(0, d.stat+(d.config.Mean-reliability-d.eps))

	d.observations = appendBounded(d.observations, reliability, d.config.WindowSize)
	d.statHistory = appendBounded(d.statHistory, d.stat, d.config.WindowSize)

	if !d.fired && d.stat > d.h {
		d.fired = true
		d.changePoint = d.estimateChangePoint()
	}

	return Signal{
		Detected:    d.fired,
		Stat:        d.stat,
		Threshold:   d.h,
		ChangePoint: d.changePoint,
		Confidence:  d.confidence(),
	}
}

// confidence maps threshold overshoot to [0, 1]; exactly at the
// threshold it reports 0.5.
func (d *Detector) confidence() float64 {
	if !d.fired {
		return 0
	}
	c := 0.5 + 0.5*(d.stat-d.h)/d.h
	return math.Min(1, math.Max(0, c))
}

// #endregion update

// #region change-point

// estimateChangePoint looks for the first abrupt climb in the recent
// statistic history: a step gradient exceeding mean + 2*std of all
// recent gradients. With too little history it falls back to a fixed
// lag behind the alarm.
func (d *Detector) estimateChangePoint() int {
	n := len(d.statHistory)
	if n < 5 {
		return max(0, d.count-5)
	}

	grads := make([]float64, n-1)
	for i := 1; i < n; i++ {
		grads[i-1] = d.statHistory[i] - d.statHistory[i-1]
	}
	mean := stat.Mean(grads, nil)
	sd := stat.StdDev(grads, nil)
	cut := mean + 2*sd

	firstIdx := -1
	for i, g := range grads {
		if g > cut {
			firstIdx = i + 1 // gradient i is the step into history index i+1
			break
		}
	}
	if firstIdx < 0 {
		return max(0, d.count-10)
	}
	// Translate window index to absolute cycle number.
	return d.count - n + firstIdx
}

// #endregion change-point

// #region reset

// Reset zeroes the statistic and alarm latch. Observation history is
// retained for audit.
func (d *Detector) Reset() {
	d.stat = 0
	d.fired = false
	d.changePoint = -1
	d.statHistory = d.statHistory[:0]
}

// Recalibrate re-baselines the detector to a new mean and resets the
// statistic, keeping sensitivity parameters and raw history.
func (d *Detector) Recalibrate(mean float64) {
	d.config.Mean = mean
	d.Reset()
}

// Baseline returns the current baseline mean.
func (d *Detector) Baseline() float64 { return d.config.Mean }

// #endregion reset

// #region checkpoint

// Snapshot returns the detector state as plain data.
func (d *Detector) Snapshot() State {
	return State{
		Stat:         d.stat,
		Mean:         d.config.Mean,
		Std:          d.config.Std,
		Fired:        d.fired,
		Count:        d.count,
		ChangePoint:  d.changePoint,
		Observations: append([]float64(nil), d.observations...),
		StatHistory:  append([]float64(nil), d.statHistory...),
	}
}

// Restore replaces the detector state from a checkpoint. Sensitivity
// parameters come from the live config; the snapshot carries the
// evolving quantities.
func (d *Detector) Restore(s State) {
	d.config.Mean = s.Mean
	d.stat = s.Stat
	d.fired = s.Fired
	d.count = s.Count
	d.changePoint = s.ChangePoint
	d.observations = append([]float64(nil), s.Observations...)
	d.statHistory = append([]float64(nil), s.StatHistory...)
}

// #endregion checkpoint

// #region helpers

func appendBounded(s []float64, v float64, capacity int) []float64 {
	s = append(s, v)
	if len(s) > capacity {
		s = s[len(s)-capacity:]
	}
	return s
}

// #endregion helpers
