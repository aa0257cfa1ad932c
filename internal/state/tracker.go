package state

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// #region tracker
// Tracker keeps a fixed-capacity sliding window of trust/reliability
// observations. Eviction is FIFO via a ring buffer; the interaction
// counter grows independently of the window.
type Tracker struct {
	buf      []TrustState
	head     int // index of oldest entry
	size     int // entries currently held
	count    int // total observations ever accepted
	capacity int
}

// NewTracker creates a tracker with the given window size.
func NewTracker(windowSize int) (*Tracker, error) {
	if windowSize <= 0 {
		return nil, &ConfigError{Param: "windowSize", Reason: "must be positive"}
	}
	return &Tracker{
		buf:      make([]TrustState, windowSize),
		capacity: windowSize,
	}, nil
}
// #endregion tracker

// #region validate
// ValidateObservation checks both observation values against [0, 1]
// without mutating anything. The orchestrator calls this before any
// component is touched, so a rejected cycle leaves no trace.
func ValidateObservation(trustLevel, reliability float64) error {
	if trustLevel < 0 || trustLevel > 1 || math.IsNaN(trustLevel) {
		return &ValidationError{Field: "trust_level", Value: trustLevel}
	}
	if reliability < 0 || reliability > 1 || math.IsNaN(reliability) {
		return &ValidationError{Field: "reliability", Value: reliability}
	}
	return nil
}
// #endregion validate

// #region update
// Update validates, derives delta, appends (evicting the oldest entry
// when full), and increments the interaction counter.
func (t *Tracker) Update(trustLevel, reliability float64, signals map[string]float64) (TrustState, error) {
	if err := ValidateObservation(trustLevel, reliability); err != nil {
		return TrustState{}, err
	}

	s := TrustState{
		Timestamp:   time.Now().UTC(),
		TrustLevel:  trustLevel,
		Reliability: reliability,
		Delta:       math.Abs(trustLevel - reliability),
	}
	if len(signals) > 0 {
		s.Signals = make(map[string]float64, len(signals))
		for k, v := range signals {
			s.Signals[k] = v
		}
	}

	if t.size < t.capacity {
		t.buf[(t.head+t.size)%t.capacity] = s
		t.size++
	} else {
		t.buf[t.head] = s
		t.head = (t.head + 1) % t.capacity
	}
	t.count++

	return s, nil
}
// #endregion update

// #region accessors
// Len returns the number of observations currently in the window.
func (t *Tracker) Len() int { return t.size }

// Count returns the total number of observations ever accepted.
func (t *Tracker) Count() int { return t.count }

// Latest returns the most recent observation and false when empty.
func (t *Tracker) Latest() (TrustState, bool) {
	if t.size == 0 {
		return TrustState{}, false
	}
	return t.buf[(t.head+t.size-1)%t.capacity], true
}

// Trajectory returns the window contents oldest-first as a fresh slice.
func (t *Tracker) Trajectory() []TrustState {
	out := make([]TrustState, t.size)
	for i := 0; i < t.size; i++ {
		out[i] = t.buf[(t.head+i)%t.capacity]
	}
	return out
}

// Matrix returns the window as an n x 3 dense matrix with columns
// [trust, reliability, delta], oldest row first.
func (t *Tracker) Matrix() *mat.Dense {
	if t.size == 0 {
		return nil
	}
	m := mat.NewDense(t.size, 3, nil)
	for i := 0; i < t.size; i++ {
		s := t.buf[(t.head+i)%t.capacity]
		m.Set(i, 0, s.TrustLevel)
		m.Set(i, 1, s.Reliability)
		m.Set(i, 2, s.Delta)
	}
	return m
}
// #endregion accessors

// #region statistics
// ComputeStatistics returns window summary statistics. With fewer than
// two samples everything is zero except Samples.
func (t *Tracker) ComputeStatistics() Statistics {
	st := Statistics{Samples: t.size}
	if t.size < 2 {
		return st
	}

	xs := make([]float64, t.size)
	deltas := make([]float64, t.size)
	rels := make([]float64, t.size)
	maxDelta := 0.0
	for i := 0; i < t.size; i++ {
		s := t.buf[(t.head+i)%t.capacity]
		xs[i] = float64(i)
		deltas[i] = s.Delta
		rels[i] = s.Reliability
		if s.Delta > maxDelta {
			maxDelta = s.Delta
		}
	}

	st.MeanDelta = stat.Mean(deltas, nil)
	st.StdDelta = stat.StdDev(deltas, nil)
	st.MaxDelta = maxDelta
	_, st.DeltaSlope = stat.LinearRegression(xs, deltas, nil, false)
	_, st.ReliabilitySlope = stat.LinearRegression(xs, rels, nil, false)
	return st
}

// IsMiscalibrated reports whether the latest delta exceeds threshold.
// Only the most recent observation is consulted.
func (t *Tracker) IsMiscalibrated(threshold float64) bool {
	latest, ok := t.Latest()
	if !ok {
		return false
	}
	return latest.Delta > threshold
}
// #endregion statistics

// #region checkpoint
// RestoreHistory replaces the window contents and counter, oldest
// first. Used when resuming a session from a checkpoint.
func (t *Tracker) RestoreHistory(history []TrustState, count int) {
	t.head = 0
	t.size = 0
	for i := range t.buf {
		t.buf[i] = TrustState{}
	}
	start := 0
	if len(history) > t.capacity {
		start = len(history) - t.capacity
	}
	for _, s := range history[start:] {
		t.buf[t.size] = s
		t.size++
	}
	t.count = count
}
// #endregion checkpoint
