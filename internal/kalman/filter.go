// Package kalman implements the linear-Gaussian estimator over the
// state vector [trust, reliability, delta].
package kalman

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Dim is the state dimension: trust, reliability, delta.
const Dim = 3

// regularizationEps is added to the innovation covariance diagonal
// when inversion fails. Non-fatal: the update proceeds and the cycle
// reports a degeneracy diagnostic.
const regularizationEps = 1e-8

// #region config

// Config holds the noise model. The transition is a random walk
// (A = identity) and the full state is observed (H = identity).
type Config struct {
	// ProcessNoiseStd scales how fast the belief loosens between
	// observations. Higher = more agile, noisier estimates.
	ProcessNoiseStd float64 `yaml:"process_noise_std"`
	// MeasurementNoiseStd is the assumed observation noise.
	// Higher = trust measurements less.
	MeasurementNoiseStd float64 `yaml:"measurement_noise_std"`
	// InitialUncertainty seeds the covariance diagonal.
	InitialUncertainty float64 `yaml:"initial_uncertainty"`
	// InitialState seeds the mean. Neutral midpoints by default.
	InitialState [Dim]float64 `yaml:"initial_state"`
}

// DefaultConfig returns the standard noise model.
func DefaultConfig() Config {
	return Config{
		ProcessNoiseStd:     0.05,
		MeasurementNoiseStd: 0.1,
		InitialUncertainty:  1.0,
		InitialState:        [Dim]float64{0.5, 0.5, 0},
	}
}

// #endregion config

// #region types

// Belief is a plain snapshot of the filter's posterior, suitable for
// checkpointing. Cov is row-major 3x3.
type Belief struct {
	Mean [Dim]float64      `json:"mean"`
	Cov  [Dim * Dim]float64 `json:"cov"`
}

// Estimate is the fused posterior after one update.
type Estimate struct {
	State       [Dim]float64
	CovTrace    float64
	Regularized bool // innovation covariance needed regularization
}

// #endregion types

// #region filter

// Filter is a recursive linear-Gaussian estimator. Not safe for
// concurrent use; one session owns one filter.
type Filter struct {
	a, q, rmeas *mat.Dense   // transition, process noise, measurement noise
	x           *mat.VecDense // posterior mean
	p           *mat.Dense   // posterior covariance

	xPred *mat.VecDense // last predicted mean
	pPred *mat.Dense    // last predicted covariance
}

// New creates a filter from the given noise model.
func New(config Config) (*Filter, error) {
	if config.ProcessNoiseStd < 0 {
		return nil, &ConfigError{Param: "ProcessNoiseStd", Reason: "must be non-negative"}
	}
	if config.MeasurementNoiseStd < 0 {
		return nil, &ConfigError{Param: "MeasurementNoiseStd", Reason: "must be non-negative"}
	}
	if config.InitialUncertainty <= 0 {
		return nil, &ConfigError{Param: "InitialUncertainty", Reason: "must be positive"}
	}

	f := &Filter{
		a:     eye(1.0),
		q:     eye(config.ProcessNoiseStd * config.ProcessNoiseStd),
		rmeas: eye(config.MeasurementNoiseStd * config.MeasurementNoiseStd),
		x:     mat.NewVecDense(Dim, config.InitialState[:]),
		p:     eye(config.InitialUncertainty),
	}
	return f, nil
}

// ConfigError reports an invalid noise model parameter.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "kalman: bad " + e.Param + ": " + e.Reason
}

// #endregion filter

// #region predict

// Predict runs the time update: x = A·x, P = A·P·Aᵀ + Q.
// The predicted belief is held until the next Update fuses a
// measurement into it.
func (f *Filter) Predict() (mean [Dim]float64, covTrace float64) {
	xp := mat.NewVecDense(Dim, nil)
	xp.MulVec(f.a, f.x)

	var ap, pp mat.Dense
	ap.Mul(f.a, f.p)
	pp.Mul(&ap, f.a.T())
	pp.Add(&pp, f.q)

	f.xPred = xp
	f.pPred = &pp

	copy(mean[:], xp.RawVector().Data)
	return mean, mat.Trace(&pp)
}

// #endregion predict

// #region update

// Update fuses a measurement z = [trust, reliability, delta] into the
// predicted belief. If Predict was not called since the last update it
// is run implicitly, keeping the predict/update pairing intact. A
// near-singular innovation covariance is regularized with a small
// diagonal epsilon rather than failing the cycle.
func (f *Filter) Update(z [Dim]float64) Estimate {
	if f.xPred == nil {
		f.Predict()
	}

	// S = H·P_pred·Hᵀ + R with H = I.
	var s mat.Dense
	s.Add(f.pPred, f.rmeas)

	// Any inversion failure (singular or ill-conditioned) gets the
	// epsilon bump and one retry. After the bump S is strictly
	// positive-definite whenever P_pred and R are PSD, so the retry
	// can at worst report an ill-condition warning alongside a valid
	// result.
	regularized := false
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		regularized = true
		for i := 0; i < Dim; i++ {
			s.Set(i, i, s.At(i, i)+regularizationEps)
		}
		if err := sInv.Inverse(&s); err != nil && !isCondition(err) {
			// Last resort: skip fusion entirely, keep the prediction.
			f.x = f.xPred
			f.p = f.pPred
			f.xPred, f.pPred = nil, nil
			return f.estimate(true)
		}
	}

	// K = P_pred·Hᵀ·S⁻¹.
	var k mat.Dense
	k.Mul(f.pPred, &sInv)

	// x = x_pred + K·(z − H·x_pred).
	innov := mat.NewVecDense(Dim, nil)
	innov.SubVec(mat.NewVecDense(Dim, z[:]), f.xPred)
	corr := mat.NewVecDense(Dim, nil)
	corr.MulVec(&k, innov)
	xNew := mat.NewVecDense(Dim, nil)
	xNew.AddVec(f.xPred, corr)

	// P = (I − K·H)·P_pred, then symmetrized to cancel round-off.
	var ikh, pNew mat.Dense
	ikh.Sub(eye(1.0), &k)
	pNew.Mul(&ikh, f.pPred)
	symmetrize(&pNew)

	f.x = xNew
	f.p = &pNew
	f.xPred, f.pPred = nil, nil

	return f.estimate(regularized)
}

func (f *Filter) estimate(regularized bool) Estimate {
	var e Estimate
	copy(e.State[:], f.x.RawVector().Data)
	e.CovTrace = mat.Trace(f.p)
	e.Regularized = regularized
	return e
}

// #endregion update

// #region forecast

// Forecast rolls the belief forward k steps with predict-only updates,
// accumulating process noise scaled by qScale at every step. The
// filter's own state is untouched; no measurement fusion happens.
func (f *Filter) Forecast(k int, qScale float64) (means [][Dim]float64, covs []*mat.Dense) {
	if k <= 0 {
		return nil, nil
	}
	if qScale < 1 {
		qScale = 1
	}

	x := mat.NewVecDense(Dim, nil)
	x.CloneFromVec(f.x)
	p := mat.NewDense(Dim, Dim, nil)
	p.CloneFrom(f.p)

	var qs mat.Dense
	qs.Scale(qScale, f.q)

	means = make([][Dim]float64, k)
	covs = make([]*mat.Dense, k)
	for i := 0; i < k; i++ {
		next := mat.NewVecDense(Dim, nil)
		next.MulVec(f.a, x)
		x = next

		var ap, pp mat.Dense
		ap.Mul(f.a, p)
		pp.Mul(&ap, f.a.T())
		pp.Add(&pp, &qs)
		p = mat.NewDense(Dim, Dim, nil)
		p.CloneFrom(&pp)

		copy(means[i][:], x.RawVector().Data)
		c := mat.NewDense(Dim, Dim, nil)
		c.CloneFrom(p)
		covs[i] = c
	}
	return means, covs
}

// #endregion forecast

// #region belief

// Belief snapshots the current posterior as plain data.
func (f *Filter) Belief() Belief {
	var b Belief
	copy(b.Mean[:], f.x.RawVector().Data)
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			b.Cov[i*Dim+j] = f.p.At(i, j)
		}
	}
	return b
}

// Restore replaces the posterior with a checkpointed belief.
func (f *Filter) Restore(b Belief) {
	f.x = mat.NewVecDense(Dim, append([]float64(nil), b.Mean[:]...))
	f.p = mat.NewDense(Dim, Dim, append([]float64(nil), b.Cov[:]...))
	f.xPred, f.pPred = nil, nil
}

// CovTrace returns the trace of the posterior covariance.
func (f *Filter) CovTrace() float64 { return mat.Trace(f.p) }

// #endregion belief

// #region helpers

func eye(v float64) *mat.Dense {
	m := mat.NewDense(Dim, Dim, nil)
	for i := 0; i < Dim; i++ {
		m.Set(i, i, v)
	}
	return m
}

func isCondition(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond)
}

func symmetrize(m *mat.Dense) {
	for i := 0; i < Dim; i++ {
		for j := i + 1; j < Dim; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

// #endregion helpers
