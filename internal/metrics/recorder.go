// Package metrics aggregates running framework metrics for one
// session. Everything is pull-computed: Snapshot has no side effects,
// and only the orchestrator feeds the recorder.
package metrics

// #region config

// Config tunes retrospective scoring.
type Config struct {
	// ForecastTolerance is the absolute error within which a matured
	// forecast counts as accurate.
	ForecastTolerance float64 `yaml:"forecast_tolerance"`
	// Threshold is the miscalibration level used to decide whether a
	// predicted episode materialized or an intervention worked.
	Threshold float64 `yaml:"threshold"`
	// RecoveryWindow is how many cycles an intervention has to bring
	// delta back under the threshold.
	RecoveryWindow int `yaml:"recovery_window"`
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{
		ForecastTolerance: 0.1,
		Threshold:         0.15,
		RecoveryWindow:    10,
	}
}

// #endregion config

// #region types

// Metrics is a point-in-time snapshot of session health.
type Metrics struct {
	Cycles        int     `json:"cycles"`
	MeanDelta     float64 `json:"mean_delta"`
	MeanLatencyMS float64 `json:"mean_latency_ms"`

	// ForecastAccuracy is the fraction of matured forecasts whose
	// horizon-end delta prediction landed within tolerance.
	ForecastAccuracy float64 `json:"forecast_accuracy"`
	ForecastsScored  int     `json:"forecasts_scored"`

	// FalsePositiveRate is the fraction of proactive triggers whose
	// predicted miscalibration never materialized.
	FalsePositiveRate float64 `json:"false_positive_rate"`
	ProactivesScored  int     `json:"proactives_scored"`

	// InterventionEffectiveness is the fraction of interventions
	// followed by delta returning below threshold within the window.
	InterventionEffectiveness float64 `json:"intervention_effectiveness"`
	InterventionsIssued       int     `json:"interventions_issued"`
	InterventionsScored       int     `json:"interventions_scored"`
}

type pendingForecast struct {
	dueCycle  int
	predicted float64
}

type pendingProactive struct {
	deadline     int
	materialized bool
}

type pendingIntervention struct {
	deadline  int
	recovered bool
}

// #endregion types

// #region recorder

// Recorder accumulates per-cycle evidence. Not safe for concurrent
// use; one session owns one recorder.
type Recorder struct {
	config Config

	cycles     int
	deltaSum   float64
	latencySum float64

	forecasts     []pendingForecast
	forecastHits  int
	forecastTotal int

	proactives     []pendingProactive
	falsePositives int
	proactiveTotal int

	interventions     []pendingIntervention
	effective         int
	interventionTotal int
	issued            int
}

// NewRecorder creates a recorder.
func NewRecorder(config Config) *Recorder {
	return &Recorder{config: config}
}

// #endregion recorder

// #region record

// RecordCycle folds in one completed cycle and settles any pending
// retrospective checks that mature at this cycle.
func (r *Recorder) RecordCycle(cycle int, delta, latencyMS float64) {
	r.cycles++
	r.deltaSum += delta
	r.latencySum += latencyMS

	// Forecast accuracy: score forecasts whose horizon elapsed.
	kept := r.forecasts[:0]
	for _, f := range r.forecasts {
		if cycle < f.dueCycle {
			kept = append(kept, f)
			continue
		}
		r.forecastTotal++
		if abs(f.predicted-delta) <= r.config.ForecastTolerance {
			r.forecastHits++
		}
	}
	r.forecasts = kept

	// Proactive triggers: watch for materialization, settle at deadline.
	keptP := r.proactives[:0]
	for _, p := range r.proactives {
		if delta > r.config.Threshold {
			p.materialized = true
		}
		if cycle < p.deadline {
			keptP = append(keptP, p)
			continue
		}
		r.proactiveTotal++
		if !p.materialized {
			r.falsePositives++
		}
	}
	r.proactives = keptP

	// Intervention effectiveness: recovery below threshold in window.
	keptI := r.interventions[:0]
	for _, iv := range r.interventions {
		if delta < r.config.Threshold {
			iv.recovered = true
		}
		if cycle < iv.deadline && !iv.recovered {
			keptI = append(keptI, iv)
			continue
		}
		r.interventionTotal++
		if iv.recovered {
			r.effective++
		}
	}
	r.interventions = keptI
}

// RecordForecast registers a forecast issued at the given cycle whose
// horizon-end delta prediction will be checked once horizon cycles
// elapse.
func (r *Recorder) RecordForecast(cycle, horizon int, predictedDelta float64) {
	r.forecasts = append(r.forecasts, pendingForecast{
		dueCycle:  cycle + horizon,
		predicted: predictedDelta,
	})
}

// RecordProactiveTrigger registers a proactive trigger issued at the
// given cycle, judged a false positive if no miscalibration appears
// within horizon cycles.
func (r *Recorder) RecordProactiveTrigger(cycle, horizon int) {
	r.proactives = append(r.proactives, pendingProactive{deadline: cycle + horizon})
}

// RecordIntervention registers an issued intervention for
// effectiveness scoring.
func (r *Recorder) RecordIntervention(cycle int) {
	r.issued++
	r.interventions = append(r.interventions, pendingIntervention{
		deadline: cycle + r.config.RecoveryWindow,
	})
}

// #endregion record

// #region snapshot

// Snapshot computes the current metrics. Pure read.
func (r *Recorder) Snapshot() Metrics {
	m := Metrics{
		Cycles:              r.cycles,
		ForecastsScored:     r.forecastTotal,
		ProactivesScored:    r.proactiveTotal,
		InterventionsIssued: r.issued,
		InterventionsScored: r.interventionTotal,
	}
	if r.cycles > 0 {
		m.MeanDelta = r.deltaSum / float64(r.cycles)
		m.MeanLatencyMS = r.latencySum / float64(r.cycles)
	}
	if r.forecastTotal > 0 {
		m.ForecastAccuracy = float64(r.forecastHits) / float64(r.forecastTotal)
	}
	if r.proactiveTotal > 0 {
		m.FalsePositiveRate = float64(r.falsePositives) / float64(r.proactiveTotal)
	}
	if r.interventionTotal > 0 {
		m.InterventionEffectiveness = float64(r.effective) / float64(r.interventionTotal)
	}
	return m
}

// #endregion snapshot

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
