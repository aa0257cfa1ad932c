// Command replay runs a recorded fixture through a fresh session and
// reports expectation failures. With --rate the playback is paced to a
// fixed number of cycles per second, which is useful for watching a
// scenario unfold live.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "fixture JSON file (required)")
	cyclesPerSec := flag.Float64("rate", 0, "pace playback at N cycles/second (0 = as fast as possible)")
	jsonOut := flag.Bool("json", false, "emit per-cycle status JSON to stdout")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -fixture <file.json> [-rate N] [-json]")
		os.Exit(2)
	}

	fx, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(1)
	}

	observe := buildObserver(*cyclesPerSec, *jsonOut)
	res, err := replay.RunWithObserver(fx, observe)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	printSummary(os.Stderr, res.Summary)

	if len(res.Failures) > 0 {
		for _, f := range res.Failures {
			fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
		}
		os.Exit(1)
	}
}

// #endregion main

// #region observer

func buildObserver(cyclesPerSec float64, jsonOut bool) func(calibration.Status) error {
	if cyclesPerSec <= 0 && !jsonOut {
		return nil
	}

	var limiter *rate.Limiter
	if cyclesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cyclesPerSec), 1)
	}
	enc := json.NewEncoder(os.Stdout)
	ctx := context.Background()

	return func(st calibration.Status) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if jsonOut {
			return enc.Encode(st)
		}
		return nil
	}
}

// #endregion observer

// #region summary

func printSummary(w *os.File, s replay.Summary) {
	fmt.Fprintf(w, "cycles=%d mean_delta=%.4f first_drift=%d recalibrations=%d proactive=%d reactive=%d\n",
		s.Cycles, s.MeanDelta, s.FirstDriftCycle, s.Recalibrations, s.Proactive, s.Reactive)
	fmt.Fprintf(w, "forecast_accuracy=%.2f false_positive_rate=%.2f intervention_effectiveness=%.2f\n",
		s.Metrics.ForecastAccuracy, s.Metrics.FalsePositiveRate, s.Metrics.InterventionEffectiveness)
}

// #endregion summary
