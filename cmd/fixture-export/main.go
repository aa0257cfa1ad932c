// Command fixture-export synthesizes a drift-scenario fixture and
// writes it as JSON, for use with the replay command.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/replay"
)

// #region main

func main() {
	sc := replay.DefaultScenarioConfig()

	out := flag.String("out", "", "output fixture path (required)")
	flag.IntVar(&sc.Cycles, "cycles", sc.Cycles, "number of cycles")
	flag.Int64Var(&sc.Seed, "seed", sc.Seed, "random seed")
	flag.Float64Var(&sc.BaselineReliability, "baseline", sc.BaselineReliability, "baseline reliability mean")
	flag.Float64Var(&sc.ReliabilityStd, "std", sc.ReliabilityStd, "reliability noise std")
	flag.IntVar(&sc.DriftCycle, "drift-cycle", sc.DriftCycle, "cycle of the reliability shift (-1 disables)")
	flag.Float64Var(&sc.DriftedReliability, "drifted", sc.DriftedReliability, "reliability mean after the shift")
	flag.Float64Var(&sc.InitialTrust, "trust", sc.InitialTrust, "initial operator trust")
	flag.Parse()

	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export -out <file.json> [scenario flags]")
		os.Exit(2)
	}

	fx, err := replay.GenerateScenario(sc, calibration.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate scenario: %v\n", err)
		os.Exit(1)
	}
	if err := replay.WriteFixture(*out, fx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "wrote %s: %d observations\n", *out, len(fx.Observations))
}

// #endregion main
