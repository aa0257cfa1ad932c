// Command engine drives one calibration session over a JSONL
// observation stream and emits one status record per cycle.
//
// Input lines look like:
//
//	{"trust_level": 0.8, "reliability": 0.85, "signals": {"dwell_time": 0.4}}
//
// With --db the session is checkpointed periodically and resumed from
// the latest stored checkpoint on startup.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/checkpoint"
)

// #region input

type observation struct {
	TrustLevel  float64            `json:"trust_level"`
	Reliability float64            `json:"reliability"`
	Signals     map[string]float64 `json:"signals,omitempty"`
}

// #endregion input

// #region main

func main() {
	configPath := flag.String("config", "", "YAML config file (optional, defaults otherwise)")
	inputPath := flag.String("input", "", "JSONL observation file (default stdin)")
	dbPath := flag.String("db", "", "SQLite checkpoint database (optional)")
	sessionID := flag.String("session", "default", "session id for checkpointing")
	checkpointEvery := flag.Int("checkpoint-every", 25, "cycles between checkpoints")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store *checkpoint.Store
	if *dbPath != "" {
		store, err = checkpoint.NewStore(*dbPath)
		if err != nil {
			log.Fatalf("open checkpoint store: %v", err)
		}
		defer store.Close()
	}

	sess, err := openSession(cfg, store, *sessionID)
	if err != nil {
		log.Fatalf("session: %v", err)
	}

	in := os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	if err := run(sess, store, *sessionID, *checkpointEvery, in, os.Stdout); err != nil {
		log.Fatalf("run: %v", err)
	}

	m := sess.GetMetrics()
	fmt.Fprintf(os.Stderr, "cycles=%d mean_delta=%.4f interventions=%d forecast_accuracy=%.2f\n",
		m.Cycles, m.MeanDelta, m.InterventionsIssued, m.ForecastAccuracy)
}

// #endregion main

// #region config

func loadConfig(path string) (calibration.Config, error) {
	cfg := calibration.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	// Unmarshal over the defaults so absent keys keep their values.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// #endregion config

// #region session

// openSession resumes from the latest checkpoint when one exists,
// otherwise starts fresh.
func openSession(cfg calibration.Config, store *checkpoint.Store, sessionID string) (*calibration.Session, error) {
	if store != nil {
		cp, version, err := store.LoadLatest(sessionID)
		if err == nil {
			log.Printf("[ENGINE] resuming session %s from version %s (cycle %d)", sessionID, version, cp.Cycle)
			return calibration.RestoreSession(cfg, cp)
		}
		if !errors.Is(err, checkpoint.ErrNotFound) {
			return nil, err
		}
	}
	return calibration.NewSession(cfg)
}

// #endregion session

// #region run

func run(sess *calibration.Session, store *checkpoint.Store, sessionID string, every int, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)
	line := 0

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var obs observation
		if err := json.Unmarshal(raw, &obs); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		st, err := sess.Update(obs.TrustLevel, obs.Reliability, obs.Signals)
		if err != nil {
			// A bad observation aborts its cycle but not the stream.
			log.Printf("[ENGINE] line %d rejected: %v", line, err)
			continue
		}
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("encode status: %w", err)
		}

		if store != nil {
			if st.Intervention.ReactiveRequired {
				if err := store.LogIntervention(sessionID, st.Cycle, "reactive", st.Intervention.Reason); err != nil {
					return fmt.Errorf("audit log: %w", err)
				}
			} else if st.Intervention.ProactiveRecommended {
				if err := store.LogIntervention(sessionID, st.Cycle, "proactive", st.Intervention.Reason); err != nil {
					return fmt.Errorf("audit log: %w", err)
				}
			}
			if every > 0 && (st.Cycle+1)%every == 0 {
				if _, err := store.Save(sessionID, sess.Checkpoint()); err != nil {
					return fmt.Errorf("checkpoint at cycle %d: %w", st.Cycle, err)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if store != nil {
		if _, err := store.Save(sessionID, sess.Checkpoint()); err != nil {
			return fmt.Errorf("final checkpoint: %w", err)
		}
	}
	return nil
}

// #endregion run
