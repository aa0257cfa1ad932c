// Command inspect lists the stored checkpoint versions and the
// intervention audit log for a session.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/checkpoint"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "SQLite checkpoint database (required)")
	sessionID := flag.String("session", "default", "session id")
	jsonOut := flag.Bool("json", false, "emit JSON instead of text")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect -db <file> [-session id] [-json]")
		os.Exit(2)
	}

	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	versions, err := store.ListVersions(*sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list versions: %v\n", err)
		os.Exit(1)
	}
	interventions, err := store.Interventions(*sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list interventions: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		out := struct {
			SessionID     string                       `json:"session_id"`
			Versions      []checkpoint.VersionInfo     `json:"versions"`
			Interventions []checkpoint.InterventionRow `json:"interventions"`
		}{*sessionID, versions, interventions}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("session %s: %d checkpoint(s), %d intervention(s)\n", *sessionID, len(versions), len(interventions))
	for _, v := range versions {
		parent := v.ParentID
		if parent == "" {
			parent = "-"
		}
		fmt.Printf("  version %s  cycle %-5d parent %s  %s\n", v.VersionID, v.Cycle, parent, v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	for _, r := range interventions {
		fmt.Printf("  intervention cycle %-5d %-10s %s\n", r.Cycle, r.Kind, r.Reason)
	}
}

// #endregion main
