// Package checkpoint persists session checkpoints and an intervention
// audit log in SQLite. This is host-side plumbing: the core engine
// never touches it.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/trust-calibration/go-engine/internal/calibration"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	version_id   TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	parent_id    TEXT,
	cycle        INTEGER NOT NULL,
	payload      BLOB NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES checkpoints(version_id)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, cycle);

CREATE TABLE IF NOT EXISTS intervention_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	cycle        INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	reason       TEXT,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interventions_session ON intervention_log(session_id, cycle);
`
// #endregion schema

// ErrNotFound is returned when a session has no stored checkpoint.
var ErrNotFound = errors.New("checkpoint: not found")

// #region types

// VersionInfo describes one stored checkpoint.
type VersionInfo struct {
	VersionID string
	ParentID  string
	Cycle     int
	CreatedAt time.Time
}

// InterventionRow is one audit log entry.
type InterventionRow struct {
	SessionID string
	Cycle     int
	Kind      string
	Reason    string
	CreatedAt time.Time
}

// #endregion types

// #region store

// Store manages checkpoints in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store

// #region save

// Save stores a checkpoint as a new version linked to the session's
// previous one, and returns the new version id.
func (s *Store) Save(sessionID string, cp calibration.Checkpoint) (string, error) {
	payload, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}

	var parent sql.NullString
	err = s.db.QueryRow(
		`SELECT version_id FROM checkpoints WHERE session_id = ? ORDER BY cycle DESC, created_at DESC LIMIT 1`,
		sessionID,
	).Scan(&parent.String)
	if err == nil {
		parent.Valid = true
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("find parent: %w", err)
	}

	versionID := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO checkpoints (version_id, session_id, parent_id, cycle, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		versionID, sessionID, nullable(parent), cp.Cycle, payload,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert checkpoint: %w", err)
	}
	return versionID, nil
}

// #endregion save

// #region load

// LoadLatest returns the most recent checkpoint for a session.
func (s *Store) LoadLatest(sessionID string) (calibration.Checkpoint, string, error) {
	var cp calibration.Checkpoint
	var versionID string
	var payload []byte

	err := s.db.QueryRow(
		`SELECT version_id, payload FROM checkpoints WHERE session_id = ? ORDER BY cycle DESC, created_at DESC LIMIT 1`,
		sessionID,
	).Scan(&versionID, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, "", ErrNotFound
	}
	if err != nil {
		return cp, "", fmt.Errorf("load checkpoint: %w", err)
	}
	if err := json.Unmarshal(payload, &cp); err != nil {
		return cp, "", fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, versionID, nil
}

// ListVersions returns every stored version for a session, oldest
// first.
func (s *Store) ListVersions(sessionID string) ([]VersionInfo, error) {
	rows, err := s.db.Query(
		`SELECT version_id, COALESCE(parent_id, ''), cycle, created_at
		 FROM checkpoints WHERE session_id = ? ORDER BY cycle ASC, created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var v VersionInfo
		var created string
		if err := rows.Scan(&v.VersionID, &v.ParentID, &v.Cycle, &created); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion load

// #region audit

// LogIntervention appends one entry to the audit log.
func (s *Store) LogIntervention(sessionID string, cycle int, kind, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO intervention_log (session_id, cycle, kind, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, cycle, kind, reason,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log intervention: %w", err)
	}
	return nil
}

// Interventions returns the audit log for a session in cycle order.
func (s *Store) Interventions(sessionID string) ([]InterventionRow, error) {
	rows, err := s.db.Query(
		`SELECT session_id, cycle, kind, COALESCE(reason, ''), created_at
		 FROM intervention_log WHERE session_id = ? ORDER BY cycle ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	defer rows.Close()

	var out []InterventionRow
	for rows.Next() {
		var r InterventionRow
		var created string
		if err := rows.Scan(&r.SessionID, &r.Cycle, &r.Kind, &r.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan intervention: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion audit

// #region helpers
func nullable(s sql.NullString) interface{} {
	if !s.Valid || s.String == "" {
		return nil
	}
	return s.String
}
// #endregion helpers
