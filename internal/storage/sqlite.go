package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS flow_fingerprints (
			flow_name TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS deck_artifacts (
			run_id TEXT,
			client_id TEXT,
			object_key TEXT,
			generated_at DATETIME NOT NULL,
			PRIMARY KEY (run_id, client_id)
		);`,
		`CREATE TABLE IF NOT EXISTS deck_sections (
			run_id TEXT,
			client_id TEXT,
			section_id TEXT,
			flow_name TEXT,
			evidence_items INTEGER,
			query_failures INTEGER,
			chars INTEGER,
			status TEXT,
			PRIMARY KEY (run_id, client_id, section_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_client ON deck_artifacts(client_id, generated_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- Fingerprints ---

func (s *SQLiteStore) Fingerprint(ctx context.Context, flowName string) (string, bool, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, "SELECT fingerprint FROM flow_fingerprints WHERE flow_name = ?", flowName).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read fingerprint for %s: %w", flowName, err)
	}
	return fp, true, nil
}

func (s *SQLiteStore) SetFingerprint(ctx context.Context, flowName, fp string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_fingerprints (flow_name, fingerprint, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(flow_name) DO UPDATE SET
			fingerprint=excluded.fingerprint,
			updated_at=excluded.updated_at
	`, flowName, fp, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write fingerprint for %s: %w", flowName, err)
	}
	return nil
}

// --- Ledger ---

// RecordArtifact upserts the deck row and replaces its section rows.
func (s *SQLiteStore) RecordArtifact(ctx context.Context, a Artifact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deck_artifacts (run_id, client_id, object_key, generated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, client_id) DO UPDATE SET
			object_key=excluded.object_key,
			generated_at=excluded.generated_at
	`, a.RunID, a.ClientID, a.Key, a.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM deck_sections WHERE run_id = ? AND client_id = ?", a.RunID, a.ClientID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deck_sections (run_id, client_id, section_id, flow_name, evidence_items, query_failures, chars, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sec := range a.Sections {
		if _, err := stmt.ExecContext(ctx, a.RunID, a.ClientID, sec.SectionID, sec.FlowName, sec.EvidenceItems, sec.QueryFailures, sec.Chars, sec.Status); err != nil {
			return fmt.Errorf("failed to record section %s: %w", sec.SectionID, err)
		}
	}

	return tx.Commit()
}

// ListArtifacts returns the newest decks first. An empty clientID lists all
// clients; limit <= 0 means no limit.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, clientID string, limit int) ([]Artifact, error) {
	query := "SELECT run_id, client_id, object_key, generated_at FROM deck_artifacts"
	var args []any
	if clientID != "" {
		query += " WHERE client_id = ?"
		args = append(args, clientID)
	}
	query += " ORDER BY generated_at DESC, run_id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.ClientID, &a.Key, &a.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		secs, err := s.loadSections(ctx, out[i].RunID, out[i].ClientID)
		if err != nil {
			return nil, err
		}
		out[i].Sections = secs
	}
	return out, nil
}

func (s *SQLiteStore) loadSections(ctx context.Context, runID, clientID string) ([]SectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, flow_name, evidence_items, query_failures, chars, status
		FROM deck_sections WHERE run_id = ? AND client_id = ? ORDER BY rowid
	`, runID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var out []SectionRecord
	for rows.Next() {
		var r SectionRecord
		if err := rows.Scan(&r.SectionID, &r.FlowName, &r.EvidenceItems, &r.QueryFailures, &r.Chars, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
