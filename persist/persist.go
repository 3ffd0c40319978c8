// Package persist provides concrete Persister implementations for a
// scxmlgo.Interpreter's serialized PersistenceBlob, adapted from the
// teacher's internal/production/persister.go JSONPersister/YAMLPersister
// pair (file-per-id, directory-rooted, stdlib-only), generalized from a
// MachineSnapshot payload to the SCXML persistence blob and given a second,
// SQLite-backed implementation for deployments that want one durable store
// rather than a directory of files.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"
)

// Persister saves and loads a session's serialized persistence blob by
// session ID (spec.md §6 "constructor with persistence").
type Persister interface {
	Save(ctx context.Context, sessionID string, blob []byte) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
}

// ErrNotFound is returned by Load when no blob is stored for the session.
var ErrNotFound = errors.New("persist: session not found")

// JSONFilePersister is a stdlib-only, directory-of-files Persister, adapted
// from JSONPersister.
type JSONFilePersister struct {
	dir string
}

// NewJSONFilePersister creates a JSONFilePersister, ensuring dir exists.
func NewJSONFilePersister(dir string) (*JSONFilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: mkdir %s: %w", dir, err)
	}
	return &JSONFilePersister{dir: dir}, nil
}

func (p *JSONFilePersister) path(sessionID string) string {
	return filepath.Join(p.dir, sessionID+".json")
}

func (p *JSONFilePersister) Save(_ context.Context, sessionID string, blob []byte) error {
	if err := os.WriteFile(p.path(sessionID), blob, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", sessionID, err)
	}
	return nil
}

func (p *JSONFilePersister) Load(_ context.Context, sessionID string) ([]byte, error) {
	data, err := os.ReadFile(p.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("persist: read %s: %w", sessionID, err)
	}
	return data, nil
}

// yamlEnvelope lets a blob (itself JSON) round-trip through a YAML file
// unchanged, matching YAMLPersister's role as an alternate serialization.
type yamlEnvelope struct {
	Blob json.RawMessage `yaml:"blob"`
}

// YAMLFilePersister mirrors JSONFilePersister but stores the blob wrapped in
// a YAML document, adapted from YAMLPersister.
type YAMLFilePersister struct {
	dir string
}

// NewYAMLFilePersister creates a YAMLFilePersister, ensuring dir exists.
func NewYAMLFilePersister(dir string) (*YAMLFilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: mkdir %s: %w", dir, err)
	}
	return &YAMLFilePersister{dir: dir}, nil
}

func (p *YAMLFilePersister) path(sessionID string) string {
	return filepath.Join(p.dir, sessionID+".yaml")
}

func (p *YAMLFilePersister) Save(_ context.Context, sessionID string, blob []byte) error {
	data, err := yaml.Marshal(yamlEnvelope{Blob: blob})
	if err != nil {
		return fmt.Errorf("persist: yaml marshal %s: %w", sessionID, err)
	}
	if err := os.WriteFile(p.path(sessionID), data, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", sessionID, err)
	}
	return nil
}

func (p *YAMLFilePersister) Load(_ context.Context, sessionID string) ([]byte, error) {
	data, err := os.ReadFile(p.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("persist: read %s: %w", sessionID, err)
	}
	var env yamlEnvelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("persist: yaml unmarshal %s: %w", sessionID, err)
	}
	return env.Blob, nil
}

// SQLitePersister stores every session's blob as a row in a single SQLite
// database, for deployments that prefer one durable store over a directory
// of files.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (creating if needed) a SQLite database at path
// and ensures its sessions table exists.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		blob       BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: create schema: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func (p *SQLitePersister) Close() error { return p.db.Close() }

func (p *SQLitePersister) Save(ctx context.Context, sessionID string, blob []byte) error {
	const q = `INSERT INTO sessions (session_id, blob, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP`
	if _, err := p.db.ExecContext(ctx, q, sessionID, blob); err != nil {
		return fmt.Errorf("persist: save %s: %w", sessionID, err)
	}
	return nil
}

func (p *SQLitePersister) Load(ctx context.Context, sessionID string) ([]byte, error) {
	const q = `SELECT blob FROM sessions WHERE session_id = ?`
	var blob []byte
	err := p.db.QueryRowContext(ctx, q, sessionID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("persist: load %s: %w", sessionID, err)
	}
	return blob, nil
}
