package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/c360studio/artificer/artifact"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
    uuid VARCHAR(64) PRIMARY KEY,
    model VARCHAR(32) NOT NULL,
    type VARCHAR(128) NOT NULL,
    name TEXT,
    metadata BLOB NOT NULL,
    content BLOB,
    content_codec VARCHAR(16) NOT NULL DEFAULT 'none',
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts(model, type);
`

// SQLStore keeps artifacts in SQLite. Metadata is stored as its Atom
// entry; content is zstd-compressed when that makes it smaller.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at dsn and migrates it.
// dsn examples: "file:artificer.db" or ":memory:".
func OpenSQLite(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, a *artifact.Artifact, content []byte) error {
	if err := checkUUID(a.UUID); err != nil {
		return err
	}
	meta, err := artifact.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	codec, stored := CodecNone, []byte(nil)
	if content != nil {
		codec, stored = compressContent(content)
		if stored == nil {
			stored = []byte{}
		}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO artifacts (uuid, model, type, name, metadata, content, content_codec)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (uuid) DO UPDATE SET
    model = excluded.model,
    type = excluded.type,
    name = excluded.name,
    metadata = excluded.metadata,
    content = excluded.content,
    content_codec = excluded.content_codec,
    updated_at = datetime('now')`,
		a.UUID, a.Type.Model(), a.Type.Type(), a.Name, meta, stored, codec)
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, uuid string) (*artifact.Artifact, error) {
	var meta []byte
	err := s.db.QueryRowContext(ctx, `SELECT metadata FROM artifacts WHERE uuid = ?`, uuid).Scan(&meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	a, err := artifact.Unmarshal(meta)
	if err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	return a, nil
}

// Content implements Store.
func (s *SQLStore) Content(ctx context.Context, uuid string) ([]byte, error) {
	var (
		content []byte
		codec   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content, content_codec FROM artifacts WHERE uuid = ?`, uuid).Scan(&content, &codec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	if content == nil {
		return nil, ErrNoContent
	}
	return decompressContent(codec, content)
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Artifacts implements Store. Artifacts are returned in insertion order.
func (s *SQLStore) Artifacts(ctx context.Context) ([]*artifact.Artifact, error) {
	return s.query(ctx, `SELECT metadata FROM artifacts ORDER BY rowid`)
}

// ArtifactsOfType returns the artifacts of one model and type.
func (s *SQLStore) ArtifactsOfType(ctx context.Context, t artifact.ArtifactType) ([]*artifact.Artifact, error) {
	return s.query(ctx, `SELECT metadata FROM artifacts WHERE model = ? AND type = ? ORDER BY rowid`,
		t.Model(), t.Type())
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]*artifact.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*artifact.Artifact
	for rows.Next() {
		var meta []byte
		if err := rows.Scan(&meta); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a, err := artifact.Unmarshal(meta)
		if err != nil {
			return nil, fmt.Errorf("unmarshal artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
