// Package cache implements a content-hash-keyed store of decoded and
// validated modules (SPEC_FULL.md §3 "Compiled-module cache"). It mirrors
// the purpose of wazero's own internal/compilationcache — skip redundant
// decode/assign/rewrite/validate work for a module whose bytes haven't
// changed — but backs it with a real SQL store, modernc.org/sqlite,
// instead of a bespoke on-disk file format.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wasmkit/owi/internal/logging"
	"github.com/wasmkit/owi/internal/wasm"
	"github.com/wasmkit/owi/internal/wasm/binary"
)

// Store is a SHA-256-keyed cache of validated module bytes, opened over a
// SQLite file in a given directory (`owi run --cache DIR`).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed cache file inside
// dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("internal/cache: create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "modules.db"))
	if err != nil {
		return nil, fmt.Errorf("internal/cache: open: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS modules (
		hash TEXT PRIMARY KEY,
		validated_binary BLOB NOT NULL,
		size INTEGER NOT NULL,
		cached_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("internal/cache: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Key is the cache key for a module's raw bytes: hex-encoded SHA-256.
func Key(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Lookup returns the already-decoded, already-validated Module cached for
// raw's hash, if present. A cache hit re-runs only DecodeModule against
// the stored (already-validated) bytes — not assign/rewrite/validate —
// since storing the re-encoded post-rewrite bytes lets a hit skip exactly
// the expensive stages a miss has to pay for.
func (s *Store) Lookup(raw []byte) (*wasm.Module, bool, error) {
	key := Key(raw)
	row := s.db.QueryRow(`SELECT validated_binary FROM modules WHERE hash = ?`, key)
	var stored []byte
	if err := row.Scan(&stored); err != nil {
		if err == sql.ErrNoRows {
			logging.L().Debug("cache miss", zap.String("hash", key))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("internal/cache: lookup: %w", err)
	}
	m, err := binary.DecodeModule(stored)
	if err != nil {
		return nil, false, fmt.Errorf("internal/cache: decode cached entry: %w", err)
	}
	logging.L().Debug("cache hit", zap.String("hash", key))
	return m, true, nil
}

// Store records m (already fully decoded/assigned/rewritten/validated) as
// re-encoded bytes under raw's hash, so a later Lookup for the same raw
// bytes gets back the post-rewrite instructions. The encoding does not
// keep the Imported* projections or resolved block types; cmd/owi re-runs
// assign and rewrite on a hit to restore them.
func (s *Store) Store(raw []byte, m *wasm.Module) error {
	encoded := binary.EncodeModule(m)
	_, err := s.db.Exec(
		`INSERT INTO modules (hash, validated_binary, size) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET validated_binary = excluded.validated_binary, size = excluded.size`,
		Key(raw), encoded, len(encoded),
	)
	if err != nil {
		return fmt.Errorf("internal/cache: store: %w", err)
	}
	logging.L().Debug("cache store", zap.String("hash", Key(raw)), zap.Int("size", len(encoded)))
	return nil
}
