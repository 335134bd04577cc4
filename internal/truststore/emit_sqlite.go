package truststore

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	RegisterEmitter(&SQLiteIndexEmitter{})
}

// SQLiteIndexEmitter produces the canonical table as a SQLite database, for
// downstream tooling that wants indexed lookups rather than the JSON index.
// The database is assembled in memory and serialized with VACUUM INTO, so
// the artifact is a clean, compact single-file copy. Entry positions record
// first-seen order.
type SQLiteIndexEmitter struct{}

// Format implements Emitter.
func (*SQLiteIndexEmitter) Format() string { return "sqlite-index" }

const sqliteIndexSchema = `
	CREATE TABLE entries (
		position    INTEGER PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		label       TEXT NOT NULL,
		anchor      INTEGER NOT NULL,
		source      TEXT NOT NULL,
		der         BLOB NOT NULL
	);
	CREATE TABLE trust (
		fingerprint TEXT NOT NULL,
		purpose     TEXT NOT NULL,
		disposition TEXT NOT NULL,
		PRIMARY KEY (fingerprint, purpose)
	);
`

// Emit implements Emitter.
func (e *SQLiteIndexEmitter) Emit(t *Table) ([]byte, error) {
	// Pin to a single connection — each :memory: connection is a separate
	// database. PRAGMAs come via the DSN so they survive reconnection.
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteIndexSchema); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	for i, entry := range t.Entries() {
		fp := entry.Fingerprint.Hex()
		anchor := 0
		if entry.Trust.IsAnchor() {
			anchor = 1
		}
		_, err := db.Exec(
			"INSERT INTO entries (position, fingerprint, label, anchor, source, der) VALUES (?, ?, ?, ?, ?, ?)",
			i, fp, entryLabel(entry), anchor, entry.Prov.Source, entry.DER,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting entry %s: %w", fp, err)
		}
		for _, p := range entry.Trust.Purposes() {
			_, err := db.Exec(
				"INSERT INTO trust (fingerprint, purpose, disposition) VALUES (?, ?, ?)",
				fp, string(p), entry.Trust[p].String(),
			)
			if err != nil {
				return nil, fmt.Errorf("inserting trust row %s/%s: %w", fp, p, err)
			}
		}
	}

	return vacuumToBytes(db)
}

// vacuumToBytes serializes the in-memory database via VACUUM INTO a
// temporary file and returns the file contents.
func vacuumToBytes(db *sqlx.DB) ([]byte, error) {
	tmp, err := os.CreateTemp("", "catrust-sqlite-*.db")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)

	// VACUUM INTO refuses to overwrite; the reserved name must be removed
	// first.
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("clearing temp file: %w", err)
	}
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("serializing database: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading serialized database: %w", err)
	}
	return data, nil
}
