package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// connPragmas are applied to every pooled connection via the DSN.
var connPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

// DB is the cohortwatch SQLite database.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at dbPath, creating its directory,
// and applies pending migrations. The file is put in WAL mode so the
// watcher can read while an import writes.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	return open(dbPath, append([]string{"journal_mode(WAL)"}, connPragmas...), 0)
}

// OpenInMemory opens a private in-memory database, for tests.
func OpenInMemory() (*DB, error) {
	// Each connection to :memory: is its own database.
	return open(":memory:", connPragmas, 1)
}

func open(path string, pragmas []string, maxConns int) (*DB, error) {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	conn, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if maxConns > 0 {
		conn.SetMaxOpenConns(maxConns)
	}

	db := &DB{conn: conn, path: path}
	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path, or ":memory:".
func (db *DB) Path() string {
	return db.path
}
