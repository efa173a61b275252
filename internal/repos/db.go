package repos

import (
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// connPragmas run on every new connection the pool opens.
var connPragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

// withPragmas appends connPragmas to dsn as modernc _pragma parameters,
// leaving any the caller already set.
func withPragmas(dsn string) string {
	for _, p := range connPragmas {
		name := p[:strings.Index(p, "(")]
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=" + p
	}
	return dsn
}

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, err
	}
	// One connection: keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
-- Accounts
CREATE TABLE IF NOT EXISTS users(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  full_name TEXT NOT NULL,
  email TEXT NOT NULL,
  date_of_birth TEXT,
  password_hash TEXT NOT NULL,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));

-- Categories (names are case-sensitive as stored)
CREATE TABLE IF NOT EXISTS categories(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL
);

-- Items
CREATE TABLE IF NOT EXISTS items(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
  name TEXT NOT NULL,
  stock INTEGER NOT NULL DEFAULT 1 CHECK (stock >= 0),
  price TEXT NOT NULL,
  img TEXT,
  rfid TEXT UNIQUE COLLATE NOCASE
);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(category_id);
`
	_, err := db.Exec(schema)
	return err
}

// Store gates repo access until the database has been opened, so callers that
// race app start-up get ErrNotReady instead of blocking.
type Store struct {
	mu sync.RWMutex
	db *sqlx.DB
}

func NewStore() *Store { return &Store{} }

// Open opens dsn and marks the store ready.
func (s *Store) Open(dsn string) error {
	db, err := OpenDB(dsn)
	if err != nil {
		return err
	}
	s.Attach(db)
	return nil
}

// Attach marks the store ready on an already opened database.
func (s *Store) Attach(db *sqlx.DB) {
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
}

func (s *Store) DB() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotReady
	}
	return s.db, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
