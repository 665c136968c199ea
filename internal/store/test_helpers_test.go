package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new SQLite store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createUsersTable creates and fills a small users table.
func createUsersTable(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(), `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, avatar BLOB);
		INSERT INTO users (id, name, avatar) VALUES (1, 'ann', x'0102'), (2, 'bob', NULL);
	`)
	if err != nil {
		t.Fatalf("create users table: %v", err)
	}
}
