package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mastobridge/mastobridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// Repositories contains all persistent stores
type Repositories struct {
	Sessions repo.SessionRepo
	Pending  repo.PendingLoginRepo
	Apps     repo.InstanceAppRepo
	Mappings repo.MappingRepo
	Cursors  repo.CursorRepo

	db *sql.DB
}

// NewRepositories opens the bridge database and creates all stores
func NewRepositories(dbPath string) (*Repositories, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent workers
	db.SetMaxOpenConns(1)

	sessions, err := NewSessionRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	pending, err := NewPendingLoginRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	apps, err := NewInstanceAppRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	mappings, err := NewMappingRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	cursors, err := NewCursorRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repositories{
		Sessions: sessions,
		Pending:  pending,
		Apps:     apps,
		Mappings: mappings,
		Cursors:  cursors,
		db:       db,
	}, nil
}

// Close closes the database connection
func (r *Repositories) Close() error {
	return r.db.Close()
}
