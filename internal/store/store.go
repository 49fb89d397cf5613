// Package store persists every piece of mediasync state in one SQLite
// database: the folder tree, file records, folder↔field mappings, gallery
// field values, the sync run state and the activity log.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound reports a missing folder, file record or mapping.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateMapping reports an attempt to create a folder↔field mapping
// that already exists for the same (folder, field, target) triple.
var ErrDuplicateMapping = errors.New("store: duplicate mapping")

// Observer receives change notifications from mutating tree operations so
// the sync engine can schedule a re-sync.
type Observer interface {
	OnFolderChanged(folderID int64)
	OnFileChanged(fileID int64)
}

// Store is a database handle plus the observer wiring.
type Store struct {
	*sql.DB
	activityCap int
	observer    Observer
}

// Open opens (creating if necessary) the database at path. activityCap
// bounds the activity log; values below 1 fall back to 500.
func Open(path string, activityCap int) (*Store, error) {
	if activityCap < 1 {
		activityCap = 500
	}
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	s := &Store{DB: sqlDB, activityCap: activityCap}
	if err := s.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.Exec(`
		CREATE TABLE IF NOT EXISTS folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			parent_id INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id, name);
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			local_path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			modified_at DATETIME NOT NULL,
			folder_id INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_files_folder ON files(folder_id);
		CREATE INDEX IF NOT EXISTS idx_files_filename ON files(filename);
		CREATE TABLE IF NOT EXISTS mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			folder_id INTEGER NOT NULL,
			field_key TEXT NOT NULL,
			target_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (folder_id, field_key, target_id)
		);
		CREATE TABLE IF NOT EXISTS gallery_fields (
			target_id INTEGER NOT NULL,
			field_key TEXT NOT NULL,
			file_ids TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (target_id, field_key)
		);
		CREATE TABLE IF NOT EXISTS sync_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			status TEXT NOT NULL DEFAULT 'none',
			direction TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			completed_at DATETIME,
			running INTEGER NOT NULL DEFAULT 0
		);
		INSERT OR IGNORE INTO sync_state (id) VALUES (1);
		CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			level TEXT NOT NULL,
			message TEXT NOT NULL
		);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
		PRAGMA foreign_keys=ON;
	`)
	if err != nil {
		return fmt.Errorf("store: initialize schema: %w", err)
	}
	return nil
}

// SetObserver registers the change observer. Pass nil to detach.
func (s *Store) SetObserver(o Observer) {
	s.observer = o
}

func (s *Store) notifyFolder(id int64) {
	if s.observer != nil {
		s.observer.OnFolderChanged(id)
	}
}

func (s *Store) notifyFile(id int64) {
	if s.observer != nil {
		s.observer.OnFileChanged(id)
	}
}
