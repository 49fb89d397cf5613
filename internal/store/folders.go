package store

import (
	"database/sql"
	"errors"
	"fmt"

	"mediasync/pkg/models"
)

// AllFolders returns every folder, parents before children within a level.
func (s *Store) AllFolders() ([]models.Folder, error) {
	rows, err := s.Query(`
		SELECT id, name, parent_id, created_at
		FROM folders ORDER BY parent_id, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFolders(rows)
}

// FoldersByParent returns the direct children of parent (0 = root).
func (s *Store) FoldersByParent(parent int64) ([]models.Folder, error) {
	rows, err := s.Query(`
		SELECT id, name, parent_id, created_at
		FROM folders WHERE parent_id = ? ORDER BY name
	`, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFolders(rows)
}

func scanFolders(rows *sql.Rows) ([]models.Folder, error) {
	var folders []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.ParentID, &f.CreatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// GetFolder returns the folder with the given id, or ErrNotFound.
func (s *Store) GetFolder(id int64) (models.Folder, error) {
	var f models.Folder
	err := s.QueryRow(`
		SELECT id, name, parent_id, created_at FROM folders WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &f.ParentID, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Folder{}, fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	return f, err
}

// GetFolderByName returns the id of the folder with this name under parent,
// or ErrNotFound.
func (s *Store) GetFolderByName(name string, parent int64) (int64, error) {
	var id int64
	err := s.QueryRow(`
		SELECT id FROM folders WHERE name = ? AND parent_id = ? ORDER BY id LIMIT 1
	`, name, parent).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("folder %q under %d: %w", name, parent, ErrNotFound)
	}
	return id, err
}

// CreateFolder inserts a folder and notifies the observer.
func (s *Store) CreateFolder(name string, parent int64) (int64, error) {
	res, err := s.Exec(`INSERT INTO folders (name, parent_id) VALUES (?, ?)`, name, parent)
	if err != nil {
		return 0, fmt.Errorf("create folder %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notifyFolder(id)
	return id, nil
}

// RenameFolder updates the folder's display name and notifies the observer.
func (s *Store) RenameFolder(id int64, name string) error {
	res, err := s.Exec(`UPDATE folders SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	s.notifyFolder(id)
	return nil
}

// DeleteFolder removes a folder, unfiles its attachments, reparents its
// children to the root, and notifies the observer.
func (s *Store) DeleteFolder(id int64) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE files SET folder_id = 0 WHERE folder_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE folders SET parent_id = 0 WHERE parent_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyFolder(id)
	return nil
}
