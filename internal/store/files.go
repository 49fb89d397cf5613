package store

import (
	"database/sql"
	"errors"
	"fmt"

	"mediasync/pkg/models"
)

// AttachmentsInFolder returns the file records filed under a folder,
// ordered by id so gallery field values are stable across runs.
func (s *Store) AttachmentsInFolder(folderID int64) ([]models.FileRecord, error) {
	rows, err := s.Query(`
		SELECT id, filename, local_path, size, modified_at, folder_id
		FROM files WHERE folder_id = ? ORDER BY id
	`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.FileRecord
	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(&f.ID, &f.Filename, &f.LocalPath, &f.Size, &f.ModifiedAt, &f.FolderID); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetAttachment returns the file record with the given id, or ErrNotFound.
func (s *Store) GetAttachment(id int64) (models.FileRecord, error) {
	var f models.FileRecord
	err := s.QueryRow(`
		SELECT id, filename, local_path, size, modified_at, folder_id
		FROM files WHERE id = ?
	`, id).Scan(&f.ID, &f.Filename, &f.LocalPath, &f.Size, &f.ModifiedAt, &f.FolderID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FileRecord{}, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	return f, err
}

// AttachmentByFilename returns the id of the first record carrying this
// filename, lowest id winning.
//
// Filenames are not unique, so this lookup is ambiguous when two folders
// hold same-named files. All filename resolution funnels through here so
// the semantics can be hardened in one place later.
func (s *Store) AttachmentByFilename(name string) (int64, error) {
	var id int64
	err := s.QueryRow(`
		SELECT id FROM files WHERE filename = ? ORDER BY id LIMIT 1
	`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	return id, err
}

// CreateAttachment inserts a file record and notifies the observer.
func (s *Store) CreateAttachment(rec models.FileRecord) (int64, error) {
	res, err := s.Exec(`
		INSERT INTO files (filename, local_path, size, modified_at, folder_id)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Filename, rec.LocalPath, rec.Size, rec.ModifiedAt, rec.FolderID)
	if err != nil {
		return 0, fmt.Errorf("create file %q: %w", rec.Filename, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notifyFile(id)
	return id, nil
}

// UpdateAttachment rewrites a record's payload metadata.
func (s *Store) UpdateAttachment(rec models.FileRecord) error {
	res, err := s.Exec(`
		UPDATE files SET filename = ?, local_path = ?, size = ?, modified_at = ?
		WHERE id = ?
	`, rec.Filename, rec.LocalPath, rec.Size, rec.ModifiedAt, rec.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d: %w", rec.ID, ErrNotFound)
	}
	s.notifyFile(rec.ID)
	return nil
}

// FolderForAttachment returns the folder a record is filed under, or
// ErrNotFound for unknown records. Unfiled records return 0.
func (s *Store) FolderForAttachment(id int64) (int64, error) {
	var folderID int64
	err := s.QueryRow(`SELECT folder_id FROM files WHERE id = ?`, id).Scan(&folderID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	return folderID, err
}

// MoveAttachmentToFolder refiles a record and notifies the observer.
func (s *Store) MoveAttachmentToFolder(id, folderID int64) error {
	if folderID != 0 {
		if _, err := s.GetFolder(folderID); err != nil {
			return err
		}
	}
	res, err := s.Exec(`UPDATE files SET folder_id = ? WHERE id = ?`, folderID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	s.notifyFile(id)
	return nil
}

// DeleteAttachment removes a record and notifies the observer.
func (s *Store) DeleteAttachment(id int64) error {
	res, err := s.Exec(`DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	s.notifyFile(id)
	return nil
}
