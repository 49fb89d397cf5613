package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mediasync/pkg/models"
)

// CreateMapping records a folder↔field mapping. Duplicate (folder, field,
// target) triples are rejected with ErrDuplicateMapping.
func (s *Store) CreateMapping(folderID int64, fieldKey string, targetID int64) (models.FolderFieldMapping, error) {
	res, err := s.Exec(`
		INSERT INTO mappings (folder_id, field_key, target_id) VALUES (?, ?, ?)
	`, folderID, fieldKey, targetID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.FolderFieldMapping{}, ErrDuplicateMapping
		}
		return models.FolderFieldMapping{}, fmt.Errorf("create mapping: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.FolderFieldMapping{}, err
	}
	return s.getMapping(id)
}

func (s *Store) getMapping(id int64) (models.FolderFieldMapping, error) {
	var m models.FolderFieldMapping
	err := s.QueryRow(`
		SELECT id, folder_id, field_key, target_id, created_at FROM mappings WHERE id = ?
	`, id).Scan(&m.ID, &m.FolderID, &m.FieldKey, &m.TargetID, &m.CreatedAt)
	return m, err
}

// Mappings returns every folder↔field mapping.
func (s *Store) Mappings() ([]models.FolderFieldMapping, error) {
	rows, err := s.Query(`
		SELECT id, folder_id, field_key, target_id, created_at FROM mappings ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FolderFieldMapping
	for rows.Next() {
		var m models.FolderFieldMapping
		if err := rows.Scan(&m.ID, &m.FolderID, &m.FieldKey, &m.TargetID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMapping removes a mapping by id.
func (s *Store) DeleteMapping(id int64) error {
	res, err := s.Exec(`DELETE FROM mappings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mapping %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetGalleryField overwrites the ordered file-id list held by a gallery
// field. An empty list clears the field.
func (s *Store) SetGalleryField(targetID int64, fieldKey string, fileIDs []int64) error {
	if fileIDs == nil {
		fileIDs = []int64{}
	}
	encoded, err := json.Marshal(fileIDs)
	if err != nil {
		return err
	}
	_, err = s.Exec(`
		INSERT INTO gallery_fields (target_id, field_key, file_ids, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (target_id, field_key)
		DO UPDATE SET file_ids = excluded.file_ids, updated_at = CURRENT_TIMESTAMP
	`, targetID, fieldKey, string(encoded))
	if err != nil {
		return fmt.Errorf("set gallery field %q on %d: %w", fieldKey, targetID, err)
	}
	return nil
}

// GetGalleryField returns the ordered file-id list of a gallery field.
// A field that was never set reads as empty.
func (s *Store) GetGalleryField(targetID int64, fieldKey string) ([]int64, error) {
	var encoded string
	err := s.QueryRow(`
		SELECT file_ids FROM gallery_fields WHERE target_id = ? AND field_key = ?
	`, targetID, fieldKey).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return []int64{}, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return nil, fmt.Errorf("gallery field %q on %d: %w", fieldKey, targetID, err)
	}
	return ids, nil
}
