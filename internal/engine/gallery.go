package engine

import (
	"context"
	"fmt"
)

// syncGalleries is the local→field-targets pass. It always runs,
// regardless of direction, and is an authoritative overwrite: each mapped
// gallery field is set to the full ordered id list of its source folder,
// or cleared when the folder is empty. No conflict policy applies.
func (e *Engine) syncGalleries(ctx context.Context) error {
	mappings, err := e.mappings.Mappings()
	if err != nil {
		return fmt.Errorf("list folder↔field mappings: %w", err)
	}

	updated := 0
	for _, m := range mappings {
		if err := ctx.Err(); err != nil {
			return err
		}
		files, err := e.folders.AttachmentsInFolder(m.FolderID)
		if err != nil {
			e.logger.Warn("listing mapped folder failed", "folder", m.FolderID, "error", err)
			continue
		}
		ids := make([]int64, 0, len(files))
		for _, f := range files {
			ids = append(ids, f.ID)
		}
		if err := e.fields.SetGalleryField(m.TargetID, m.FieldKey, ids); err != nil {
			e.logger.Warn("gallery field update failed",
				"target", m.TargetID, "field", m.FieldKey, "error", err)
			e.logActivity(fmt.Sprintf("field %s on record %d not updated: %v", m.FieldKey, m.TargetID, err), "error")
			continue
		}
		updated++
	}

	e.logActivity(fmt.Sprintf("field pass: %d of %d mappings updated", updated, len(mappings)), "info")
	return nil
}
