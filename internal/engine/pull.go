package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mediasync/internal/remote"
	"mediasync/internal/retry"
	"mediasync/pkg/models"
)

// pullItem is one remote folder queued for processing, paired with the
// local folder its contents file into.
type pullItem struct {
	remotePath    string
	localFolderID int64
}

// pullRemote is the remote→local pass. The remote tree is walked with an
// explicit worklist rather than call recursion so arbitrarily deep trees
// cannot exhaust the stack.
func (e *Engine) pullRemote(ctx context.Context) error {
	if err := e.ensureRemoteRoot(ctx); err != nil {
		return err
	}

	downloaded, skipped := 0, 0
	work := []pullItem{{remotePath: e.cfg.RootPath, localFolderID: 0}}
	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		entries, err := e.remote.ListFolder(ctx, item.remotePath)
		if err != nil {
			e.logger.Warn("remote listing failed", "path", item.remotePath, "error", err)
			e.logActivity(fmt.Sprintf("could not list %s: %v", item.remotePath, err), "error")
			continue
		}

		for _, entry := range entries {
			if entry.IsFolder() {
				folderID, err := e.findOrCreateFolder(ctx, entry.Name, item.localFolderID)
				if err != nil {
					e.logger.Warn("local folder create failed", "name", entry.Name, "error", err)
					continue
				}
				work = append(work, pullItem{remotePath: entry.Path, localFolderID: folderID})
				continue
			}
			ok, err := e.pullFile(ctx, entry, item.localFolderID)
			if err != nil {
				e.logger.Warn("download failed", "path", entry.Path, "error", err)
				e.logActivity(fmt.Sprintf("download failed for %s: %v", entry.Name, err), "error")
				continue
			}
			if ok {
				downloaded++
			} else {
				skipped++
			}
		}
	}

	e.logActivity(fmt.Sprintf("download pass: %d downloaded, %d skipped", downloaded, skipped), "info")
	return nil
}

// findOrCreateFolder resolves a local folder by (name, parent), creating
// it when absent. Creation races with concurrent writers, so the whole
// check-then-create is retried.
func (e *Engine) findOrCreateFolder(ctx context.Context, name string, parent int64) (int64, error) {
	var id int64
	err := retry.Do(ctx, func() error {
		var err error
		id, err = e.folders.GetFolderByName(name, parent)
		if err == nil {
			return nil
		}
		id, err = e.folders.CreateFolder(name, parent)
		return err
	})
	return id, err
}

// pullFile reconciles one remote file into the local tree. Returns true
// when a download happened.
func (e *Engine) pullFile(ctx context.Context, entry remote.Entry, folderID int64) (bool, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name)), ".")
	if !e.cfg.AllowedExtensions[ext] {
		e.logger.Debug("extension not allowed, skipping", "name", entry.Name, "ext", ext)
		e.logActivity("skipped "+entry.Name+": extension not allowed", "info")
		return false, nil
	}

	filename := entry.Name
	existingID, lookupErr := e.folders.AttachmentByFilename(entry.Name)
	exists := lookupErr == nil
	overwriteID := int64(0)

	if exists {
		switch e.cfg.ConflictPolicy {
		case models.PolicyLocalWins:
			return false, e.ensureFiled(ctx, existingID, folderID)
		case models.PolicyNewerWins:
			rec, err := e.folders.GetAttachment(existingID)
			if err != nil {
				return false, err
			}
			// Equality favors no download.
			if !rec.ModifiedAt.Before(entry.Modified) {
				return false, e.ensureFiled(ctx, existingID, folderID)
			}
			overwriteID = existingID
		case models.PolicyKeepBoth:
			// Never overwrite: rename the incoming file with a timestamp
			// suffix derived from the remote modified time.
			ext := filepath.Ext(entry.Name)
			base := strings.TrimSuffix(entry.Name, ext)
			filename = fmt.Sprintf("%s-%s%s", base, entry.Modified.UTC().Format("20060102-150405"), ext)
		default: // remote-wins
			overwriteID = existingID
		}
	}

	staging := filepath.Join(e.cfg.StagingDir, uuid.NewString())
	defer os.Remove(staging)

	if err := e.remote.Download(ctx, entry.Path, staging); err != nil {
		return false, err
	}

	localRel := filename
	if err := e.installPayload(staging, localRel); err != nil {
		return false, err
	}

	rec := models.FileRecord{
		ID:         overwriteID,
		Filename:   filename,
		LocalPath:  localRel,
		Size:       entry.Size,
		ModifiedAt: entry.Modified,
	}
	var id int64
	if overwriteID != 0 {
		if err := e.folders.UpdateAttachment(rec); err != nil {
			return false, err
		}
		id = overwriteID
	} else {
		newID, err := e.folders.CreateAttachment(rec)
		if err != nil {
			return false, err
		}
		id = newID
	}

	// Filing can race with the folder-creation step, so the move retries.
	if err := retry.Do(ctx, func() error {
		return e.folders.MoveAttachmentToFolder(id, folderID)
	}); err != nil {
		return true, fmt.Errorf("filing %s into folder %d: %w", filename, folderID, err)
	}

	e.logger.Info("downloaded", "path", entry.Path, "file", filename)
	return true, nil
}

// ensureFiled moves a record into folderID when it is filed elsewhere.
func (e *Engine) ensureFiled(ctx context.Context, id, folderID int64) error {
	current, err := e.folders.FolderForAttachment(id)
	if err != nil {
		return err
	}
	if current == folderID {
		return nil
	}
	return retry.Do(ctx, func() error {
		return e.folders.MoveAttachmentToFolder(id, folderID)
	})
}

// installPayload moves a staged download into the content root. Rename is
// attempted first; a copy handles staging and content root living on
// different filesystems.
func (e *Engine) installPayload(staging, localRel string) error {
	dest := filepath.Join(e.cfg.ContentRoot, localRel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(staging, dest); err == nil {
		return nil
	}

	in, err := os.Open(staging)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
