package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cheggaaa/pb/v3"

	"mediasync/internal/remote"
	"mediasync/pkg/models"
)

// ensureRemoteRoot creates the configured root path when the metadata
// probe reports it missing.
func (e *Engine) ensureRemoteRoot(ctx context.Context) error {
	_, err := e.remote.GetMetadata(ctx, e.cfg.RootPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("probe root %s: %w", e.cfg.RootPath, err)
	}
	if err := e.remote.CreateFolder(ctx, e.cfg.RootPath); err != nil {
		return fmt.Errorf("create root %s: %w", e.cfg.RootPath, err)
	}
	e.logActivity("created remote root "+e.cfg.RootPath, "info")
	return nil
}

// pushLocal is the local→remote pass: mirror every local folder as a
// remote folder, then upload each contained file subject to the conflict
// policy. Per-folder and per-file failures are logged and skipped.
func (e *Engine) pushLocal(ctx context.Context) error {
	if err := e.ensureRemoteRoot(ctx); err != nil {
		return err
	}

	folders, err := e.folders.AllFolders()
	if err != nil {
		return fmt.Errorf("list local folders: %w", err)
	}

	remotePaths := make(map[int64]string, len(folders))
	for _, f := range folders {
		p := e.remoteFolderPath(f)
		remotePaths[f.ID] = p
		if _, err := e.remote.GetMetadata(ctx, p); err == nil {
			continue
		} else if !errors.Is(err, remote.ErrNotFound) {
			e.logger.Warn("remote folder probe failed", "path", p, "error", err)
			continue
		}
		if err := e.remote.CreateFolder(ctx, p); err != nil {
			e.logger.Warn("remote folder create failed", "path", p, "error", err)
			e.logActivity(fmt.Sprintf("could not create remote folder %s: %v", p, err), "warning")
			continue
		}
		e.logger.Info("created remote folder", "path", p)
	}

	type job struct {
		rec        models.FileRecord
		folderPath string
	}
	var jobs []job
	for _, f := range folders {
		files, err := e.folders.AttachmentsInFolder(f.ID)
		if err != nil {
			e.logger.Warn("listing folder attachments failed", "folder", f.ID, "error", err)
			continue
		}
		for _, rec := range files {
			jobs = append(jobs, job{rec: rec, folderPath: remotePaths[f.ID]})
		}
	}

	var bar *pb.ProgressBar
	if e.cfg.ShowProgress {
		bar = pb.StartNew(len(jobs))
		defer bar.Finish()
	}

	// Uploads fan out over a fixed worker pool; ordering between files
	// does not matter, only the counts do.
	workers := e.cfg.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}

	var uploaded, skipped atomic.Int64
	work := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range work {
				if e.pushFile(ctx, j.rec, j.folderPath) {
					uploaded.Add(1)
				} else {
					skipped.Add(1)
				}
				if bar != nil {
					bar.Increment()
				}
			}
		}()
	}
	for _, j := range jobs {
		work <- j
	}
	close(work)
	wg.Wait()

	e.logActivity(fmt.Sprintf("upload pass: %d uploaded, %d skipped", uploaded.Load(), skipped.Load()), "info")
	return nil
}

// pushFile uploads one record, honoring the conflict policy. Returns true
// when an upload happened.
func (e *Engine) pushFile(ctx context.Context, rec models.FileRecord, folderPath string) bool {
	local := filepath.Join(e.cfg.ContentRoot, rec.LocalPath)
	if _, err := os.Stat(local); err != nil {
		e.logger.Warn("local file missing, skipping upload", "file", rec.Filename, "path", local)
		e.logActivity("missing local file "+rec.Filename, "warning")
		return false
	}

	dest := remoteFilePath(folderPath, rec.Filename)
	existing, err := e.remote.GetMetadata(ctx, dest)
	switch {
	case err == nil:
		if !e.shouldUpload(rec, existing) {
			e.logger.Debug("upload skipped by conflict policy", "path", dest)
			return false
		}
	case errors.Is(err, remote.ErrNotFound):
		// Free slot, upload unconditionally.
	default:
		e.logger.Warn("remote probe failed, skipping upload", "path", dest, "error", err)
		return false
	}

	if err := e.remote.Upload(ctx, local, dest); err != nil {
		e.logger.Warn("upload failed", "path", dest, "error", err)
		e.logActivity(fmt.Sprintf("upload failed for %s: %v", rec.Filename, err), "error")
		return false
	}
	e.logger.Info("uploaded", "path", dest)
	return true
}

// shouldUpload applies the conflict policy when the destination is taken.
// keep-both governs the download direction; for uploads it falls back to
// the newer-wins comparison.
func (e *Engine) shouldUpload(rec models.FileRecord, existing remote.Entry) bool {
	switch e.cfg.ConflictPolicy {
	case models.PolicyRemoteWins:
		return false
	case models.PolicyLocalWins:
		return true
	default:
		return rec.ModifiedAt.After(existing.Modified)
	}
}
