// Package engine reconciles the local folder tree, the remote object store
// and the gallery field targets. A run executes up to three passes
// (local→remote, remote→local, local→field-targets) under a deterministic
// conflict policy, guarded so at most one run is ever in flight.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mediasync/internal/remote"
	"mediasync/pkg/models"
)

// FolderStore is the folder-tree surface the engine depends on.
type FolderStore interface {
	AllFolders() ([]models.Folder, error)
	GetFolder(id int64) (models.Folder, error)
	GetFolderByName(name string, parent int64) (int64, error)
	CreateFolder(name string, parent int64) (int64, error)
	AttachmentsInFolder(folderID int64) ([]models.FileRecord, error)
	GetAttachment(id int64) (models.FileRecord, error)
	CreateAttachment(rec models.FileRecord) (int64, error)
	UpdateAttachment(rec models.FileRecord) error
	FolderForAttachment(id int64) (int64, error)
	MoveAttachmentToFolder(id, folderID int64) error
	AttachmentByFilename(name string) (int64, error)
}

// FieldTarget reads and writes gallery fields on content records.
type FieldTarget interface {
	SetGalleryField(targetID int64, fieldKey string, fileIDs []int64) error
	GetGalleryField(targetID int64, fieldKey string) ([]int64, error)
}

// MappingSource lists the persisted folder↔field mappings the gallery pass
// consumes read-only.
type MappingSource interface {
	Mappings() ([]models.FolderFieldMapping, error)
}

// ActivityLog is the append-only record of sync operations.
type ActivityLog interface {
	Log(message, level string) error
}

// RunStates owns the persisted run-state row and its check-and-set guard.
type RunStates interface {
	BeginRun(direction models.Direction) (bool, error)
	FinishRun(status models.RunStatus, errText string) error
	MarkScheduled(direction models.Direction) error
	State() (models.RunState, error)
}

// Config holds the engine's settings, owned by the configuration layer.
type Config struct {
	RootPath          string
	ConflictPolicy    models.ConflictPolicy
	AllowedExtensions map[string]bool
	ContentRoot       string
	StagingDir        string

	// Workers sizes the upload worker pool.
	Workers int
	// ScheduleDelay is how far in the future ScheduleSync queues a run.
	ScheduleDelay time.Duration
	// BusyRetryDelay is the re-enqueue backoff when a run finds the guard held.
	BusyRetryDelay time.Duration
	// ShowProgress renders a progress bar during the upload pass.
	ShowProgress bool
}

// Engine orchestrates the reconciliation passes.
type Engine struct {
	remote   remote.Store
	folders  FolderStore
	fields   FieldTarget
	mappings MappingSource
	activity ActivityLog
	runs     RunStates
	cfg      Config
	logger   *slog.Logger

	// syncing suppresses change events caused by the engine's own writes,
	// so a run does not endlessly reschedule itself.
	syncing atomic.Bool

	mu     sync.Mutex
	timers map[models.Direction]*time.Timer
}

// New wires an engine. logger may be nil.
func New(rs remote.Store, folders FolderStore, fields FieldTarget, mappings MappingSource,
	activity ActivityLog, runs RunStates, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ScheduleDelay <= 0 {
		cfg.ScheduleDelay = 5 * time.Second
	}
	if cfg.BusyRetryDelay <= 0 {
		cfg.BusyRetryDelay = 2 * time.Minute
	}
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = models.PolicyNewerWins
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		remote:   rs,
		folders:  folders,
		fields:   fields,
		mappings: mappings,
		activity: activity,
		runs:     runs,
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		timers:   make(map[models.Direction]*time.Timer),
	}
}

// ScheduleSync records the intent to sync and enqueues a deferred run,
// replacing any pending run for the same direction. It only records
// intent, so it has no failure mode worth surfacing.
func (e *Engine) ScheduleSync(direction models.Direction) {
	if !direction.Valid() {
		direction = models.DirectionBoth
	}
	if err := e.runs.MarkScheduled(direction); err != nil {
		e.logger.Warn("failed to persist scheduled status", "error", err)
	}
	e.scheduleAfter(direction, e.cfg.ScheduleDelay)
}

func (e *Engine) scheduleAfter(direction models.Direction, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[direction]; ok {
		t.Stop()
	}
	e.timers[direction] = time.AfterFunc(delay, func() {
		if err := e.RunSync(context.Background(), direction); err != nil {
			e.logger.Error("scheduled sync failed", "direction", direction, "error", err)
		}
	})
	e.logger.Debug("sync scheduled", "direction", direction, "delay", delay)
}

// Stop cancels all pending scheduled runs.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for d, t := range e.timers {
		t.Stop()
		delete(e.timers, d)
	}
}

// Status returns the persisted run state.
func (e *Engine) Status() (models.RunState, error) {
	return e.runs.State()
}

// OnFolderChanged implements the store's change observer: a folder
// mutation outside a run schedules a full re-sync.
func (e *Engine) OnFolderChanged(folderID int64) {
	if e.syncing.Load() {
		return
	}
	e.logger.Debug("folder changed, scheduling sync", "folder", folderID)
	e.ScheduleSync(models.DirectionBoth)
}

// OnFileChanged implements the store's change observer: a file mutation
// outside a run schedules an upload pass.
func (e *Engine) OnFileChanged(fileID int64) {
	if e.syncing.Load() {
		return
	}
	e.logger.Debug("file changed, scheduling sync", "file", fileID)
	e.ScheduleSync(models.DirectionToRemote)
}

// RunSync executes the reconciliation passes for direction. At most one
// run executes at a time: when the guard is already held the call
// re-enqueues itself instead of blocking or erroring. Each pass runs
// inside its own error boundary; the overall status is completed, failed
// or partial depending on how many passes succeeded.
func (e *Engine) RunSync(ctx context.Context, direction models.Direction) error {
	if !direction.Valid() {
		return fmt.Errorf("engine: unknown direction %q", direction)
	}

	acquired, err := e.runs.BeginRun(direction)
	if err != nil {
		return fmt.Errorf("engine: acquiring run guard: %w", err)
	}
	if !acquired {
		e.logger.Info("sync already in progress, deferring", "direction", direction)
		e.logActivity("sync already in progress, retry queued", "info")
		e.scheduleAfter(direction, e.cfg.BusyRetryDelay)
		return nil
	}

	e.syncing.Store(true)
	defer e.syncing.Store(false)

	start := time.Now()
	e.logger.Info("sync run starting", "direction", direction)

	if !e.remote.IsConnected(ctx) {
		const msg = "remote store unreachable or unauthenticated"
		e.logActivity(msg, "error")
		if err := e.runs.FinishRun(models.StatusFailed, msg); err != nil {
			e.logger.Error("failed to persist run state", "error", err)
		}
		return fmt.Errorf("engine: %s", msg)
	}

	var failures []string
	attempted := 0

	runPass := func(name string, fn func(context.Context) error) {
		attempted++
		if err := fn(ctx); err != nil {
			e.logger.Error("pass failed", "pass", name, "error", err)
			e.logActivity(fmt.Sprintf("%s pass failed: %v", name, err), "error")
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			return
		}
		e.logger.Info("pass complete", "pass", name)
	}

	if direction.IncludesPush() {
		runPass("local→remote", e.pushLocal)
	}
	if direction.IncludesPull() {
		runPass("remote→local", e.pullRemote)
	}
	runPass("field targets", e.syncGalleries)

	status := models.StatusCompleted
	switch {
	case len(failures) == attempted:
		status = models.StatusFailed
	case len(failures) > 0:
		status = models.StatusPartial
	}

	errText := strings.Join(failures, "; ")
	if err := e.runs.FinishRun(status, errText); err != nil {
		e.logger.Error("failed to persist run state", "error", err)
	}
	e.logger.Info("sync run finished",
		"direction", direction, "status", status, "duration", time.Since(start))
	e.logActivity(fmt.Sprintf("sync %s finished: %s", direction, status), "info")

	if status == models.StatusFailed {
		return fmt.Errorf("engine: all passes failed: %s", errText)
	}
	return nil
}

func (e *Engine) logActivity(message, level string) {
	if e.activity == nil {
		return
	}
	if err := e.activity.Log(message, level); err != nil {
		e.logger.Warn("failed to append activity log", "error", err)
	}
}
