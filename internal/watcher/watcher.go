// Package watcher monitors the local content root for file changes and
// turns bursts of filesystem events into a single scheduled upload sync.
package watcher

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mediasync/pkg/models"
)

// Scheduler is the engine surface the watcher drives.
type Scheduler interface {
	ScheduleSync(direction models.Direction)
}

// Watcher tails filesystem events under the content root. Events for the
// same burst of writes are coalesced behind a debounce window, so saving
// a file ten times produces one sync, not ten.
type Watcher struct {
	fw        *fsnotify.Watcher
	root      string
	allowed   map[string]bool
	scheduler Scheduler
	logger    *slog.Logger
	debounce  time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New builds a watcher over root. allowed filters events by file
// extension; directory events always pass so new subtrees get watched.
func New(root string, allowed map[string]bool, scheduler Scheduler, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fw:        fw,
		root:      root,
		allowed:   allowed,
		scheduler: scheduler,
		logger:    logger.With("component", "watcher"),
		debounce:  debounce,
		done:      make(chan struct{}),
	}, nil
}

// Start registers the content root tree and begins the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.running = true
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("watching content root", "root", w.root)
	return nil
}

// Stop shuts the event loop down and waits for it to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fw.Close()
	w.wg.Wait()
	return err
}

// addTree watches dir and every subdirectory beneath it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// New directories join the watch set so writes inside them are seen.
	if event.Has(fsnotify.Create) {
		if err := w.addTree(event.Name); err == nil {
			w.logger.Debug("watching new path", "path", event.Name)
		}
	}

	if !w.relevant(event.Name) {
		return
	}
	w.logger.Debug("content change", "path", event.Name, "op", event.Op.String())
	w.kick()
}

// relevant reports whether a path should trigger a sync. Paths without an
// extension are assumed to be directories, which always count.
func (w *Watcher) relevant(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return true
	}
	if len(w.allowed) == 0 {
		return true
	}
	return w.allowed[ext]
}

// kick arms (or re-arms) the debounce timer. When it fires, one upload
// sync is scheduled for the entire burst.
func (w *Watcher) kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Info("local changes settled, scheduling sync")
		w.scheduler.ScheduleSync(models.DirectionToRemote)
	})
}
