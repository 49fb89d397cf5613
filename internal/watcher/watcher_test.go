package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediasync/pkg/models"
)

type recordingScheduler struct {
	mu    sync.Mutex
	calls []models.Direction
}

func (r *recordingScheduler) ScheduleSync(d models.Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingScheduler) last() models.Direction {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

func newTestWatcher(t *testing.T, allowed map[string]bool) (*Watcher, *recordingScheduler, string) {
	t.Helper()
	root := t.TempDir()
	sched := &recordingScheduler{}
	w, err := New(root, allowed, sched, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Stop() })
	return w, sched, root
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWriteBurstCoalescesToOneSync(t *testing.T) {
	_, sched, root := newTestWatcher(t, map[string]bool{"jpg": true})

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(root, "cat.jpg"), []byte("v"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !waitFor(t, 2*time.Second, func() bool { return sched.count() >= 1 }) {
		t.Fatal("no sync scheduled for a write burst")
	}
	// Let the debounce window drain fully, then confirm it stayed at one.
	time.Sleep(200 * time.Millisecond)
	if got := sched.count(); got != 1 {
		t.Errorf("scheduled %d syncs for one burst; want 1", got)
	}
	if sched.last() != models.DirectionToRemote {
		t.Errorf("direction = %q; want to_remote", sched.last())
	}
}

func TestDisallowedExtensionIgnored(t *testing.T) {
	_, sched, root := newTestWatcher(t, map[string]bool{"jpg": true})

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := sched.count(); got != 0 {
		t.Errorf("scheduled %d syncs for a disallowed extension; want 0", got)
	}
}

func TestNewSubdirectoryIsWatched(t *testing.T) {
	_, sched, root := newTestWatcher(t, map[string]bool{"jpg": true})

	sub := filepath.Join(root, "album")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Creating the directory itself schedules one sync; a write inside the
	// new directory must be seen too.
	if !waitFor(t, 2*time.Second, func() bool { return sched.count() >= 1 }) {
		t.Fatal("directory creation not observed")
	}
	before := sched.count()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "beach.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return sched.count() > before }) {
		t.Error("write inside a newly created subdirectory was not observed")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, _, _ := newTestWatcher(t, nil)
	if err := w.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
