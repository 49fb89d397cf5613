package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mediasync/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), 5)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFolderCRUD(t *testing.T) {
	s := openTestStore(t)

	photos, err := s.CreateFolder("Photos", 0)
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	cats, err := s.CreateFolder("Cats", photos)
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	if id, err := s.GetFolderByName("Cats", photos); err != nil || id != cats {
		t.Errorf("GetFolderByName = %d, %v; want %d", id, err, cats)
	}
	if _, err := s.GetFolderByName("Dogs", photos); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing folder err = %v; want ErrNotFound", err)
	}

	children, err := s.FoldersByParent(photos)
	if err != nil || len(children) != 1 || children[0].ID != cats {
		t.Errorf("FoldersByParent = %+v, %v", children, err)
	}

	all, err := s.AllFolders()
	if err != nil || len(all) != 2 {
		t.Errorf("AllFolders = %d folders, %v; want 2", len(all), err)
	}

	if err := s.RenameFolder(cats, "Kittens"); err != nil {
		t.Fatalf("RenameFolder: %v", err)
	}
	f, err := s.GetFolder(cats)
	if err != nil || f.Name != "Kittens" {
		t.Errorf("GetFolder = %+v, %v; want Kittens", f, err)
	}
}

func TestDeleteFolderReparentsAndUnfiles(t *testing.T) {
	s := openTestStore(t)
	parent, _ := s.CreateFolder("Parent", 0)
	child, _ := s.CreateFolder("Child", parent)
	fileID, err := s.CreateAttachment(models.FileRecord{
		Filename: "a.jpg", LocalPath: "a.jpg", ModifiedAt: time.Now(), FolderID: parent,
	})
	if err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	if err := s.DeleteFolder(parent); err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if folder, _ := s.FolderForAttachment(fileID); folder != 0 {
		t.Errorf("attachment folder = %d; want 0 after delete", folder)
	}
	f, err := s.GetFolder(child)
	if err != nil || f.ParentID != 0 {
		t.Errorf("child = %+v, %v; want reparented to root", f, err)
	}
}

func TestAttachmentByFilenameFirstMatch(t *testing.T) {
	s := openTestStore(t)
	a, _ := s.CreateFolder("A", 0)
	b, _ := s.CreateFolder("B", 0)
	first, _ := s.CreateAttachment(models.FileRecord{Filename: "dup.jpg", LocalPath: "A/dup.jpg", ModifiedAt: time.Now(), FolderID: a})
	_, _ = s.CreateAttachment(models.FileRecord{Filename: "dup.jpg", LocalPath: "B/dup.jpg", ModifiedAt: time.Now(), FolderID: b})

	got, err := s.AttachmentByFilename("dup.jpg")
	if err != nil {
		t.Fatalf("AttachmentByFilename: %v", err)
	}
	if got != first {
		t.Errorf("id = %d; want first match %d", got, first)
	}
}

func TestMoveAttachmentRejectsUnknownFolder(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.CreateAttachment(models.FileRecord{Filename: "x.jpg", LocalPath: "x.jpg", ModifiedAt: time.Now()})
	if err := s.MoveAttachmentToFolder(id, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v; want ErrNotFound", err)
	}
}

func TestDuplicateMappingRejected(t *testing.T) {
	s := openTestStore(t)
	folder, _ := s.CreateFolder("Gallery", 0)

	if _, err := s.CreateMapping(folder, "gallery", 42); err != nil {
		t.Fatalf("CreateMapping: %v", err)
	}
	if _, err := s.CreateMapping(folder, "gallery", 42); !errors.Is(err, ErrDuplicateMapping) {
		t.Errorf("duplicate err = %v; want ErrDuplicateMapping", err)
	}

	mappings, err := s.Mappings()
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 {
		t.Errorf("mapping count = %d; want 1 after rejected duplicate", len(mappings))
	}

	// Same folder and field to a different target is a distinct mapping.
	if _, err := s.CreateMapping(folder, "gallery", 43); err != nil {
		t.Errorf("distinct target rejected: %v", err)
	}
}

func TestGalleryFieldRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetGalleryField(7, "gallery", []int64{3, 1, 2}); err != nil {
		t.Fatalf("SetGalleryField: %v", err)
	}
	ids, err := s.GetGalleryField(7, "gallery")
	if err != nil {
		t.Fatalf("GetGalleryField: %v", err)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 1 || ids[2] != 2 {
		t.Errorf("ids = %v; want [3 1 2] with order preserved", ids)
	}

	// Clearing writes an empty list, not a missing row.
	if err := s.SetGalleryField(7, "gallery", nil); err != nil {
		t.Fatalf("SetGalleryField clear: %v", err)
	}
	ids, err = s.GetGalleryField(7, "gallery")
	if err != nil || len(ids) != 0 {
		t.Errorf("cleared ids = %v, %v; want empty", ids, err)
	}
}

func TestBeginRunGuard(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.BeginRun(models.DirectionBoth)
	if err != nil || !ok {
		t.Fatalf("first BeginRun = %v, %v; want acquired", ok, err)
	}
	ok, err = s.BeginRun(models.DirectionBoth)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second BeginRun acquired the guard while a run was in progress")
	}

	if err := s.FinishRun(models.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	st, err := s.State()
	if err != nil {
		t.Fatal(err)
	}
	if st.Running || st.Status != models.StatusCompleted || st.CompletedAt.IsZero() {
		t.Errorf("state = %+v; want completed, not running, with timestamp", st)
	}

	ok, _ = s.BeginRun(models.DirectionToRemote)
	if !ok {
		t.Error("BeginRun after FinishRun should acquire the guard")
	}
}

func TestMarkScheduledDoesNotTouchRunningState(t *testing.T) {
	s := openTestStore(t)
	if ok, _ := s.BeginRun(models.DirectionBoth); !ok {
		t.Fatal("BeginRun failed")
	}
	if err := s.MarkScheduled(models.DirectionFromRemote); err != nil {
		t.Fatal(err)
	}
	st, _ := s.State()
	if st.Status != models.StatusInProgress {
		t.Errorf("status = %q; want in_progress preserved while running", st.Status)
	}
}

func TestActivityLogBounded(t *testing.T) {
	s := openTestStore(t) // cap 5

	for i := 0; i < 8; i++ {
		if err := s.Log("message", "info"); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Errorf("entries = %d; want pruned to cap 5", len(entries))
	}
	if len(entries) > 1 && entries[0].ID < entries[1].ID {
		t.Error("Recent should return newest first")
	}
}

type recordingObserver struct {
	folders []int64
	files   []int64
}

func (r *recordingObserver) OnFolderChanged(id int64) { r.folders = append(r.folders, id) }
func (r *recordingObserver) OnFileChanged(id int64)   { r.files = append(r.files, id) }

func TestObserverNotifications(t *testing.T) {
	s := openTestStore(t)
	obs := &recordingObserver{}
	s.SetObserver(obs)

	folder, _ := s.CreateFolder("Watched", 0)
	file, _ := s.CreateAttachment(models.FileRecord{Filename: "w.jpg", LocalPath: "w.jpg", ModifiedAt: time.Now()})
	_ = s.MoveAttachmentToFolder(file, folder)

	if len(obs.folders) != 1 || obs.folders[0] != folder {
		t.Errorf("folder notifications = %v; want [%d]", obs.folders, folder)
	}
	if len(obs.files) != 2 {
		t.Errorf("file notifications = %v; want create + move", obs.files)
	}
}
