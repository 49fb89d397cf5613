package models

import "time"

// Folder is a node in the local folder tree. ParentID 0 means the folder
// sits directly under the root.
type Folder struct {
	ID        int64
	Name      string
	ParentID  int64
	CreatedAt time.Time
}

// FileRecord represents one synchronizable file. LocalPath is relative to
// the configured content root. FolderID 0 means the record is unfiled.
//
// Filenames are not globally unique; lookups by filename may be ambiguous.
type FileRecord struct {
	ID         int64
	Filename   string
	LocalPath  string
	Size       int64
	ModifiedAt time.Time
	FolderID   int64
}
