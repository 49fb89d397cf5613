package models

import "time"

// RunState describes the most recent or in-flight synchronization run.
type RunState struct {
	Status      RunStatus `json:"status"`
	Direction   Direction `json:"direction"`
	LastError   string    `json:"last_error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	Running     bool      `json:"running"`
}

// FolderFieldMapping links a folder to a gallery field on a content record.
// The (FolderID, FieldKey, TargetID) triple is unique.
type FolderFieldMapping struct {
	ID        int64
	FolderID  int64
	FieldKey  string
	TargetID  int64
	CreatedAt time.Time
}

// ActivityEntry is one row of the bounded sync activity log.
type ActivityEntry struct {
	ID        int64
	Timestamp time.Time
	Level     string
	Message   string
}
