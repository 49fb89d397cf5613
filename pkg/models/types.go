package models

// Direction selects which reconciliation passes a sync run executes.
type Direction string

const (
	DirectionBoth       Direction = "both"
	DirectionToRemote   Direction = "to_remote"
	DirectionFromRemote Direction = "from_remote"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionBoth, DirectionToRemote, DirectionFromRemote:
		return true
	}
	return false
}

// IncludesPush reports whether the local→remote pass runs.
func (d Direction) IncludesPush() bool {
	return d == DirectionBoth || d == DirectionToRemote
}

// IncludesPull reports whether the remote→local pass runs.
func (d Direction) IncludesPull() bool {
	return d == DirectionBoth || d == DirectionFromRemote
}

// ConflictPolicy decides which side survives when both stores hold a file
// at the same logical location.
type ConflictPolicy string

const (
	PolicyNewerWins  ConflictPolicy = "newer-wins"
	PolicyLocalWins  ConflictPolicy = "local-wins"
	PolicyRemoteWins ConflictPolicy = "remote-wins"
	PolicyKeepBoth   ConflictPolicy = "keep-both"
)

// Valid reports whether p is one of the known policies.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyNewerWins, PolicyLocalWins, PolicyRemoteWins, PolicyKeepBoth:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of the most recent sync run.
type RunStatus string

const (
	StatusNone       RunStatus = "none"
	StatusScheduled  RunStatus = "scheduled"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusPartial    RunStatus = "partial"
)
