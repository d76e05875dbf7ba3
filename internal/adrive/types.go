package adrive

import "time"

// Node types as reported by the service.
const (
	TypeFile   = "file"
	TypeFolder = "folder"
)

// Async task states. Any other value means the task is still running.
const (
	TaskSucceed   = "Succeed"
	TaskFailed    = "Failed"
	TaskCancelled = "Cancelled"
	TaskUnknown   = "Unknown"
)

// Node is a file or folder inside a share or drive. Fields are normalized
// from the service response; callers never see raw API data.
type Node struct {
	ID        string
	Name      string
	Type      string // TypeFile or TypeFolder
	ParentID  string
	Size      int64
	UpdatedAt time.Time // zero if the service omitted it
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	return n.Type == TypeFolder
}

// ShareInfo is the anonymous metadata of a share.
type ShareInfo struct {
	Name       string
	FileCount  int
	Creator    string
	Expiration string // empty = never expires
	Roots      []Node // top-level items of the share
}

// CopyResult is one sub-response of a batched copy. Status is the per-item
// HTTP-style status (201 copied, 202 accepted asynchronously); zero when
// the service returned no sub-response at all.
type CopyResult struct {
	ID          string
	Status      int
	FileID      string
	AsyncTaskID string
	Code        string
	Message     string
}

// AsyncTask is the state of a server-side task such as a whole-folder copy.
type AsyncTask struct {
	ID              string
	State           string
	TotalProcess    int
	ConsumedProcess int
	Code            string
	Message         string
}

// Terminal reports whether the task reached Succeed, Failed, or Cancelled.
func (t *AsyncTask) Terminal() bool {
	switch t.State {
	case TaskSucceed, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}
