package domain

import "time"

// TriggerType says when a catalog entry is re-inferred.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSchedule  TriggerType = "schedule"   // TriggerConfig is a cron expression
	TriggerFileWatch TriggerType = "file_watch" // TriggerConfig is the watched path
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// CatalogEntry is a registered resource. Descriptor holds the inferred
// resource descriptor as JSON.
type CatalogEntry struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Path          string      `json:"path"`
	Descriptor    string      `json:"descriptor"`
	TriggerType   TriggerType `json:"triggerType"`
	TriggerConfig string      `json:"triggerConfig"`
	Enabled       bool        `json:"enabled"`
	LastRunAt     time.Time   `json:"lastRunAt"`
	LastStatus    string      `json:"lastStatus"`
	LastError     string      `json:"lastError"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// InferenceRun is the log of one inference pass over an entry.
type InferenceRun struct {
	ID         string    `json:"id"`
	EntryID    string    `json:"entryId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`
	Rows       int       `json:"rows"`
	Bytes      int64     `json:"bytes"`
	SHA256     string    `json:"sha256"`
	Error      string    `json:"error,omitempty"`
}

// CatalogStore persists catalog entries and their inference runs.
type CatalogStore interface {
	CreateEntry(e *CatalogEntry) error
	GetEntry(id string) (*CatalogEntry, error)
	GetEntryByName(name string) (*CatalogEntry, error)
	UpdateEntry(e *CatalogEntry) error
	UpdateEntryStatus(id, status, errMsg string) error
	DeleteEntry(id string) error
	ListEntries() ([]CatalogEntry, error)
	ListTriggeredEntries() ([]CatalogEntry, error)

	CreateRun(run *InferenceRun) error
	ListRuns(entryID string, limit int) ([]InferenceRun, error)
}
