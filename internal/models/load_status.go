package models

import "time"

// Load status values.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusDegraded  = "degraded" // page assembled, some fragments failed
	StatusFailed    = "failed"   // page itself could not be fetched or written
)

// LoadStatus tracks the state of a page load.
type LoadStatus struct {
	LoadID     string    `json:"load_id"`
	PageURL    string    `json:"page_url"`
	Status     string    `json:"status"`
	Fragments  int       `json:"fragments"`
	Loaded     int       `json:"loaded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped,omitempty"` // disallowed by robots.txt
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
