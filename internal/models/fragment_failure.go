package models

import "time"

// FragmentFailure captures a fragment that exhausted its retries, for the DLQ.
type FragmentFailure struct {
	LoadID     string    `json:"load_id"`
	PageURL    string    `json:"page_url"`
	Locator    string    `json:"locator"`
	Attempts   int       `json:"attempts"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}
