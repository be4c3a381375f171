package models

import (
	"encoding/json"
	"time"
)

// LoadResult is the payload written to the results topic once a load settles.
type LoadResult struct {
	LoadID     string    `json:"load_id"`
	PageURL    string    `json:"page_url"`
	Status     string    `json:"status"`
	Fragments  int       `json:"fragments"`
	Loaded     int       `json:"loaded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewLoadResult marshals the result payload for a settled load status.
func NewLoadResult(status LoadStatus) ([]byte, error) {
	return json.Marshal(LoadResult{
		LoadID:     status.LoadID,
		PageURL:    status.PageURL,
		Status:     status.Status,
		Fragments:  status.Fragments,
		Loaded:     status.Loaded,
		Failed:     status.Failed,
		Skipped:    status.Skipped,
		OutputPath: status.OutputPath,
		Error:      status.Error,
		FinishedAt: status.UpdatedAt,
	})
}
