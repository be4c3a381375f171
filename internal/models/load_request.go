package models

import "time"

// LoadRequest asks a worker to assemble one page.
type LoadRequest struct {
	LoadID    string    `json:"load_id"`
	PageURL   string    `json:"page_url"`
	CreatedAt time.Time `json:"created_at"`
}
