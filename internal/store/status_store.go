package store

import (
	"context"

	"fragment-loader/internal/models"
)

// StatusStore persists page load status.
type StatusStore interface {
	SetStatus(ctx context.Context, status models.LoadStatus) error
	GetStatus(ctx context.Context, loadID string) (models.LoadStatus, bool, error)
}
