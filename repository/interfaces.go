package repository

import (
	"context"

	"consciousness-forge/models"

	"github.com/google/uuid"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error

	// Baseline sessions
	SaveSession(ctx context.Context, session *models.BaselineSession) error
	GetSessions(ctx context.Context, limit int) ([]models.BaselineSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.BaselineSession, error)
}

// Compile-time interface verification
var _ RepositoryInterface = (*Repository)(nil)
