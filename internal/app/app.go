package app

import (
	"context"
	"errors"
	"fmt"

	"consciousness-forge/config"
	"consciousness-forge/models"
	"consciousness-forge/observability"
	"consciousness-forge/services"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when a baseline run is requested while
// another run is still executing.
var ErrRunInProgress = errors.New("a baseline run is already in progress")

// ErrNoDatabase is returned by session queries when no database is
// configured.
var ErrNoDatabase = errors.New("database not initialized")

// RepositoryInterface defines the repository operations needed by App
type RepositoryInterface interface {
	Close()
	Health(ctx context.Context) error
	SaveSession(ctx context.Context, session *models.BaselineSession) error
	GetSessions(ctx context.Context, limit int) ([]models.BaselineSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.BaselineSession, error)
}

// RunnerInterface defines the baseline run operations
type RunnerInterface interface {
	RunWithModel(ctx context.Context, model string, probeIDs []string) (*models.BaselineSession, error)
	WriteArtifact(session *models.BaselineSession, path string) error
}

// App struct holds application dependencies using interfaces for testability
type App struct {
	ctx       context.Context
	cfg       *config.Config
	repo      RepositoryInterface
	anthropic services.AnthropicServiceInterface
	runner    RunnerInterface
	runSem    chan struct{}
}

// New creates a new App application struct. Baseline runs are
// single-flight: a second request while one is executing is rejected.
func New(cfg *config.Config, repo RepositoryInterface, anthropic services.AnthropicServiceInterface, runner RunnerInterface) *App {
	return &App{
		cfg:       cfg,
		repo:      repo,
		anthropic: anthropic,
		runner:    runner,
		runSem:    make(chan struct{}, 1),
	}
}

// Startup is called when the app starts
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
}

// Shutdown is called when the app is closing
func (a *App) Shutdown(ctx context.Context) {
	if a.repo != nil {
		a.repo.Close()
	}
}

// Repo returns the repository interface for API handlers
func (a *App) Repo() RepositoryInterface {
	return a.repo
}

// HasCredential reports whether the upstream API key is configured
func (a *App) HasCredential() bool {
	return a.anthropic != nil && a.anthropic.HasCredential()
}

// ProxyMessages relays a raw request payload to the Messages API
func (a *App) ProxyMessages(ctx context.Context, payload []byte) (*services.UpstreamResponse, error) {
	if a.anthropic == nil {
		return nil, services.ErrMissingCredential
	}
	return a.anthropic.Forward(ctx, payload)
}

// RunBaseline executes a baseline probe run. The run is persisted when
// a database is configured and always written to the artifact path;
// neither failure aborts a completed run.
func (a *App) RunBaseline(ctx context.Context, model string, probeIDs []string) (*models.BaselineSession, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("baseline runner not initialized")
	}

	select {
	case a.runSem <- struct{}{}:
		defer func() { <-a.runSem }()
	default:
		return nil, ErrRunInProgress
	}

	session, err := a.runner.RunWithModel(ctx, model, probeIDs)
	if err != nil {
		return nil, err
	}

	if a.repo != nil {
		if err := a.repo.SaveSession(ctx, session); err != nil {
			observability.Warn("failed to persist baseline session", "session_id", session.ID, "error", err)
		}
	}

	if a.cfg.Baseline.OutputPath != "" {
		if err := a.runner.WriteArtifact(session, a.cfg.Baseline.OutputPath); err != nil {
			observability.Warn("failed to write baseline artifact", "session_id", session.ID, "error", err)
		}
	}

	return session, nil
}

// GetSessions returns recent baseline sessions
func (a *App) GetSessions(ctx context.Context, limit int) ([]models.BaselineSession, error) {
	if a.repo == nil {
		return nil, ErrNoDatabase
	}
	return a.repo.GetSessions(ctx, limit)
}

// GetSession returns a single baseline session by ID, or nil when the
// id is unknown.
func (a *App) GetSession(ctx context.Context, id string) (*models.BaselineSession, error) {
	if a.repo == nil {
		return nil, ErrNoDatabase
	}

	parsed, err := ParseUUID(id)
	if err != nil {
		return nil, err
	}

	return a.repo.GetSession(ctx, parsed)
}

// ParseUUID parses a string UUID into a [16]byte
func ParseUUID(id string) ([16]byte, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("invalid UUID: %w", err)
	}
	return parsed, nil
}
