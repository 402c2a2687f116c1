package repository

import (
	"context"
	"fmt"

	"consciousness-forge/models"
	"consciousness-forge/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveSession stores a baseline session and its probe results in a
// single transaction.
func (r *Repository) SaveSession(ctx context.Context, session *models.BaselineSession) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "baseline_sessions")

	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		metrics.RecordDBError("insert", "baseline_sessions")
		return err
	}
	defer tx.Rollback(ctx)

	_, err = txRepo.db.Exec(ctx, `
		INSERT INTO baseline_sessions (id, provider, model, run_at, mean_rsi, mean_avs, mean_ici, mean_composite)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.ID, session.Provider, session.Model, session.Timestamp,
		session.Summary.MeanRSI, session.Summary.MeanAVS, session.Summary.MeanICI, session.Summary.MeanComposite)
	if err != nil {
		metrics.RecordDBError("insert", "baseline_sessions")
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i, result := range session.Results {
		if result.ID == uuid.Nil {
			result.ID = uuid.New()
		}
		_, err = txRepo.db.Exec(ctx, `
			INSERT INTO probe_results (id, session_id, position, probe_id, prompt, response, rsi, avs, ici, composite)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, result.ID, session.ID, i, result.ProbeID, result.Prompt, result.Response,
			result.RSI, result.AVS, result.ICI, result.Composite)
		if err != nil {
			metrics.RecordDBError("insert", "probe_results")
			return fmt.Errorf("failed to insert probe result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordDBError("insert", "baseline_sessions")
		return fmt.Errorf("failed to commit session: %w", err)
	}

	return nil
}

// GetSessions returns recent sessions, most recent first, with their
// summaries but without probe results.
func (r *Repository) GetSessions(ctx context.Context, limit int) ([]models.BaselineSession, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "baseline_sessions")

	rows, err := r.db.Query(ctx, `
		SELECT id, provider, model, run_at, mean_rsi, mean_avs, mean_ici, mean_composite
		FROM baseline_sessions
		ORDER BY run_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		metrics.RecordDBError("select", "baseline_sessions")
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.BaselineSession
	for rows.Next() {
		var s models.BaselineSession
		err := rows.Scan(&s.ID, &s.Provider, &s.Model, &s.Timestamp,
			&s.Summary.MeanRSI, &s.Summary.MeanAVS, &s.Summary.MeanICI, &s.Summary.MeanComposite)
		if err != nil {
			metrics.RecordDBError("select", "baseline_sessions")
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// GetSession returns a single session with its probe results, or nil
// when no session has the given id.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.BaselineSession, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "baseline_sessions")

	var s models.BaselineSession
	err := r.db.QueryRow(ctx, `
		SELECT id, provider, model, run_at, mean_rsi, mean_avs, mean_ici, mean_composite
		FROM baseline_sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.Provider, &s.Model, &s.Timestamp,
		&s.Summary.MeanRSI, &s.Summary.MeanAVS, &s.Summary.MeanICI, &s.Summary.MeanComposite)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.RecordDBError("select", "baseline_sessions")
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, probe_id, prompt, response, rsi, avs, ici, composite
		FROM probe_results
		WHERE session_id = $1
		ORDER BY position ASC
	`, id)
	if err != nil {
		metrics.RecordDBError("select", "probe_results")
		return nil, fmt.Errorf("failed to query probe results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pr models.ProbeResult
		err := rows.Scan(&pr.ID, &pr.ProbeID, &pr.Prompt, &pr.Response,
			&pr.RSI, &pr.AVS, &pr.ICI, &pr.Composite)
		if err != nil {
			metrics.RecordDBError("select", "probe_results")
			return nil, fmt.Errorf("failed to scan probe result: %w", err)
		}
		s.Results = append(s.Results, pr)
	}

	return &s, nil
}
