package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	appconfig "consciousness-forge/config"
	"consciousness-forge/models"
	"consciousness-forge/observability"
	"consciousness-forge/services"

	"github.com/google/uuid"
)

// messageCreator defines the upstream call the runner needs (for testing)
type messageCreator interface {
	CreateMessage(ctx context.Context, model string, maxTokens int, temperature float64, messages []services.Message) (*services.MessagesResponse, error)
}

// Runner executes probe prompts sequentially against the Anthropic
// Messages API and scores each response against all prior responses of
// the same session.
type Runner struct {
	client messageCreator
	cfg    appconfig.BaselineConfig
}

// NewRunner creates a Runner backed by the given Anthropic service
func NewRunner(client *services.AnthropicService, cfg appconfig.BaselineConfig) *Runner {
	return &Runner{client: client, cfg: cfg}
}

// newRunnerWithClient creates a Runner with a custom client (for testing)
func newRunnerWithClient(client messageCreator, cfg appconfig.BaselineConfig) *Runner {
	return &Runner{client: client, cfg: cfg}
}

// Run executes the configured probes, optionally filtered to the given
// probe ids, and returns the scored session. Probes run one at a time;
// a failed upstream call aborts the session.
func (r *Runner) Run(ctx context.Context, probeIDs []string) (*models.BaselineSession, error) {
	return r.RunWithModel(ctx, r.cfg.Model, probeIDs)
}

// RunWithModel is Run with a model override
func (r *Runner) RunWithModel(ctx context.Context, model string, probeIDs []string) (*models.BaselineSession, error) {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()

	probes, err := LoadProbes(r.cfg.ProbesPath)
	if err != nil {
		metrics.RecordBaselineRun("error", timer.Duration())
		return nil, err
	}

	probes, err = FilterProbes(probes, probeIDs)
	if err != nil {
		metrics.RecordBaselineRun("error", timer.Duration())
		return nil, err
	}

	if model == "" {
		model = r.cfg.Model
	}

	session := models.NewBaselineSession("anthropic", model)
	var priorResponses []string

	for _, probe := range probes {
		resp, err := r.client.CreateMessage(ctx, model, r.cfg.MaxTokens, r.cfg.Temperature,
			[]services.Message{{Role: "user", Content: probe.Prompt}})
		if err != nil {
			metrics.RecordBaselineRun("error", timer.Duration())
			return nil, fmt.Errorf("probe %s failed: %w", probe.ID, err)
		}

		text := services.ExtractText(resp)
		if text == services.NoResponseText {
			metrics.RecordBaselineRun("error", timer.Duration())
			return nil, fmt.Errorf("provider returned an empty response for probe %s", probe.ID)
		}

		rsi := RSI(text, probe.Scoring.InstabilitySignals)
		avs := AVS(text)
		ici := ICI(text, priorResponses)
		composite := (rsi + avs + ici) / 3

		metrics.RecordBaselineScore("rsi", rsi)
		metrics.RecordBaselineScore("avs", avs)
		metrics.RecordBaselineScore("ici", ici)
		metrics.RecordBaselineScore("composite", composite)

		observability.WithProbe(probe.ID).Debug("probe scored",
			"rsi", rsi, "avs", avs, "ici", ici, "composite", composite)

		session.Results = append(session.Results, models.ProbeResult{
			ID:        uuid.New(),
			ProbeID:   probe.ID,
			Prompt:    probe.Prompt,
			Response:  text,
			RSI:       rsi,
			AVS:       avs,
			ICI:       ici,
			Composite: composite,
		})
		priorResponses = append(priorResponses, text)
	}

	session.Summarize()
	metrics.RecordBaselineRun("success", timer.Duration())

	return session, nil
}

// WriteArtifact writes the session JSON to path, creating parent
// directories as needed.
func (r *Runner) WriteArtifact(session *models.BaselineSession, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	return nil
}
