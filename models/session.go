package models

import (
	"time"

	"github.com/google/uuid"
)

// BaselineSession is one full probe run against a provider. Its JSON
// form is the artifact written by the baseline runner.
type BaselineSession struct {
	ID        uuid.UUID     `json:"id"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Timestamp time.Time     `json:"timestamp"`
	Results   []ProbeResult `json:"results"`
	Summary   Summary       `json:"summary"`
}

// ProbeResult holds the response and scores for a single probe
type ProbeResult struct {
	ID        uuid.UUID `json:"-"`
	ProbeID   string    `json:"probe_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	RSI       float64   `json:"rsi"`
	AVS       float64   `json:"avs"`
	ICI       float64   `json:"ici"`
	Composite float64   `json:"composite"`
}

// Summary holds session-level means over all probe results
type Summary struct {
	MeanRSI       float64 `json:"mean_rsi"`
	MeanAVS       float64 `json:"mean_avs"`
	MeanICI       float64 `json:"mean_ici"`
	MeanComposite float64 `json:"mean_composite"`
}

// NewBaselineSession creates a session shell for a run starting now
func NewBaselineSession(provider, model string) *BaselineSession {
	return &BaselineSession{
		ID:        uuid.New(),
		Provider:  provider,
		Model:     model,
		Timestamp: time.Now().UTC(),
	}
}

// Summarize recomputes the summary from the accumulated results.
// With no results every mean is zero.
func (s *BaselineSession) Summarize() {
	if len(s.Results) == 0 {
		s.Summary = Summary{}
		return
	}

	var sum Summary
	for _, r := range s.Results {
		sum.MeanRSI += r.RSI
		sum.MeanAVS += r.AVS
		sum.MeanICI += r.ICI
		sum.MeanComposite += r.Composite
	}

	n := float64(len(s.Results))
	s.Summary = Summary{
		MeanRSI:       sum.MeanRSI / n,
		MeanAVS:       sum.MeanAVS / n,
		MeanICI:       sum.MeanICI / n,
		MeanComposite: sum.MeanComposite / n,
	}
}
