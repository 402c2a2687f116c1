package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appconfig "consciousness-forge/config"
	"consciousness-forge/keys"
	"consciousness-forge/observability"
)

// ErrMissingCredential is returned when no Anthropic API key is
// configured. Callers must check for it before reporting anything to a
// browser; the error text carries no key material.
var ErrMissingCredential = errors.New("anthropic credential not configured")

// NoResponseText is returned by ExtractText when the upstream reply
// contains no text blocks.
const NoResponseText = "[No response]"

// AnthropicServiceInterface defines the upstream operations used by
// the app layer
type AnthropicServiceInterface interface {
	HasCredential() bool
	Forward(ctx context.Context, payload []byte) (*UpstreamResponse, error)
	CreateMessage(ctx context.Context, model string, maxTokens int, temperature float64, messages []Message) (*MessagesResponse, error)
}

// Compile-time interface verification
var _ AnthropicServiceInterface = (*AnthropicService)(nil)

// AnthropicService handles communication with the Anthropic Messages API
type AnthropicService struct {
	credential  keys.Credential
	messagesURL string
	version     string
	httpClient  *http.Client
}

// NewAnthropicService creates a new AnthropicService instance. The
// credential may be absent; calls then fail with ErrMissingCredential
// before any network activity.
func NewAnthropicService(cfg *appconfig.Config, cred keys.Credential) *AnthropicService {
	return &AnthropicService{
		credential:  cred,
		messagesURL: cfg.Anthropic.MessagesURL,
		version:     cfg.Anthropic.Version,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Anthropic.TimeoutSeconds) * time.Second,
		},
	}
}

// HasCredential reports whether an API key is configured
func (s *AnthropicService) HasCredential() bool {
	return !s.credential.IsZero()
}

// UpstreamResponse is an HTTP response received from the Messages API,
// relayed without interpretation.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forward relays a raw JSON payload to the Messages API and returns
// whatever the upstream answered, success or failure alike. A non-nil
// error means no upstream HTTP response was received (transport
// failure or missing credential). No retry: the proxy path must stay a
// single independent attempt per request.
func (s *AnthropicService) Forward(ctx context.Context, payload []byte) (*UpstreamResponse, error) {
	if s.credential.IsZero() {
		return nil, ErrMissingCredential
	}

	metrics := observability.GetMetrics()
	metrics.RecordUpstreamRequest(BreakerAnthropic, "proxy")
	timer := metrics.NewTimer()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messagesURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	timer.ObserveUpstream(BreakerAnthropic, "proxy")
	if err != nil {
		metrics.RecordUpstreamError(BreakerAnthropic, "proxy", categorizeAPIError(err))
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordUpstreamError(BreakerAnthropic, "proxy", "read_error")
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	return &UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// Message is a single turn in a Messages API conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentBlock is one block of the upstream response content
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessagesResponse is the decoded upstream response for typed calls
type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []ContentBlock `json:"content"`
}

// messagesRequest is the typed request body for CreateMessage
type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
}

// CreateMessage issues a typed single call to the Messages API. Used by
// the baseline runner, so unlike Forward it goes through the retry and
// circuit breaker wrappers.
func (s *AnthropicService) CreateMessage(ctx context.Context, model string, maxTokens int, temperature float64, messages []Message) (*MessagesResponse, error) {
	if s.credential.IsZero() {
		return nil, ErrMissingCredential
	}

	metrics := observability.GetMetrics()
	metrics.RecordUpstreamRequest(BreakerAnthropic, "messages")
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, BreakerAnthropic, func() (*MessagesResponse, error) {
		var decoded *MessagesResponse

		retryErr := WithRetry(ctx, DefaultRetryConfig, func() error {
			payload, err := json.Marshal(messagesRequest{
				Model:       model,
				MaxTokens:   maxTokens,
				Temperature: temperature,
				Messages:    messages,
			})
			if err != nil {
				return fmt.Errorf("failed to encode messages request: %w", err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messagesURL, bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("failed to build messages request: %w", err)
			}
			s.setHeaders(req)

			resp, err := s.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("messages request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("messages request returned status %d: %s", resp.StatusCode, string(body))
			}

			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return fmt.Errorf("failed to decode messages response: %w", err)
			}
			return nil
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return decoded, nil
	})

	timer.ObserveUpstream(BreakerAnthropic, "messages")
	if err != nil {
		metrics.RecordUpstreamError(BreakerAnthropic, "messages", categorizeAPIError(err))
		return nil, err
	}
	return result, nil
}

// ExtractText joins the text blocks of an upstream response with
// newlines. Empty blocks are skipped; NoResponseText is returned when
// nothing remains.
func ExtractText(resp *MessagesResponse) string {
	if resp == nil {
		return NoResponseText
	}

	texts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return NoResponseText
	}
	return strings.Join(texts, "\n")
}

func (s *AnthropicService) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", s.credential.Value())
	req.Header.Set("Anthropic-Version", s.version)
}

// categorizeAPIError categorizes an error for metrics purposes
func categorizeAPIError(err error) string {
	if err == nil {
		return "none"
	}
	errStr := err.Error()
	switch {
	case contains(errStr, "timeout", "deadline"):
		return "timeout"
	case contains(errStr, "rate limit", "429"):
		return "rate_limit"
	case contains(errStr, "unauthorized", "401"):
		return "auth_error"
	case contains(errStr, "connection", "network", "no such host"):
		return "connection_error"
	default:
		return "unknown"
	}
}

// contains checks if the string contains any of the substrings
func contains(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
