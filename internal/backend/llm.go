package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const llmUserAgent = "scribe/0.1.0"

// llmBackend posts work-item payloads to an HTTP summarization endpoint.
type llmBackend struct {
	cfg    config.LLMBackend
	client *http.Client
}

func newLLMBackend(cfg config.LLMBackend) *llmBackend {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &llmBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *llmBackend) Name() string { return "llm" }

// Available reports whether the endpoint is configured. Reachability is
// deliberately not probed per start; a down endpoint surfaces as a bounded
// per-item retry instead of silently skipping the preferred backend.
func (b *llmBackend) Available(_ context.Context) bool {
	return b.cfg.BaseURL != "" && b.cfg.Model != ""
}

type llmRequest struct {
	Model     string `json:"model"`
	SessionID string `json:"session_id"`
	Project   string `json:"project,omitempty"`
	Input     string `json:"input"`
}

type llmResponse struct {
	Error string `json:"error,omitempty"`
}

func (b *llmBackend) Process(ctx context.Context, req Request) error {
	body, err := json.Marshal(llmRequest{
		Model:     b.cfg.Model,
		SessionID: req.SessionID,
		Project:   req.Project,
		Input:     req.Payload,
	})
	if err != nil {
		return &Error{Backend: b.Name(), Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return &Error{Backend: b.Name(), Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", llmUserAgent)
	httpReq.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return &Error{Backend: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &Error{
			Backend: b.Name(),
			Err:     fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
		}
	}

	var parsed llmResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil && err != io.EOF {
		return &Error{Backend: b.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != "" {
		return &Error{Backend: b.Name(), Err: fmt.Errorf("endpoint error: %s", parsed.Error)}
	}
	return nil
}
