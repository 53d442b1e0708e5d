package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/helperdesk/helper-tickets/internal/config"
)

// Model sends one prompt to a language model and returns its raw text.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ErrModelDisabled is returned by DisabledModel.
var ErrModelDisabled = errors.New("triage: no model provider configured")

// DisabledModel always fails so that tickets run on fallback triage.
type DisabledModel struct{}

// Generate implements Model.
func (DisabledModel) Generate(context.Context, string, string) (string, error) {
	return "", ErrModelDisabled
}

// NewModel selects a provider from configuration.
func NewModel(cfg config.TriageConfig, client *http.Client) (Model, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout()}
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "none", "disabled":
		return DisabledModel{}, nil
	case "gemini":
		return NewGeminiModel(client, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "openai":
		return NewOpenAIModel(client, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("triage: unknown provider %q", cfg.Provider)
	}
}

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
