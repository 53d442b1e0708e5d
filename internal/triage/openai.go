package triage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIModel calls any endpoint implementing the OpenAI chat completions
// wire format.
type OpenAIModel struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewOpenAIModel returns an OpenAI-compatible client.
func NewOpenAIModel(client *http.Client, baseURL, apiKey, model string) *OpenAIModel {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIModel{client: client, baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, model: model}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

// Generate implements Model.
func (m *OpenAIModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := openaiRequest{Model: m.model}
	if system != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, openaiMessage{Role: "user", Content: prompt})

	headers := map[string]string{}
	if m.apiKey != "" {
		headers["Authorization"] = "Bearer " + m.apiKey
	}

	var resp openaiResponse
	if err := postJSON(ctx, m.client, m.baseURL+"/v1/chat/completions", headers, req, &resp); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
