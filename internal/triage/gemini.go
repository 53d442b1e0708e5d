package triage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiModel calls the Gemini generateContent REST endpoint.
type GeminiModel struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewGeminiModel returns a Gemini client. An empty baseURL targets the
// public API.
func NewGeminiModel(client *http.Client, baseURL, apiKey, model string) *GeminiModel {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiModel{client: client, baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, model: model}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate implements Model.
func (m *GeminiModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", m.baseURL, url.PathEscape(m.model))
	var resp geminiResponse
	if err := postJSON(ctx, m.client, endpoint, map[string]string{"x-goog-api-key": m.apiKey}, req, &resp); err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
