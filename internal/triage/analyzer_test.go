package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

type modelMock struct {
	generateFn func(ctx context.Context, system, prompt string) (string, error)
}

func (m *modelMock) Generate(ctx context.Context, system, prompt string) (string, error) {
	return m.generateFn(ctx, system, prompt)
}

func TestAnalyzer_Analyze(t *testing.T) {
	var gotPrompt string
	model := &modelMock{generateFn: func(_ context.Context, system, prompt string) (string, error) {
		gotPrompt = prompt
		assert.Contains(t, system, "raw JSON")
		return "```json\n{\"summary\":\"s\",\"priority\":\"high\",\"helpfulNotes\":\"n\",\"relatedSkills\":[\"Authentication\"]}\n```", nil
	}}

	res, err := NewAnalyzer(model, nil).Analyze(context.Background(), "Cannot log in to dashboard", "Login fails with 500")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketPriorityHigh, res.Priority)
	assert.Equal(t, []string{"Authentication"}, res.RelatedSkills)
	assert.Contains(t, gotPrompt, "- Title: Cannot log in to dashboard")
	assert.Contains(t, gotPrompt, "- Description: Login fails with 500")
}

func TestAnalyzer_failures(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, string, string) (string, error)
	}{
		{"transport error", func(context.Context, string, string) (string, error) { return "", errors.New("dial tcp: refused") }},
		{"empty response", func(context.Context, string, string) (string, error) { return "  \n", nil }},
		{"unparseable", func(context.Context, string, string) (string, error) { return "no idea", nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewAnalyzer(&modelMock{generateFn: tt.fn}, nil).Analyze(context.Background(), "t", "d")
			require.ErrorIs(t, err, ErrAnalysisFailed)
			assert.Equal(t, domain.TriageResult{}, res)
		})
	}
}

func TestAnalyzer_disabledModel(t *testing.T) {
	_, err := NewAnalyzer(DisabledModel{}, nil).Analyze(context.Background(), "t", "d")
	require.ErrorIs(t, err, ErrAnalysisFailed)
	assert.ErrorIs(t, err, ErrModelDisabled)
}

func TestBuildPrompt(t *testing.T) {
	p, err := BuildPrompt("Title here", "Body {{not a template}}")
	require.NoError(t, err)
	assert.True(t, strings.Contains(p, "Body {{not a template}}"))
}
