package triage

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/system.tmpl
var systemPrompt string

//go:embed prompts/triage.tmpl
var triagePromptRaw string

// triageTemplate is parsed once at package init.
var triageTemplate = template.Must(template.New("triage").Parse(triagePromptRaw))

// SystemPrompt returns the instruction block sent alongside every prompt.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// BuildPrompt renders the triage prompt for a ticket.
func BuildPrompt(title, description string) (string, error) {
	var b strings.Builder
	data := struct {
		Title       string
		Description string
	}{Title: title, Description: description}
	if err := triageTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render triage prompt: %w", err)
	}
	return b.String(), nil
}
