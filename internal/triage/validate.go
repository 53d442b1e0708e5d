package triage

import (
	"strings"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

// Validate repairs a draft into a complete result. It never fails.
func Validate(d Draft) domain.TriageResult {
	result := domain.TriageResult{
		Summary:      strings.TrimSpace(d.Summary),
		HelpfulNotes: strings.TrimSpace(d.HelpfulNotes),
	}
	if result.Summary == "" {
		result.Summary = domain.DefaultSummary
	}
	if result.HelpfulNotes == "" {
		result.HelpfulNotes = domain.DefaultHelpfulNotes
	}

	// ParseTicketPriority yields medium for unknown values.
	result.Priority, _ = domain.ParseTicketPriority(d.Priority)

	for _, s := range d.RelatedSkills {
		if s = strings.TrimSpace(s); s != "" {
			result.RelatedSkills = append(result.RelatedSkills, s)
		}
	}
	if len(result.RelatedSkills) == 0 {
		result.RelatedSkills = []string{domain.DefaultSkill}
	}
	return result
}

// FallbackResult is used when the model could not produce an analysis.
func FallbackResult(description string) domain.TriageResult {
	return domain.TriageResult{
		Summary:       truncateRunes(description, domain.FallbackSummaryLength),
		Priority:      domain.TicketPriorityMedium,
		HelpfulNotes:  domain.TriageFailedNote,
		RelatedSkills: []string{domain.DefaultSkill},
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
