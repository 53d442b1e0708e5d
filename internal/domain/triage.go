package domain

const (
	// DefaultSkill is the sentinel skill used when triage cannot name any.
	DefaultSkill = "General Support"

	// TriageFailedNote is stored when the model could not analyze a ticket.
	TriageFailedNote = "AI analysis failed. Please review manually."

	// RecoveryNote is stored when the automated workflow aborted.
	RecoveryNote = "Automated processing failed. Manual review required."

	DefaultSummary      = "Unable to generate summary"
	DefaultHelpfulNotes = "No additional notes available"

	// FallbackSummaryLength bounds the description prefix used as a summary
	// when the model fails.
	FallbackSummaryLength = 100
)

// TriageResult is the AI insight merged into a ticket. Every field is set.
type TriageResult struct {
	Summary       string         `json:"summary"`
	Priority      TicketPriority `json:"priority"`
	HelpfulNotes  string         `json:"helpfulNotes"`
	RelatedSkills []string       `json:"relatedSkills"`
}

// IsDefaultSkillSet reports whether skills carry no real matching signal.
func IsDefaultSkillSet(skills []string) bool {
	return len(skills) == 0 || (len(skills) == 1 && skills[0] == DefaultSkill)
}
