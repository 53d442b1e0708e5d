package dto

import (
	"time"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTicketRequest payload. Absent fields are left untouched.
type UpdateTicketRequest struct {
	Status   *string `json:"status"`
	Solution *string `json:"solution"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	CreatedBy     string                `json:"created_by"`
	AssignedTo    *string               `json:"assigned_to"`
	HelpfulNotes  string                `json:"helpful_notes"`
	RelatedSkills []string              `json:"related_skills"`
	Solution      *string               `json:"solution"`
	Deadline      *time.Time            `json:"deadline,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	skills := t.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	return TicketResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      t.Priority,
		CreatedBy:     t.CreatedBy,
		AssignedTo:    t.AssignedTo,
		HelpfulNotes:  t.HelpfulNotes,
		RelatedSkills: skills,
		Solution:      t.Solution,
		Deadline:      t.Deadline,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}
