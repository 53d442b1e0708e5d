package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/mailer"
	"github.com/helperdesk/helper-tickets/internal/observability"
	"github.com/helperdesk/helper-tickets/internal/repository"
	"github.com/helperdesk/helper-tickets/internal/triage"
)

// Stage is a checkpoint in the ticket workflow.
type Stage string

const (
	StageReceived        Stage = "RECEIVED"
	StageFetched         Stage = "FETCHED"
	StageStatusSet       Stage = "STATUS_SET"
	StageTriaged         Stage = "TRIAGED"
	StageInsightsApplied Stage = "INSIGHTS_APPLIED"
	StageAssigned        Stage = "ASSIGNED"
	StageNotified        Stage = "NOTIFIED"
	StageDone            Stage = "DONE"
	StageAborted         Stage = "ABORTED"
)

// AssignmentSubject is the subject line of the assignee notification.
const AssignmentSubject = "New Ticket Assigned to You"

const recoveryTimeout = 5 * time.Second

// ErrTicketNotFound is returned when the triggering ticket no longer exists.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketAnalyzer produces triage insights for a ticket.
type TicketAnalyzer interface {
	Analyze(ctx context.Context, title, description string) (domain.TriageResult, error)
}

// AssigneeFinder picks the user who should work a ticket.
type AssigneeFinder interface {
	FindAssignee(ctx context.Context, skills []string) (*domain.User, error)
}

// WorkflowSettings tunes the ticket workflow.
type WorkflowSettings struct {
	TriageTimeout time.Duration
	NotifyTimeout time.Duration
	// TriageFailedNote replaces the helpful notes when triage falls back.
	TriageFailedNote string
	// RecoveryNote is written when a run aborts.
	RecoveryNote string
}

// DefaultWorkflowSettings returns the stock timeouts and notes.
func DefaultWorkflowSettings() WorkflowSettings {
	return WorkflowSettings{
		TriageTimeout:    30 * time.Second,
		NotifyTimeout:    15 * time.Second,
		TriageFailedNote: domain.TriageFailedNote,
		RecoveryNote:     domain.RecoveryNote,
	}
}

// WorkflowDependencies bundles collaborators for the ticket workflow.
type WorkflowDependencies struct {
	TicketRepo repository.TicketRepository
	Analyzer   TicketAnalyzer
	Matcher    AssigneeFinder
	Mailer     mailer.Mailer
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Settings   WorkflowSettings
}

// WorkflowResult summarizes one run.
type WorkflowResult struct {
	TicketID       string
	Stage          Stage
	Ticket         *domain.Ticket
	Assignee       *domain.User
	Triage         domain.TriageResult
	TriageDegraded bool
	Notified       bool
	// Skipped is set when the ticket was already closed out on entry.
	Skipped bool
}

// WorkflowError reports an aborted run. Stage is the stage that could not
// be completed.
type WorkflowError struct {
	TicketID string
	Stage    Stage
	Err      error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("ticket %s: workflow aborted at %s: %v", e.TicketID, e.Stage, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// TicketWorkflow triages, assigns and notifies for newly created tickets.
type TicketWorkflow struct {
	tickets  repository.TicketRepository
	analyzer TicketAnalyzer
	matcher  AssigneeFinder
	mailer   mailer.Mailer
	metrics  *observability.Metrics
	logger   *zap.Logger
	settings WorkflowSettings
}

// NewTicketWorkflow constructs the workflow. Zero settings fall back to
// DefaultWorkflowSettings field by field.
func NewTicketWorkflow(deps WorkflowDependencies) *TicketWorkflow {
	settings := deps.Settings
	defaults := DefaultWorkflowSettings()
	if settings.TriageTimeout <= 0 {
		settings.TriageTimeout = defaults.TriageTimeout
	}
	if settings.NotifyTimeout <= 0 {
		settings.NotifyTimeout = defaults.NotifyTimeout
	}
	if settings.TriageFailedNote == "" {
		settings.TriageFailedNote = defaults.TriageFailedNote
	}
	if settings.RecoveryNote == "" {
		settings.RecoveryNote = defaults.RecoveryNote
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketWorkflow{
		tickets:  deps.TicketRepo,
		analyzer: deps.Analyzer,
		matcher:  deps.Matcher,
		mailer:   deps.Mailer,
		metrics:  deps.Metrics,
		logger:   logger,
		settings: settings,
	}
}

// ProcessTicketCreated runs the workflow for one ticket. Triage and
// notification failures degrade the run but never abort it. Store failures
// abort with a *WorkflowError after a best-effort recovery write.
func (w *TicketWorkflow) ProcessTicketCreated(ctx context.Context, ticketID string) (*WorkflowResult, error) {
	log := w.logger.With(zap.String("ticket_id", ticketID))
	result := &WorkflowResult{TicketID: ticketID, Stage: StageReceived}

	ticket, err := w.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = events.NonRetriable(fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID))
		}
		return w.abort(ctx, log, result, StageFetched, err)
	}
	w.advance(log, result, StageFetched)

	if ticket.Status.IsTerminal() {
		result.Ticket = ticket
		result.Skipped = true
		result.Stage = StageDone
		w.metrics.RecordWorkflow(observability.OutcomeSkipped)
		log.Info("ticket already closed out, skipping", zap.String("status", string(ticket.Status)))
		return result, nil
	}

	todo := domain.TicketStatusTodo
	ticket, err = w.tickets.Update(ctx, ticketID, repository.TicketUpdate{Status: &todo})
	if err != nil {
		return w.abort(ctx, log, result, StageStatusSet, err)
	}
	w.advance(log, result, StageStatusSet)

	result.Triage, result.TriageDegraded = w.triage(ctx, log, ticket)
	w.advance(log, result, StageTriaged)

	inProgress := domain.TicketStatusInProgress
	ticket, err = w.tickets.Update(ctx, ticketID, repository.TicketUpdate{
		Status:        &inProgress,
		Priority:      &result.Triage.Priority,
		HelpfulNotes:  &result.Triage.HelpfulNotes,
		RelatedSkills: result.Triage.RelatedSkills,
	})
	if err != nil {
		return w.abort(ctx, log, result, StageInsightsApplied, err)
	}
	w.advance(log, result, StageInsightsApplied)

	assignee, err := w.matcher.FindAssignee(ctx, ticket.RelatedSkills)
	if err != nil {
		return w.abort(ctx, log, result, StageAssigned, err)
	}
	if assignee != nil {
		ticket, err = w.tickets.Update(ctx, ticketID, repository.TicketUpdate{AssignedTo: &assignee.ID})
		if err != nil {
			return w.abort(ctx, log, result, StageAssigned, err)
		}
		result.Assignee = assignee
		w.advance(log, result, StageAssigned)
	} else {
		log.Warn("no moderator or admin available, ticket left unassigned")
	}
	result.Ticket = ticket

	if assignee != nil && w.notify(ctx, log, ticket, assignee) {
		result.Notified = true
		w.advance(log, result, StageNotified)
	} else if assignee == nil {
		w.metrics.RecordNotification(observability.NotificationSkipped)
	}

	result.Stage = StageDone
	w.metrics.RecordWorkflow(observability.OutcomeDone)
	log.Info("ticket workflow completed",
		zap.Bool("triage_degraded", result.TriageDegraded),
		zap.Bool("assigned", result.Assignee != nil),
		zap.Bool("notified", result.Notified))
	return result, nil
}

func (w *TicketWorkflow) advance(log *zap.Logger, result *WorkflowResult, stage Stage) {
	result.Stage = stage
	log.Debug("ticket workflow stage reached", zap.String("stage", string(stage)))
}

func (w *TicketWorkflow) triage(ctx context.Context, log *zap.Logger, ticket *domain.Ticket) (domain.TriageResult, bool) {
	var res domain.TriageResult
	err := runBounded(ctx, w.settings.TriageTimeout, func(ctx context.Context) error {
		var err error
		res, err = w.analyzer.Analyze(ctx, ticket.Title, ticket.Description)
		return err
	})
	if err != nil {
		log.Warn("triage failed, using fallback", zap.Error(err))
		w.metrics.RecordTriage(observability.TriageSourceFallback)
		fallback := triage.FallbackResult(ticket.Description)
		fallback.HelpfulNotes = w.settings.TriageFailedNote
		return fallback, true
	}
	w.metrics.RecordTriage(observability.TriageSourceModel)
	return res, false
}

func (w *TicketWorkflow) notify(ctx context.Context, log *zap.Logger, ticket *domain.Ticket, assignee *domain.User) bool {
	if w.mailer == nil {
		w.metrics.RecordNotification(observability.NotificationSkipped)
		return false
	}
	body := AssignmentMessage(ticket)
	err := runBounded(ctx, w.settings.NotifyTimeout, func(ctx context.Context) error {
		return w.mailer.Send(ctx, assignee.Email, AssignmentSubject, body)
	})
	if err != nil {
		log.Warn("assignment notification failed",
			zap.String("assignee_id", assignee.ID),
			zap.Error(err))
		w.metrics.RecordNotification(observability.NotificationFailed)
		return false
	}
	w.metrics.RecordNotification(observability.NotificationSent)
	return true
}

func (w *TicketWorkflow) abort(ctx context.Context, log *zap.Logger, result *WorkflowResult, stage Stage, err error) (*WorkflowResult, error) {
	result.Stage = StageAborted
	w.metrics.RecordStageFailure(string(stage))
	w.metrics.RecordWorkflow(observability.OutcomeAborted)
	log.Error("ticket workflow aborted", zap.String("stage", string(stage)), zap.Error(err))

	w.flagForReview(ctx, log, result.TicketID)
	return result, &WorkflowError{TicketID: result.TicketID, Stage: stage, Err: err}
}

// flagForReview flags the ticket for manual review. Its failure is only logged.
func (w *TicketWorkflow) flagForReview(ctx context.Context, log *zap.Logger, ticketID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()

	todo := domain.TicketStatusTodo
	note := w.settings.RecoveryNote
	if _, err := w.tickets.Update(ctx, ticketID, repository.TicketUpdate{Status: &todo, HelpfulNotes: &note}); err != nil {
		log.Error("ticket recovery write failed", zap.Error(err))
		return
	}
	log.Info("ticket flagged for manual review")
}

// AssignmentMessage renders the assignee notification body.
func AssignmentMessage(ticket *domain.Ticket) string {
	return fmt.Sprintf("Hello,\n\nA new support ticket has been assigned to you:\n\n"+
		"Title: %s\nPriority: %s\nRelated Skills: %s\n\n"+
		"Please review and resolve it at your earliest convenience.\n\n"+
		"Best regards,\nSupport Team",
		ticket.Title, ticket.Priority, strings.Join(ticket.RelatedSkills, ", "))
}

// runBounded runs fn with a deadline and returns as soon as the deadline
// passes, even if fn ignores its context.
func runBounded(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
