package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/service"
)

// TicketProcessor runs the ticket workflow.
type TicketProcessor interface {
	ProcessTicketCreated(ctx context.Context, ticketID string) (*service.WorkflowResult, error)
}

// WelcomeSender mails new accounts.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, payload events.UserSignupPayload) error
}

// Dependencies bundles what the worker consumes.
type Dependencies struct {
	Bus     events.Bus
	Tickets TicketProcessor
	Welcome WelcomeSender
	Retry   events.RetryPolicy
	Logger  *zap.Logger
}

// EventWorker binds event handlers to the bus, each under the retry policy.
type EventWorker struct {
	bus     events.Bus
	tickets TicketProcessor
	welcome WelcomeSender
	retry   events.RetryPolicy
	logger  *zap.Logger
}

// New creates the worker. A zero retry policy means events.DefaultRetryPolicy.
func New(deps Dependencies) *EventWorker {
	retry := deps.Retry
	if retry.MaxAttempts <= 0 {
		retry = events.DefaultRetryPolicy()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWorker{
		bus:     deps.Bus,
		tickets: deps.Tickets,
		welcome: deps.Welcome,
		retry:   retry,
		logger:  logger,
	}
}

// Register subscribes the handlers. Call it once before Run.
func (w *EventWorker) Register() {
	if w.tickets != nil {
		w.bus.Subscribe(events.EventTicketCreated, w.handleTicketCreated)
	}
	if w.welcome != nil {
		w.bus.Subscribe(events.EventUserSignup, w.handleUserSignup)
	}
}

// Run registers the handlers and consumes events until ctx is done.
func (w *EventWorker) Run(ctx context.Context) error {
	w.Register()
	w.logger.Info("event worker started")
	err := w.bus.Run(ctx)
	w.logger.Info("event worker stopped")
	return err
}

func (w *EventWorker) handleTicketCreated(ctx context.Context, event events.Event) error {
	var payload events.TicketCreatedPayload
	if err := event.Decode(&payload); err != nil {
		return events.NonRetriable(fmt.Errorf("decode %s: %w", event.Type, err))
	}
	ticketID := payload.TicketID
	if ticketID == "" {
		ticketID = event.Key
	}
	if ticketID == "" {
		return events.NonRetriable(fmt.Errorf("%s event %s has no ticket id", event.Type, event.ID))
	}

	log := w.logger.With(zap.String("event_id", event.ID), zap.String("ticket_id", ticketID))
	return w.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		result, err := w.tickets.ProcessTicketCreated(ctx, ticketID)
		if err != nil {
			log.Warn("ticket workflow attempt failed",
				zap.Int("attempt", attempt),
				zap.Bool("retriable", events.IsRetriable(err)),
				zap.Error(err))
			return err
		}
		log.Info("ticket workflow finished",
			zap.Int("attempt", attempt),
			zap.String("stage", string(result.Stage)),
			zap.Bool("skipped", result.Skipped))
		return nil
	})
}

func (w *EventWorker) handleUserSignup(ctx context.Context, event events.Event) error {
	var payload events.UserSignupPayload
	if err := event.Decode(&payload); err != nil {
		return events.NonRetriable(fmt.Errorf("decode %s: %w", event.Type, err))
	}

	log := w.logger.With(zap.String("event_id", event.ID), zap.String("user_id", payload.UserID))
	return w.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := w.welcome.SendWelcome(ctx, payload); err != nil {
			log.Warn("welcome mail attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	})
}
