package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/service"
)

type processorMock struct {
	calls     atomic.Int32
	processFn func(ctx context.Context, ticketID string, call int) (*service.WorkflowResult, error)
}

func (m *processorMock) ProcessTicketCreated(ctx context.Context, ticketID string) (*service.WorkflowResult, error) {
	call := int(m.calls.Add(1))
	return m.processFn(ctx, ticketID, call)
}

type welcomeMock struct {
	mu       sync.Mutex
	payloads []events.UserSignupPayload
	err      error
}

func (m *welcomeMock) SendWelcome(_ context.Context, payload events.UserSignupPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return m.err
}

func (m *welcomeMock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

func fastRetry() events.RetryPolicy {
	return events.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
}

func ticketEvent(t *testing.T, id string) events.Event {
	t.Helper()
	ev, err := events.NewEvent(events.EventTicketCreated, id, events.TicketCreatedPayload{TicketID: id})
	require.NoError(t, err)
	return ev
}

func TestEventWorker_ticketCreatedRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		permanent bool
		wantCalls int32
		wantErr   bool
	}{
		{name: "succeeds first time", wantCalls: 1},
		{name: "retriable then success", failures: 2, wantCalls: 3},
		{name: "retries exhausted", failures: 5, wantCalls: 3, wantErr: true},
		{name: "permanent failure", failures: 5, permanent: true, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &processorMock{processFn: func(_ context.Context, id string, call int) (*service.WorkflowResult, error) {
				if call <= tt.failures {
					err := &service.WorkflowError{TicketID: id, Stage: service.StageFetched, Err: errors.New("store down")}
					if tt.permanent {
						return nil, events.NonRetriable(err)
					}
					return nil, err
				}
				return &service.WorkflowResult{TicketID: id, Stage: service.StageDone}, nil
			}}
			w := New(Dependencies{Bus: events.NewMemoryBus(1, 1, nil), Tickets: proc, Retry: fastRetry()})

			err := w.handleTicketCreated(context.Background(), ticketEvent(t, "t-1"))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, proc.calls.Load())
		})
	}
}

func TestEventWorker_ticketCreatedMalformedPayload(t *testing.T) {
	proc := &processorMock{processFn: func(context.Context, string, int) (*service.WorkflowResult, error) {
		return &service.WorkflowResult{Stage: service.StageDone}, nil
	}}
	w := New(Dependencies{Bus: events.NewMemoryBus(1, 1, nil), Tickets: proc, Retry: fastRetry()})

	err := w.handleTicketCreated(context.Background(), events.Event{Type: events.EventTicketCreated, Payload: []byte(`{}`)})
	require.Error(t, err)
	assert.False(t, events.IsRetriable(err))
	assert.Zero(t, proc.calls.Load())
}

func TestEventWorker_RunDeliversFromBus(t *testing.T) {
	bus := events.NewMemoryBus(2, 8, nil)
	var seen sync.Map
	proc := &processorMock{processFn: func(_ context.Context, id string, _ int) (*service.WorkflowResult, error) {
		seen.Store(id, true)
		return &service.WorkflowResult{TicketID: id, Stage: service.StageDone}, nil
	}}
	welcome := &welcomeMock{}
	w := New(Dependencies{Bus: bus, Tickets: proc, Welcome: welcome, Retry: fastRetry()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return bus.Publish(ctx, ticketEvent(t, "t-1")) == nil
	}, time.Second, 10*time.Millisecond)
	signup, err := events.NewEvent(events.EventUserSignup, "u-1", events.UserSignupPayload{UserID: "u-1", Email: "bob@helper.com"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, signup))

	assert.Eventually(t, func() bool {
		_, ok := seen.Load("t-1")
		return ok && welcome.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEventWorker_signupMailRetries(t *testing.T) {
	welcome := &welcomeMock{err: errors.New("smtp down")}
	w := New(Dependencies{Bus: events.NewMemoryBus(1, 1, nil), Welcome: welcome, Retry: fastRetry()})
	ev, err := events.NewEvent(events.EventUserSignup, "u-1", events.UserSignupPayload{UserID: "u-1"})
	require.NoError(t, err)

	assert.Error(t, w.handleUserSignup(context.Background(), ev))
	assert.Equal(t, 3, welcome.count())

	welcome.err = events.NonRetriable(errors.New("user gone"))
	assert.Error(t, w.handleUserSignup(context.Background(), ev))
	assert.Equal(t, 4, welcome.count())
}
