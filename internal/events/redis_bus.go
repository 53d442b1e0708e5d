package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisLists is the subset of *redis.Client used by the Redis bus.
type redisLists interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
}

// RedisBusOptions configures the Redis list queue.
type RedisBusOptions struct {
	Queue       string
	Workers     int
	PollTimeout time.Duration
}

// redisBus is a reliable list queue. Consumers move each entry into a
// processing list and remove it only after handling, so a crash leaves it
// to be requeued on the next start.
type redisBus struct {
	*handlerSet
	client     redisLists
	queue      string
	processing string
	workers    int
	poll       time.Duration
	closed     atomic.Bool
	logger     *zap.Logger
}

// NewRedisBus returns a bus backed by client.
func NewRedisBus(client redisLists, opts RedisBusOptions, logger *zap.Logger) Bus {
	if opts.Queue == "" {
		opts.Queue = "helper:events"
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisBus{
		handlerSet: newHandlerSet(),
		client:     client,
		queue:      opts.Queue,
		processing: opts.Queue + ":processing",
		workers:    opts.Workers,
		poll:       opts.PollTimeout,
		logger:     logger,
	}
}

func (b *redisBus) Publish(ctx context.Context, event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.LPush(ctx, b.queue, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event.Type, err)
	}
	return nil
}

func (b *redisBus) Run(ctx context.Context) error {
	n, err := b.requeue(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		b.logger.Info("requeued unacknowledged events", zap.Int("count", n), zap.String("queue", b.queue))
	}

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.consume(ctx)
		}()
	}
	wg.Wait()
	return nil
}

// requeue moves entries left in the processing list back onto the queue.
func (b *redisBus) requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := b.client.LMove(ctx, b.processing, b.queue, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("requeue processing list: %w", err)
		}
		moved++
	}
}

func (b *redisBus) consume(ctx context.Context) {
	for !b.closed.Load() {
		raw, err := b.client.BLMove(ctx, b.queue, b.processing, "RIGHT", "LEFT", b.poll).Result()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			b.logger.Warn("redis consume failed", zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			b.logger.Error("dropping malformed event", zap.Error(err))
		} else {
			logDispatch(b.logger, event, b.dispatch(ctx, event))
		}

		if err := b.client.LRem(ctx, b.processing, 1, raw).Err(); err != nil {
			b.logger.Warn("redis ack failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
}

func (b *redisBus) Close() error {
	b.closed.Store(true)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
