package postback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afftrack/afftrack/internal/metrics"
	"github.com/afftrack/afftrack/internal/tracking"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "postback_workers"

	// DefaultBatchSize is the max jobs read per poll.
	DefaultBatchSize = 50

	// DefaultPollInterval is how often the worker polls the stream.
	DefaultPollInterval = 1 * time.Second

	// DefaultMetricsInterval is how often queue depth is refreshed.
	DefaultMetricsInterval = 5 * time.Second
)

// Worker consumes postback jobs from the Redis stream, delivers them
// through the Sender and schedules retries with backoff. Exhausted
// jobs land in the dead-letter stream.
type Worker struct {
	redis       *redis.Client
	sender      *Sender
	publisher   *Publisher
	conversions tracking.ConversionStore
	logger      *slog.Logger
	metrics     metrics.Recorder

	consumerID   string
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int

	lastMetrics time.Time
}

// NewWorker creates a postback delivery worker.
func NewWorker(
	client *redis.Client,
	sender *Sender,
	publisher *Publisher,
	conversions tracking.ConversionStore,
	consumerID string,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:        client,
		sender:       sender,
		publisher:    publisher,
		conversions:  conversions,
		logger:       logger.With("component", "postback.worker", "consumer_id", consumerID),
		metrics:      recorder,
		consumerID:   consumerID,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
}

// Tune overrides the batch size and poll interval. Zero or negative
// values keep the current settings.
func (w *Worker) Tune(batchSize int, pollInterval time.Duration) {
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
}

// Run blocks processing jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.ensureGroup(ctx); err != nil {
		return err
	}

	w.logger.Info("postback worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("postback worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// ensureGroup creates the consumer group, tolerating "already exists".
func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// processOnce promotes due retries, then reads and handles one batch
// of jobs.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	if err := w.promoteDue(ctx); err != nil {
		w.logger.Error("promote scheduled jobs", "error", err)
	}

	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    -1, // non-blocking; the ticker paces the loop
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("xreadgroup: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			w.handle(ctx, msg)
		}
	}
	return nil
}

// promoteDue moves scheduled retries whose backoff has elapsed onto
// the stream. Jobs still waiting stay in the sorted set untouched.
func (w *Worker) promoteDue(ctx context.Context) error {
	members, err := w.redis.ZRangeByScore(ctx, ScheduledSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().Unix(), 10),
		Count: int64(w.batchSize),
	}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore scheduled: %w", err)
	}

	for _, member := range members {
		conversionID, attempt, ok := parseScheduledMember(member)
		if !ok {
			w.logger.Warn("malformed scheduled job", "member", member)
			w.redis.ZRem(ctx, ScheduledSetKey, member)
			continue
		}
		if err := w.publisher.enqueue(ctx, conversionID, attempt); err != nil {
			// Left in the set; the next poll tries again.
			w.logger.Error("promote failed", "conversion_id", conversionID, "error", err)
			continue
		}
		w.redis.ZRem(ctx, ScheduledSetKey, member)
	}
	return nil
}

// handle processes a single job message and always acks it; retries
// are parked in the scheduled set until their backoff elapses.
func (w *Worker) handle(ctx context.Context, msg redis.XMessage) {
	defer w.ack(ctx, msg.ID)

	conversionID, _ := msg.Values["conversion_id"].(string)
	if conversionID == "" {
		w.logger.Warn("malformed job message", "message_id", msg.ID)
		return
	}
	attempt := parseAttempt(msg.Values["attempt"])

	conv, err := w.conversions.GetConversionByID(ctx, conversionID)
	if err != nil {
		if errors.Is(err, tracking.ErrConversionNotFound) {
			w.logger.Warn("conversion vanished", "conversion_id", conversionID)
			return
		}
		w.retry(ctx, conversionID, attempt, err.Error())
		return
	}

	err = w.sender.Send(ctx, conv)
	switch {
	case err == nil:
		// Delivered and marked processed.
	case errors.Is(err, ErrSkipped), errors.Is(err, ErrNotConfigured):
		// Terminal no-ops; nothing to retry.
	case errors.Is(err, ErrPartnerFailure):
		w.retry(ctx, conversionID, attempt, err.Error())
	default:
		w.retry(ctx, conversionID, attempt, err.Error())
	}
}

// retry schedules the next attempt or dead-letters the job.
func (w *Worker) retry(ctx context.Context, conversionID string, attempt int, reason string) {
	next := attempt + 1
	if IsExhausted(next, w.maxAttempts) {
		w.metrics.IncPostbackDelivery("exhausted")
		w.logger.Error("postback exhausted",
			"conversion_id", conversionID,
			"attempts", next,
			"reason", reason,
		)
		if err := w.publisher.deadLetter(ctx, conversionID, reason, next); err != nil {
			w.logger.Error("dead letter failed", "conversion_id", conversionID, "error", err)
		}
		return
	}

	notBefore := NextRetryAt(attempt)
	if err := w.publisher.schedule(ctx, conversionID, next, notBefore); err != nil {
		w.logger.Error("retry schedule failed", "conversion_id", conversionID, "error", err)
	}
}

func (w *Worker) ack(ctx context.Context, messageID string) {
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageID).Err(); err != nil {
		w.logger.Warn("ack failed", "message_id", messageID, "error", err)
	}
}

// maybeUpdateQueueDepth periodically refreshes the queue depth metric.
func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if time.Since(w.lastMetrics) < DefaultMetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := w.redis.XLen(ctx, StreamKey).Result()
	if err != nil {
		return
	}
	w.metrics.SetPostbackQueueDepth(depth)
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func parseAttempt(v interface{}) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
