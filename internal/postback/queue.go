package postback

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afftrack/afftrack/internal/model"
)

const (
	// StreamKey is the Redis stream for queued postback jobs.
	StreamKey = "stream:postbacks"

	// ScheduledSetKey is the sorted set holding retries that are
	// waiting out their backoff, scored by earliest delivery time
	// (unix seconds). Jobs move from here onto the stream when due,
	// so a long backoff costs one write instead of a rewrite per poll.
	ScheduledSetKey = "stream:postbacks:scheduled"

	// DeadLetterStreamKey holds jobs that exhausted their retries.
	DeadLetterStreamKey = "stream:postbacks:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000
)

// Publisher enqueues postback jobs to the Redis stream. The stream
// carries only the conversion id and retry bookkeeping; the worker
// re-reads the conversion from the store so a stale message can never
// dispatch stale data.
type Publisher struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewPublisher creates a postback job publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		redis:  client,
		logger: logger.With("component", "postback.publisher"),
	}
}

// Enqueue queues a conversion for delivery. Safe to call after the
// conversion is committed; losing the message only delays dispatch
// (the conversion stays unprocessed and can be re-sent).
func (p *Publisher) Enqueue(ctx context.Context, conv *model.Conversion) error {
	return p.enqueue(ctx, conv.ID, 0)
}

func (p *Publisher) enqueue(ctx context.Context, conversionID string, attempt int) error {
	err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"conversion_id": conversionID,
			"attempt":       attempt,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd postback job: %w", err)
	}

	p.logger.Debug("postback_enqueued", "conversion_id", conversionID, "attempt", attempt)
	return nil
}

// schedule parks a retry in the scheduled set until notBefore.
func (p *Publisher) schedule(ctx context.Context, conversionID string, attempt int, notBefore time.Time) error {
	err := p.redis.ZAdd(ctx, ScheduledSetKey, redis.Z{
		Score:  float64(notBefore.Unix()),
		Member: scheduledMember(conversionID, attempt),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd scheduled job: %w", err)
	}

	p.logger.Debug("postback_scheduled",
		"conversion_id", conversionID,
		"attempt", attempt,
		"not_before", notBefore,
	)
	return nil
}

// deadLetter moves an exhausted job to the dead-letter stream.
func (p *Publisher) deadLetter(ctx context.Context, conversionID, reason string, attempt int) error {
	err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		ID:     "*",
		Values: map[string]interface{}{
			"conversion_id": conversionID,
			"attempt":       attempt,
			"reason":        reason,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd dead letter: %w", err)
	}
	return nil
}

// scheduledMember packs a retry into a set member. Conversion ids are
// ULIDs, so '@' never collides.
func scheduledMember(conversionID string, attempt int) string {
	return fmt.Sprintf("%d@%s", attempt, conversionID)
}

func parseScheduledMember(member string) (conversionID string, attempt int, ok bool) {
	i := strings.IndexByte(member, '@')
	if i < 1 || i == len(member)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(member[:i])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return member[i+1:], n, true
}
