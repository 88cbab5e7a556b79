package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"townhall/internal/api"
	"townhall/internal/config"
	"townhall/internal/logging"
	"townhall/internal/queue"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Enqueuer is the enqueue entry point shared with the HTTP API.
type Enqueuer interface {
	Enqueue(ctx context.Context, videoID, inputLocator string) (api.Job, bool, error)
}

// Consumer reads upload events from one durable AMQP queue.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	enqueuer Enqueuer
	logger   *slog.Logger
	dial     func(url string) (*amqp.Connection, error)
}

// New returns a consumer, or nil when ingest.amqp_url is not configured.
func New(cfg *config.Config, enqueuer Enqueuer, logger *slog.Logger) *Consumer {
	if cfg == nil || strings.TrimSpace(cfg.Ingest.AMQPURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	prefetch := cfg.Ingest.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		url:      strings.TrimSpace(cfg.Ingest.AMQPURL),
		queue:    cfg.Ingest.QueueName,
		prefetch: prefetch,
		enqueuer: enqueuer,
		logger:   logging.NewComponentLogger(logger, "ingest"),
		dial:     amqp.Dial,
	}
}

// Run consumes until ctx is done, reconnecting after broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}
	backoff := minBackoff
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logging.WarnWithContext(c.logger, "amqp consumer disconnected", "ingest_disconnected",
			logging.Error(err),
			logging.Duration("retry_in", backoff),
			logging.String(logging.FieldErrorHint, "check ingest.amqp_url and broker health"),
			logging.String(logging.FieldImpact, "upload events wait in the broker until the consumer reconnects"),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := c.dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", c.queue, err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "townhalld", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", q.Name, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("amqp consumer started", logging.String("queue", q.Name), logging.Int("prefetch", c.prefetch))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.Handle(ctx, delivery)
		}
	}
}

// Handle enqueues one delivery and settles it.
func (c *Consumer) Handle(ctx context.Context, delivery amqp.Delivery) {
	var req api.EnqueueRequest
	if err := json.Unmarshal(delivery.Body, &req); err != nil {
		c.reject(delivery, "malformed upload event", err)
		return
	}
	job, created, err := c.enqueuer.Enqueue(ctx, req.VideoID, req.InputLocator)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidJob) || errors.Is(err, api.ErrVideoEncoded) {
			c.reject(delivery, "invalid upload event", err)
			return
		}
		logging.ErrorWithContext(c.logger, "enqueue from upload event failed", "ingest_enqueue_failed",
			logging.VideoID(req.VideoID),
			logging.Error(err),
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Debug("nack failed", logging.Error(nackErr))
		}
		return
	}
	if err := delivery.Ack(false); err != nil {
		c.logger.Debug("ack failed", logging.Error(err))
	}
	c.logger.Info("upload event ingested",
		logging.JobID(job.ID),
		logging.VideoID(job.VideoID),
		logging.Bool("created", created),
	)
}

func (c *Consumer) reject(delivery amqp.Delivery, msg string, err error) {
	logging.WarnWithContext(c.logger, msg, "ingest_message_rejected",
		logging.Error(err),
		logging.String(logging.FieldImpact, "message dropped without creating a job"),
		logging.String(logging.FieldErrorHint, "publish {\"video_id\",\"input_locator\"} JSON bodies"),
	)
	if nackErr := delivery.Nack(false, false); nackErr != nil {
		c.logger.Debug("nack failed", logging.Error(nackErr))
	}
}
