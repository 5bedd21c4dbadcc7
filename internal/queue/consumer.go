package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

const maxBackoff = 30 * time.Second

// Handler processes one decoded notification.  A returned error rejects
// the delivery without requeueing it.
type Handler func(ctx context.Context, n model.PurchaseNotification) error

// Consumer reads the purchase queue with manual acks and reconnects with
// exponential backoff until its context is cancelled.
type Consumer struct {
	URL     string
	Queue   string
	Handler Handler
	Logger  *zap.Logger
}

// Run blocks until ctx is cancelled and then returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	if c.Handler == nil {
		return errors.New("consumer handler is nil")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	url, queue := c.URL, c.Queue
	if url == "" {
		url = DefaultBrokerURL
	}
	if queue == "" {
		queue = DefaultPurchaseQueue
	}

	backoff := time.Second
	for {
		conn, err := dial(ctx, url)
		if err != nil {
			logger.Warn("purchase consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect
		logger.Info("purchase consumer connected", zap.String("queue", queue))

		err = c.consume(ctx, conn, queue, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("purchase consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, queue string, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("purchase consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				logger.Warn("purchase consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	n, err := DecodePurchase(body)
	if err != nil {
		return err
	}
	return c.Handler(ctx, n)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// FileSink appends one line per notification to <Dir>/purchases.log.
// It stands in for the email workflow trigger.
type FileSink struct {
	Dir string

	mu sync.Mutex
}

// Handle implements Handler.
func (s *FileSink) Handle(_ context.Context, n model.PurchaseNotification) error {
	dir := s.Dir
	if dir == "" {
		dir = "logs"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "purchases.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(n)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
