package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/slot-reservation/internal/logger"
)

// Consumer appends every booking.confirmed message to a log file, one line
// per booking.
type Consumer struct {
	url     string
	logPath string
	log     *logger.Logger
}

func NewConsumer(url, logPath string, log *logger.Logger) *Consumer {
	if url == "" {
		url = DefaultURL
	}
	if logPath == "" {
		logPath = filepath.Join("logs", "booking.log")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{url: url, logPath: logPath, log: log.With("component", "booking-consumer")}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
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

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set qos failed", "error", err)
	}
	if _, err := ch.QueueDeclare(BookingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingQueue, "", false, false, false, false, nil)
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
			if err := c.handle(d.Body); err != nil {
				c.log.Error("handle message failed", "message_id", d.MessageId, "error", err)
				_ = d.Nack(false, false) // no requeue
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as one booking log line.
func FormatLine(ev BookingConfirmedEvent) string {
	slots := make([]string, len(ev.Slots))
	for i, s := range ev.Slots {
		slots[i] = fmt.Sprintf("%s %s-%s", s.Date, s.StartTime, s.EndTime)
	}
	return fmt.Sprintf("[%s] Booking confirmed | transaction_id=%d | user_id=%d | service_id=%d | institution=%q | service=%q | funded_by=%s | total=%d cents | slots=[%s]\n",
		ev.ConfirmedAt, ev.TransactionID, ev.UserID, ev.ServiceID, ev.InstitutionSlug, ev.ServiceTitle, ev.FundedBy, ev.TotalCents, strings.Join(slots, ","))
}
