// Package events streams slot availability changes to Kafka so listing
// caches and live views can follow the inventory without polling.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/iliyamo/slot-reservation/internal/config"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
)

var ErrProducerClosed = errors.New("producer is closed")

// HeaderEventType names the payload kind on every message.
const HeaderEventType = "event-type"

// AvailabilityEvent is the value of one slot.availability message. The key
// is the slot id, so changes of one slot stay ordered in a partition.
type AvailabilityEvent struct {
	EventID   string    `json:"event_id"`
	SlotID    uint64    `json:"slot_id"`
	Available bool      `json:"available"`
	ChangedAt time.Time `json:"changed_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes availability changes.
type Producer struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewProducer builds a kafka writer from cfg. It returns nil, nil when
// Kafka is disabled.
func NewProducer(cfg config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "availability-producer")

	var compression compress.Compression
	switch cfg.Compression {
	case "gzip":
		compression = compress.Gzip
	case "snappy":
		compression = compress.Snappy
	case "lz4":
		compression = compress.Lz4
	case "zstd":
		compression = compress.Zstd
	}

	var acks kafka.RequiredAcks
	switch cfg.RequireAcks {
	case 0:
		acks = kafka.RequireNone
	case 1:
		acks = kafka.RequireOne
	default:
		acks = kafka.RequireAll
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		Compression:  compression,
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error("kafka writer error", "detail", msg, "args", args)
		}),
	}
	return newProducer(w, cfg.Topic, log), nil
}

func newProducer(w messageWriter, topic string, log *logger.Logger) *Producer {
	return &Producer{writer: w, topic: topic, log: log, now: time.Now}
}

// PublishAvailability writes one message per change in a single batch.
func (p *Producer) PublishAvailability(ctx context.Context, changes []model.AvailabilityChange) error {
	if p == nil || len(changes) == 0 {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	msgs, err := buildMessages(changes, p.now().UTC())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Warn("publish availability failed", "topic", p.topic, "count", len(msgs), "error", err)
		return err
	}
	return nil
}

func buildMessages(changes []model.AvailabilityChange, at time.Time) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(changes))
	for _, c := range changes {
		value, err := json.Marshal(AvailabilityEvent{
			EventID:   uuid.NewString(),
			SlotID:    c.SlotID,
			Available: c.Available,
			ChangedAt: at,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(strconv.FormatUint(c.SlotID, 10)),
			Value:   value,
			Time:    at,
			Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte("slot.availability.changed")}},
		})
	}
	return msgs, nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
