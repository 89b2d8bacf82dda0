package config

import (
	"fmt"
	"strings"
	"time"
)

// KafkaConfig configures the slot availability change stream. Kafka is
// optional; Enabled is false when KAFKA_BROKERS is empty.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	MaxAttempts  int
	BatchTimeout time.Duration
	RequireAcks  int    // -1 all, 0 none, 1 leader
	Compression  string // none, gzip, snappy, lz4, zstd
	Async        bool
}

func LoadKafkaConfig() KafkaConfig {
	var brokers []string
	for _, b := range strings.Split(envStr("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return KafkaConfig{
		Enabled:      len(brokers) > 0,
		Brokers:      brokers,
		Topic:        envStr("KAFKA_AVAILABILITY_TOPIC", "slot.availability"),
		MaxAttempts:  envInt("KAFKA_PRODUCER_MAX_ATTEMPTS", 3),
		BatchTimeout: envDur("KAFKA_PRODUCER_BATCH_TIMEOUT", 50*time.Millisecond),
		RequireAcks:  envInt("KAFKA_PRODUCER_REQUIRE_ACKS", -1),
		Compression:  envStr("KAFKA_PRODUCER_COMPRESSION", "snappy"),
		Async:        envBool("KAFKA_PRODUCER_ASYNC", false),
	}
}

// Validate reports the first invalid field of an enabled configuration.
func (c KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka topic cannot be empty")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("kafka max attempts must be positive, got %d", c.MaxAttempts)
	}
	switch c.Compression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka compression must be one of none, gzip, snappy, lz4, zstd, got %q", c.Compression)
	}
	switch c.RequireAcks {
	case -1, 0, 1:
	default:
		return fmt.Errorf("kafka require acks must be -1, 0 or 1, got %d", c.RequireAcks)
	}
	return nil
}
