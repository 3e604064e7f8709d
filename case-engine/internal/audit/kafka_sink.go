package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ILLUVRSE/Venture/case-engine/internal/canonical"
)

type KafkaSinkConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// MessageWriter is the part of kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces each event as canonical JSON keyed by case id, so all
// events of one case land on the same partition in order.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaSink(cfg KafkaSinkConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return NewKafkaSinkWithWriter(w, cfg.WriteTimeout), nil
}

func NewKafkaSinkWithWriter(w MessageWriter, timeout time.Duration) *KafkaSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaSink{writer: w, timeout: timeout}
}

func (k *KafkaSink) Publish(ctx context.Context, ev Event) error {
	value, err := canonical.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka canonicalize event %s: %w", ev.ID, err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(ev.CaseID.String()),
		Value: value,
		Time:  ev.Ts,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.EventType)},
		},
	}
	if err := k.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("kafka produce event %s: %w", ev.ID, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
