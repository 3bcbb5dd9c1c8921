// Package rewards forwards reward signals to the accrual job's topic.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"group-registry/src/models"
)

// Writer is the subset of kafka.Writer the signal needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSignal writes one JSON message per signal, keyed by group id so a
// group's signals stay ordered within a partition.
type KafkaSignal struct {
	writer Writer
}

func NewKafkaSignal(brokers []string, topic string) *KafkaSignal {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSignal{writer: w}
}

func NewKafkaSignalWithWriter(w Writer) *KafkaSignal {
	return &KafkaSignal{writer: w}
}

func (s *KafkaSignal) Notify(ctx context.Context, signal models.RewardSignal) error {
	b, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("encode reward signal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(signal.GroupID, 10)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(signal.Kind)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write reward signal: %w", err)
	}
	return nil
}

func (s *KafkaSignal) Close() error {
	return s.writer.Close()
}

// LogSignal logs signals when no broker is configured.
type LogSignal struct {
	logger *slog.Logger
}

func NewLogSignal(logger *slog.Logger) *LogSignal {
	return &LogSignal{logger: logger}
}

func (s *LogSignal) Notify(_ context.Context, signal models.RewardSignal) error {
	s.logger.Debug("reward signal not published",
		"kind", signal.Kind,
		"group_id", signal.GroupID,
		"principal", signal.Principal,
	)
	return nil
}
