package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds the writer used by KafkaSink.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// KafkaSink writes one message per publish, keyed by route so each route
// keeps its ordering within a partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(writer messageWriter) (*KafkaSink, error) {
	if writer == nil {
		return nil, errors.New("kafka writer is required")
	}
	return &KafkaSink{writer: writer}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, route string, payload any) error {
	r, err := validRoute(route)
	if err != nil {
		return err
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", r, err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r),
		Value: value,
		Headers: []kafka.Header{
			{Key: "route", Value: []byte(r)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s to kafka: %w", r, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
