package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"fragment-loader/internal/models"
)

// LoadProducer publishes LoadRequest messages.
type LoadProducer interface {
	WriteLoad(ctx context.Context, req models.LoadRequest) error
}

// Producer wraps a Kafka writer for publishing load requests.
type Producer struct {
	writer MessageWriter
}

// NewProducer creates a Kafka producer for the given broker and topic.
func NewProducer(broker, topic string) *Producer {
	return &Producer{writer: NewWriter(broker, topic)}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer MessageWriter) *Producer {
	return &Producer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// WriteLoad publishes a LoadRequest keyed by its load id.
func (p *Producer) WriteLoad(ctx context.Context, req models.LoadRequest) error {
	return WriteJSON(ctx, p.writer, req.LoadID, req)
}

// WriteJSON marshals payload and writes it as a single message under key.
func WriteJSON(ctx context.Context, w MessageWriter, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
}
