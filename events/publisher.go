package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// firmwareEventsTopic is the kafka topic for persisted firmware events.
const firmwareEventsTopic = "firmware.events"

// Publisher fans out persisted firmware events to kafka. Messages are keyed
// by device id, the hash balancer keeps the events of one device on one
// partition and therefore in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher on the given brokers.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        firmwareEventsTopic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: time.Second,
		},
	}
}

// PublishFirmwareEvent publishes a persisted firmware event.
func (p *Publisher) PublishFirmwareEvent(ctx context.Context, event FirmwareEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.DeviceID.String()),
		Value: value,
	})
}

// Close flushes and closes the kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
