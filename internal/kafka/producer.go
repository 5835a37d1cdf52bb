package kafka

import (
	"context"
	"fmt"

	"ms-settlement/internal/config"
	"ms-settlement/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer   *kafka.Writer
	log      *logger.Logger
	mockMode bool
}

// NewProducer builds a settlement event producer. The writer carries no
// fixed topic; each message names its own so one producer serves all
// settlement streams. In mock mode publishes only log.
func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	if cfg.MockMode {
		log.Warn("KAFKA", "Producer running in mock mode, events will be logged but not sent")
		return &Producer{log: log, mockMode: true}
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
	})
	return &Producer{Writer: writer, log: log}
}

// Publish streams a settlement event to Kafka.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, string(value))
		return nil
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

func (p *Producer) Close() error {
	if p.Writer == nil {
		return nil
	}
	p.log.LogKafka("CLOSE", "", "Closing Kafka producer")
	return p.Writer.Close()
}

// Healthy reports whether the broker connection can be established.
func (p *Producer) Healthy(brokers []string) error {
	if p.mockMode {
		return nil
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka broker unreachable: %w", err)
	}
	return conn.Close()
}
