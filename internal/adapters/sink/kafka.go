package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

type KafkaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

// Kafka publishes every measurement as a JSON record.
type Kafka struct {
	lifecycle
	producer producer
	topic    string
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if !cfg.Enabled {
		return &Kafka{}, nil
	}
	if strings.TrimSpace(cfg.Brokers) == "" || strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
		"retries":           3,
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newKafka(p, cfg.Topic), nil
}

func newKafka(p producer, topic string) *Kafka {
	s := &Kafka{producer: p, topic: topic}
	s.enabled.Store(true)
	return s
}

func (s *Kafka) Name() string { return "kafka" }

func (s *Kafka) Update(ctx context.Context, m domain.Measurement) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return sinkErr(s.Name(), "encode measurement: %v", err)
	}

	// never closed: a report arriving after ctx expiry lands in the buffer
	deliveryChan := make(chan kafka.Event, 1)
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.topic,
			Partition: kafka.PartitionAny,
		},
		Value: payload,
	}, deliveryChan)
	if err != nil {
		return sinkErr(s.Name(), "produce: %v", err)
	}

	select {
	case e := <-deliveryChan:
		if msg, ok := e.(*kafka.Message); ok && msg.TopicPartition.Error != nil {
			return sinkErr(s.Name(), "delivery failed: %v", msg.TopicPartition.Error)
		}
	case <-ctx.Done():
		return sinkErr(s.Name(), "delivery not confirmed: %v", ctx.Err())
	}
	return nil
}

func (s *Kafka) Close() error {
	if !s.disable() {
		return nil
	}
	if s.producer != nil {
		s.producer.Close()
	}
	return nil
}

var _ ports.Sink = (*Kafka)(nil)
