// Package events delivers order lifecycle events to Kafka, or to the log when
// no brokers are configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"shoestore/internal/orders"
)

type KafkaPublisher struct {
	producer    sarama.AsyncProducer
	topicPrefix string
	logger      *zap.Logger
	done        chan struct{}
}

func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "shoestore-orders"
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5
	config.Producer.Return.Errors = true
	return config
}

// NewKafkaPublisher dials the brokers with an async producer.
func NewKafkaPublisher(brokers []string, topicPrefix string, logger *zap.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewAsyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("start kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topicPrefix, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer. Delivery errors are
// drained and logged until the producer is closed.
func NewKafkaPublisherWithProducer(producer sarama.AsyncProducer, topicPrefix string, logger *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		producer:    producer,
		topicPrefix: topicPrefix,
		logger:      logger,
		done:        make(chan struct{}),
	}
	go p.drainErrors()
	return p
}

func (p *KafkaPublisher) drainErrors() {
	defer close(p.done)
	for err := range p.producer.Errors() {
		p.logger.Error("kafka delivery failed",
			zap.String("topic", err.Msg.Topic),
			zap.Error(err.Err),
		)
	}
}

// Topic maps an event type such as order.created to its topic name.
func (p *KafkaPublisher) Topic(eventType string) string {
	if p.topicPrefix == "" {
		return eventType
	}
	return p.topicPrefix + "." + eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, event orders.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.Topic(event.Type),
		Key:       sarama.StringEncoder(event.OrderNumber),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
		},
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", event.Type, ctx.Err())
	}
}

func (p *KafkaPublisher) Close() error {
	p.producer.AsyncClose()
	<-p.done
	return nil
}
