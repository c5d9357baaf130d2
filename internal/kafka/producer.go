package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// StatsProducer publishes stats updates without waiting for delivery
type StatsProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewStatsProducer connects an async producer to the brokers
func NewStatsProducer(brokers []string, topic string, logger *slog.Logger) (*StatsProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewStatsProducerFromAsync(producer, topic, logger), nil
}

// NewStatsProducerFromAsync wraps an existing async producer
func NewStatsProducerFromAsync(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *StatsProducer {
	p := &StatsProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.logger.Debug("stats update not delivered", "error", err)
		}
	}()
	return p
}

// PushStats enqueues one update keyed by session so a session's updates
// stay ordered within its partition
func (p *StatsProducer) PushStats(ctx context.Context, msg domain.StatsMessage) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding stats update: %w", err)
	}

	select {
	case p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.SessionID),
		Value: sarama.ByteEncoder(data),
	}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and stops the producer
func (p *StatsProducer) Close() error {
	err := p.producer.Close()
	p.wg.Wait()
	return err
}
