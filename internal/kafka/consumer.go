package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
)

const metricsSource = "kafka"

// StatsHandler applies in-session stats updates
type StatsHandler interface {
	Update(ctx context.Context, callerID, sessionID string, stats domain.StatsUpdate) (*domain.Session, error)
}

// Consumer consumes session stats updates from Kafka. Updates are best
// effort: anything that fails to apply is logged and dropped.
type Consumer struct {
	config        *config.KafkaConfig
	handler       StatsHandler
	metrics       *metrics.Metrics
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler StatsHandler, m *metrics.Metrics, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		metrics:       m,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// latestPerSession keeps only the newest update of each session, in the
// order sessions first appeared. It also returns how many were superseded.
func latestPerSession(batch []domain.StatsMessage) ([]domain.StatsMessage, int) {
	index := make(map[string]int, len(batch))
	kept := make([]domain.StatsMessage, 0, len(batch))
	for _, msg := range batch {
		i, seen := index[msg.SessionID]
		if !seen {
			index[msg.SessionID] = len(kept)
			kept = append(kept, msg)
			continue
		}
		if !msg.SentAt.Before(kept[i].SentAt) {
			kept[i] = msg
		}
	}
	return kept, len(batch) - len(kept)
}

// applyBatch applies the surviving update of each session. Messages that
// do not name both a session and its user are dropped unapplied.
func (c *Consumer) applyBatch(ctx context.Context, batch []domain.StatsMessage) {
	valid := batch[:0:0]
	for _, msg := range batch {
		if err := msg.Validate(); err != nil {
			c.metrics.StatsDropped(metricsSource)
			c.logger.Debug("dropping stats update", "session_id", msg.SessionID, "error", err)
			continue
		}
		valid = append(valid, msg)
	}

	kept, superseded := latestPerSession(valid)
	for i := 0; i < superseded; i++ {
		c.metrics.StatsDropped(metricsSource)
	}

	applied := 0
	for _, msg := range kept {
		if _, err := c.handler.Update(ctx, msg.UserID, msg.SessionID, msg.Stats); err != nil {
			c.metrics.StatsDropped(metricsSource)
			c.logger.Debug("dropping stats update", "session_id", msg.SessionID, "error", err)
			continue
		}
		c.metrics.StatsUpdated(metricsSource)
		applied++
	}
	c.logger.Debug("processed stats batch", "batch_size", len(batch), "applied", applied, "superseded", superseded)
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]domain.StatsMessage, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		h.consumer.applyBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			var msg domain.StatsMessage
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if err := msg.Validate(); err != nil {
				h.consumer.metrics.StatsDropped(metricsSource)
				h.consumer.logger.Warn("rejecting stats update", "error", err, "offset", message.Offset)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, msg)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
