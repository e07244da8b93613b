package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/metrics"
	"github.com/goccy/go-json"
)

// ChangeHandler receives profile changes read from Kafka
type ChangeHandler interface {
	PublishProfileChange(ctx context.Context, change domain.ProfileChange) error
}

// Consumer consumes profile change messages from Kafka and hands them to the
// local push hub
type Consumer struct {
	config        *config.KafkaConfig
	handler       ChangeHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler ChangeHandler, logger *slog.Logger) (*Consumer, error) {
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

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	// Handle errors in separate goroutine
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

// ConsumeClaim processes messages from a topic partition. Changes are
// batched per user and merged so each user gets one push per batch.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := newChangeBatch()
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if batch.size() == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for _, change := range batch.drain() {
			if err := h.consumer.handler.PublishProfileChange(ctx, change); err != nil {
				h.consumer.logger.Error("failed to push profile change", "user_id", change.UserID, "error", err)
			}
		}
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
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

			change, err := decodeChange(message.Value)
			if err != nil {
				h.consumer.logger.Warn("skipping profile change message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			metrics.KafkaMessagesConsumedTotal.Inc()
			batch.add(change)
			session.MarkMessage(message, "")

			if batch.size() >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

var errInvalidChange = errors.New("profile change without user id")

func decodeChange(value []byte) (domain.ProfileChange, error) {
	var change domain.ProfileChange
	if err := json.Unmarshal(value, &change); err != nil {
		return change, err
	}
	if change.UserID == "" {
		return change, errInvalidChange
	}
	return change, nil
}

// changeBatch merges pending changes per user, later fields winning
type changeBatch struct {
	order   []string
	pending map[string]domain.ProfileChange
}

func newChangeBatch() *changeBatch {
	return &changeBatch{pending: make(map[string]domain.ProfileChange)}
}

func (b *changeBatch) add(change domain.ProfileChange) {
	prev, ok := b.pending[change.UserID]
	if !ok {
		b.order = append(b.order, change.UserID)
		b.pending[change.UserID] = change
		return
	}
	if change.Coins != nil {
		prev.Coins = change.Coins
	}
	if change.XP != nil {
		prev.XP = change.XP
	}
	if change.Badges != nil {
		prev.Badges = change.Badges
	}
	prev.Reason = change.Reason
	prev.SourceID = change.SourceID
	prev.Timestamp = change.Timestamp
	b.pending[change.UserID] = prev
}

func (b *changeBatch) size() int {
	return len(b.order)
}

// drain returns the merged changes in first-seen user order and resets the batch
func (b *changeBatch) drain() []domain.ProfileChange {
	out := make([]domain.ProfileChange, 0, len(b.order))
	for _, userID := range b.order {
		out = append(out, b.pending[userID])
	}
	b.order = b.order[:0]
	b.pending = make(map[string]domain.ProfileChange)
	return out
}
