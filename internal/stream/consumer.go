// Package stream ingests transactions from Kafka and runs them through the
// same assessment pipeline as the HTTP API. Offsets are committed after the
// pipeline answers, and redelivery is safe: the pipeline treats a replayed
// transaction id as a duplicate and returns the stored assessment.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/metrics"
)

// Analyzer is the slice of the pipeline the consumer needs.
type Analyzer interface {
	Analyze(ctx context.Context, tx *domain.TransactionRequest) (*domain.AnalyzeResponse, error)
}

// Consumer reads transaction requests from a Kafka topic through a consumer
// group, so replicas share partitions.
type Consumer struct {
	client   sarama.ConsumerGroup
	topic    string
	analyzer Analyzer
	ready    chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewConsumer connects a consumer group to the configured brokers.
func NewConsumer(cfg domain.StreamConfig, analyzer Analyzer) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Version = sarama.V2_8_0_0

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		client:   client,
		topic:    cfg.TransactionsTopic,
		analyzer: analyzer,
		ready:    make(chan struct{}),
	}, nil
}

// Start begins consuming. It returns once the group has joined and claims
// are assigned; consumption continues in the background until Close.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &groupHandler{consumer: c, ready: c.ready}

			// Consume returns on every rebalance; loop to rejoin.
			if err := c.client.Consume(ctx, []string{c.topic}, handler); err != nil {
				slog.Error("kafka consume failed", "topic", c.topic, "error", err)
			}

			if ctx.Err() != nil {
				return
			}

			c.ready = make(chan struct{})
		}
	}()

	<-c.ready
	slog.Info("kafka consumer started", "topic", c.topic)
	return nil
}

// Close stops the consumer and waits for in-flight messages to finish.
func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.client.Close()
}

type groupHandler struct {
	consumer *Consumer
	ready    chan struct{}
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.consumer.handle(session.Context(), message)

			// Malformed and rejected messages are committed too; they would
			// fail the same way on redelivery.
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	var tx domain.TransactionRequest
	if err := json.Unmarshal(message.Value, &tx); err != nil {
		slog.Error("failed to decode transaction message",
			"topic", message.Topic,
			"partition", message.Partition,
			"offset", message.Offset,
			"error", err,
		)
		metrics.StreamMessagesTotal.WithLabelValues("malformed").Inc()
		return
	}

	resp, err := c.analyzer.Analyze(ctx, &tx)
	if err != nil {
		slog.Error("stream transaction rejected",
			"transaction_id", tx.TransactionID,
			"error", err,
		)
		metrics.StreamMessagesTotal.WithLabelValues("rejected").Inc()
		return
	}

	if resp.Duplicate {
		metrics.StreamMessagesTotal.WithLabelValues("duplicate").Inc()
		return
	}
	metrics.StreamMessagesTotal.WithLabelValues("assessed").Inc()
}
