package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

const (
	TransactionEventsChannel = "ledger.transaction_events"
	TransactionEventsTopic   = "ledger.transactions"
)

const (
	EventDepositCompleted  = "deposit.completed"
	EventWithdrawCompleted = "withdraw.completed"
	EventTransferCompleted = "transfer.completed"
	EventRefundCompleted   = "refund.completed"
)

// TransactionEventPublisher fans completed transactions out to a Redis
// pub/sub channel (for live listeners) and a Kafka topic (for durable
// consumers). Publishing happens after commit and is best-effort.
type TransactionEventPublisher struct {
	rdb    *redis.Client
	writer *kafka.Writer
}

func NewTransactionEventPublisher(rdb *redis.Client, brokers []string) *TransactionEventPublisher {
	var writer *kafka.Writer
	if len(brokers) > 0 {
		writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TransactionEventsTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		}
	}
	return &TransactionEventPublisher{rdb: rdb, writer: writer}
}

type TransactionEvent struct {
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	ReferenceID   string    `json:"reference_id"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	FromAccount   string    `json:"from_account,omitempty"`
	ToAccount     string    `json:"to_account,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PublishTransactionEvent publishes one event to both sinks.
func (p *TransactionEventPublisher) PublishTransactionEvent(ctx context.Context, event *TransactionEvent) error {
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.rdb != nil {
		if err := p.rdb.Publish(ctx, TransactionEventsChannel, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish to redis: %w", err)
		}
	}

	if p.writer != nil {
		msg := kafka.Message{
			Key:   []byte(event.TransactionID),
			Value: payload,
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish to kafka: %w", err)
		}
	}

	return nil
}

// Close flushes and closes the Kafka writer.
func (p *TransactionEventPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
