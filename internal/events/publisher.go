// Package events fans confirmed chain activity out to RabbitMQ. Only
// operations that survived on-chain inclusion are published; a reverted
// transaction never produces an event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
)

type Publisher interface {
	PublishPollCreated(ctx context.Context, creator string, req domain.CreatePollRequest) error
	PublishPollVoted(ctx context.Context, voter string, poll *domain.Poll, optionIndex uint64) error
	PublishPollDeleted(ctx context.Context, creator string, pollID uint64) error
	Close() error
}

type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

func cleanup(ch *amqp.Channel, conn *amqp.Connection, logger *zap.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}
}

func NewRabbitMQPublisher(host string, port int, user, password, vhost string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s", user, password, host, port, vhost)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		cleanup(nil, conn, logger)
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		"pollchain",
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		cleanup(ch, conn, logger)
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	queues := []string{"chain_events", "poll_updates"}
	for _, queue := range queues {
		_, err = ch.QueueDeclare(
			queue,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			cleanup(ch, conn, logger)
			return nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}

		err = ch.QueueBind(
			queue,
			"poll.*",
			"pollchain",
			false,
			nil,
		)
		if err != nil {
			cleanup(ch, conn, logger)
			return nil, fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
		logger:  logger,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	var errs []error

	if err := p.channel.Close(); err != nil {
		p.logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}

	if err := p.conn.Close(); err != nil {
		p.logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %v", errs)
	}
	return nil
}

func (p *RabbitMQPublisher) PublishPollCreated(ctx context.Context, creator string, req domain.CreatePollRequest) error {
	event := struct {
		Type      string   `json:"type"`
		Timestamp string   `json:"timestamp"`
		Creator   string   `json:"creator"`
		Title     string   `json:"title"`
		Options   []string `json:"options"`
		Deadline  int64    `json:"deadline"`
	}{
		Type:      "poll.created",
		Timestamp: time.Now().Format(time.RFC3339),
		Creator:   creator,
		Title:     req.Title,
		Options:   req.OptionTexts,
		Deadline:  req.Deadline,
	}

	return p.publishEvent(ctx, event, "poll.created")
}

func (p *RabbitMQPublisher) PublishPollVoted(ctx context.Context, voter string, poll *domain.Poll, optionIndex uint64) error {
	event := struct {
		Type        string       `json:"type"`
		Timestamp   string       `json:"timestamp"`
		Voter       string       `json:"voter"`
		OptionIndex uint64       `json:"option_index"`
		Data        *domain.Poll `json:"data"`
	}{
		Type:        "poll.voted",
		Timestamp:   time.Now().Format(time.RFC3339),
		Voter:       voter,
		OptionIndex: optionIndex,
		Data:        poll,
	}

	return p.publishEvent(ctx, event, "poll.voted")
}

func (p *RabbitMQPublisher) PublishPollDeleted(ctx context.Context, creator string, pollID uint64) error {
	event := struct {
		Type      string `json:"type"`
		Timestamp string `json:"timestamp"`
		Creator   string `json:"creator"`
		PollID    uint64 `json:"poll_id"`
	}{
		Type:      "poll.deleted",
		Timestamp: time.Now().Format(time.RFC3339),
		Creator:   creator,
		PollID:    pollID,
	}

	return p.publishEvent(ctx, event, "poll.deleted")
}

func (p *RabbitMQPublisher) publishEvent(ctx context.Context, event interface{}, routingKey string) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"pollchain",
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish message to RabbitMQ",
			zap.Error(err),
			zap.String("routing_key", routingKey),
		)
		return fmt.Errorf("publish message: %w", err)
	}

	return nil
}
