// Package events publishes committed gate decisions to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

const DefaultExchange = "parkgate.decisions"

// DecisionEvent is the message body for one ledger entry.
type DecisionEvent struct {
	LogID           int64     `json:"log_id"`
	CardID          *int64    `json:"card_id"`
	CardUID         string    `json:"card_uid"`
	ReaderID        string    `json:"reader_id"`
	Action          string    `json:"action"`
	Result          string    `json:"result"`
	Reason          *string   `json:"reason"`
	DurationMinutes *int64    `json:"duration_minutes"`
	Fee             *int64    `json:"fee"`
	DecidedAt       time.Time `json:"decided_at"`
}

func NewDecisionEvent(e store.LogEntry) DecisionEvent {
	return DecisionEvent{
		LogID:           e.ID,
		CardID:          e.CardID,
		CardUID:         e.CardUID,
		ReaderID:        e.ReaderID,
		Action:          string(e.Action),
		Result:          string(e.Result),
		Reason:          e.Reason,
		DurationMinutes: e.DurationMinutes,
		Fee:             e.Fee,
		DecidedAt:       e.DecidedAt.UTC(),
	}
}

// RoutingKey is gate.decision.granted or gate.decision.denied.
func RoutingKey(e store.LogEntry) string {
	return "gate.decision." + string(e.Result)
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger

	mu sync.Mutex
	ch channel
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, exchange: exchange, logger: logger}
}

func (p *Publisher) PublishDecision(ctx context.Context, e store.LogEntry) error {
	body, err := json.Marshal(NewDecisionEvent(e))
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%d", e.ID),
		Timestamp:    e.DecidedAt.UTC(),
		Type:         "gate.decision",
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return fmt.Errorf("publisher closed")
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(e), false, false, msg); err != nil {
		return fmt.Errorf("publish decision %d: %w", e.ID, err)
	}
	p.logger.Debug("decision published", zap.Int64("log_id", e.ID), zap.String("routing_key", RoutingKey(e)))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.ch != nil {
		err = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
		p.conn = nil
	}
	return err
}
