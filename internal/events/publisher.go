// Package events publishes committed production runs and order changes to
// Kafka so downstream systems (planning, accounting) can follow stock.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
)

const (
	TypeProductionCommitted = "production.committed"
	TypeOrderChanged        = "order.changed"
)

// Envelope is the JSON value of every message.
type Envelope struct {
	Type       string                   `json:"type"`
	OccurredAt time.Time                `json:"occurred_at"`
	Production *engine.ProductionResult `json:"production,omitempty"`
	Order      *orders.Order            `json:"order,omitempty"`
}

// Writer is the part of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	w   Writer
	log *slog.Logger
	now func() time.Time
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
}

func NewPublisher(w Writer, log *slog.Logger) *Publisher {
	return &Publisher{w: w, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// ProductionCommitted is keyed by product id so runs of one product stay
// ordered within a partition.
func (p *Publisher) ProductionCommitted(ctx context.Context, res engine.ProductionResult) {
	p.publish(ctx, strconv.FormatInt(res.ProductID, 10), Envelope{
		Type:       TypeProductionCommitted,
		OccurredAt: p.now(),
		Production: &res,
	})
}

func (p *Publisher) OrderChanged(ctx context.Context, o orders.Order) {
	p.publish(ctx, "order-"+strconv.FormatInt(o.ID, 10), Envelope{
		Type:       TypeOrderChanged,
		OccurredAt: p.now(),
		Order:      &o,
	})
}

func (p *Publisher) publish(ctx context.Context, key string, ev Envelope) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("encode event failed", "type", ev.Type, "err", err)
		return
	}
	msg := kafka.Message{Key: []byte(key), Value: payload}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publish event failed", "type", ev.Type, "key", key, "err", err)
		return
	}
	p.log.Debug("event published", "type", ev.Type, "key", key)
}

func (p *Publisher) Close() error { return p.w.Close() }

// headerCarrier lets the propagator write trace context into message headers.
type headerCarrier struct{ msg *kafka.Message }

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
