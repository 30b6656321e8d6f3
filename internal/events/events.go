// Package events publishes committed order events to RabbitMQ for the
// kitchen display.
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel used by AMQPPublisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ order.Publisher = (*AMQPPublisher)(nil)

// AMQPPublisher publishes order events to a durable topic exchange with
// routing key "order.<action>", e.g. "order.add_items".
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch Channel
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	p, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher declares exchange on ch and returns a publisher using it.
func NewAMQPPublisher(ch Channel, exchange string) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

// Publish implements order.Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, e order.Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.PublishWithContext(ctx,
		p.exchange,           // exchange
		RoutingKey(e.Action), // routing key
		false,                // mandatory
		false,                // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    e.OccurredAt,
			Body:         Encode(e),
		})
	if err != nil {
		return errors.Wrapf(err, "publish %s for order %d", e.Action, e.OrderID)
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *AMQPPublisher) Ping(context.Context) error {
	if p.conn != nil && p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection it owns.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// RoutingKey returns the topic routing key for action.
func RoutingKey(a order.Action) string {
	return "order." + strings.ToLower(string(a))
}

// Encode renders e as JSON.
func Encode(e order.Event) []byte {
	w := jx.GetEncoder()
	defer jx.PutEncoder(w)

	w.ObjStart()
	w.FieldStart("orderId")
	w.Int64(e.OrderID)
	w.FieldStart("tableNumber")
	w.Int(e.TableNumber)
	w.FieldStart("action")
	w.Str(string(e.Action))
	w.FieldStart("status")
	w.Str(string(e.Status))
	if e.BatchSequence > 0 {
		w.FieldStart("batchSequence")
		w.Int(e.BatchSequence)
	}
	w.FieldStart("items")
	w.ArrStart()
	for _, it := range e.Items {
		w.ObjStart()
		w.FieldStart("itemId")
		w.Int64(it.ItemID)
		w.FieldStart("productId")
		w.Int64(it.ProductID)
		w.FieldStart("productName")
		w.Str(it.ProductName)
		w.FieldStart("quantity")
		w.Int(it.Quantity)
		w.FieldStart("status")
		w.Str(string(it.Status))
		if it.VoidReason != "" {
			w.FieldStart("voidReason")
			w.Str(it.VoidReason)
		}
		w.ObjEnd()
	}
	w.ArrEnd()
	w.FieldStart("occurredAt")
	w.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	w.ObjEnd()

	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out
}
