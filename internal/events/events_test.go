package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockChannel struct {
	declared   []string
	declareErr error
	publishErr error
	calls      []publishCall
	closed     bool
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if kind != "topic" || !durable {
		return errors.New("unexpected exchange options")
	}
	m.declared = append(m.declared, name)
	return m.declareErr
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	m.calls = append(m.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return m.publishErr
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func testEvent() order.Event {
	return order.Event{
		OrderID:       42,
		TableNumber:   7,
		Action:        order.ActionAddItems,
		Status:        order.StatusConfirmed,
		BatchSequence: 2,
		Items: []order.EventItem{
			{ItemID: 5, ProductID: 3, ProductName: "Pad \"Thai\"", Quantity: 2, Status: order.ItemActive},
		},
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublish(t *testing.T) {
	ch := &mockChannel{}
	p, err := NewAMQPPublisher(ch, "pos.orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"pos.orders"}, ch.declared)

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, ch.calls, 1)
	call := ch.calls[0]
	assert.Equal(t, "pos.orders", call.exchange)
	assert.Equal(t, "order.add_items", call.key)
	assert.Equal(t, amqp.Persistent, call.msg.DeliveryMode)
	assert.Equal(t, "application/json", call.msg.ContentType)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublish_Error(t *testing.T) {
	ch := &mockChannel{publishErr: errors.New("channel closed")}
	p, err := NewAMQPPublisher(ch, "pos.orders")
	require.NoError(t, err)

	err = p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order 42")
}

func TestNewAMQPPublisher_DeclareError(t *testing.T) {
	_, err := NewAMQPPublisher(&mockChannel{declareErr: errors.New("access refused")}, "pos.orders")
	require.Error(t, err)
}

func TestEncode(t *testing.T) {
	body := Encode(testEvent())
	require.True(t, jx.Valid(body))

	var (
		orderID  int64
		action   string
		batch    int
		names    []string
		occurred string
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			orderID, err = d.Int64()
		case "action":
			action, err = d.Str()
		case "batchSequence":
			batch, err = d.Int()
		case "occurredAt":
			occurred, err = d.Str()
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "productName" {
						return d.Skip()
					}
					name, err := d.Str()
					names = append(names, name)
					return err
				})
			})
		default:
			return d.Skip()
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), orderID)
	assert.Equal(t, "ADD_ITEMS", action)
	assert.Equal(t, 2, batch)
	assert.Equal(t, []string{`Pad "Thai"`}, names)
	assert.Equal(t, "2024-03-01T12:00:00Z", occurred)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "order.void_item", RoutingKey(order.ActionVoidItem))
	assert.Equal(t, "order.checkout", RoutingKey(order.ActionCheckout))
}
