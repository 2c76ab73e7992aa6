package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

func tradeEvent(id int64) model.CanonicalEvent {
	price, _ := model.ParseDecimal("1.0")
	qty, _ := model.ParseDecimal("1.0")
	return model.CanonicalEvent{
		Exchange:   "kraken",
		Symbol:     "BTCUSD",
		StreamKind: model.StreamTrade,
		Price:      price,
		Qty:        qty,
		TsEvent:    id,
		TradeID:    &id,
	}
}

// A queue of capacity 4 that receives six publishes with no reads in
// between retains only the four newest, and reports exactly two drops.
func TestQueueDropOldestOnOverflow(t *testing.T) {
	b := New(4)
	q := b.Subscribe("trade:BTCUSD")

	for i := int64(1); i <= 6; i++ {
		b.Publish("trade:BTCUSD", tradeEvent(i))
	}

	var got []int64
	for i := 0; i < 4; i++ {
		ev, ok := q.TryRead()
		require.True(t, ok)
		got = append(got, ev.TsEvent)
	}

	assert.Equal(t, []int64{3, 4, 5, 6}, got)
	assert.Equal(t, uint64(2), q.Dropped())

	_, ok := q.TryRead()
	assert.False(t, ok)
}

func TestPublishEventFansOutToChannelAndAll(t *testing.T) {
	b := New(10)
	specific := b.Subscribe(ChannelFor(model.StreamTrade, "ETHUSD"))
	all := b.Subscribe(ChannelAll)
	other := b.Subscribe(ChannelFor(model.StreamBookTicker, "ETHUSD"))

	ev := tradeEvent(1)
	ev.Symbol = "ETHUSD"
	b.PublishEvent(ev)

	_, ok := specific.TryRead()
	assert.True(t, ok)
	_, ok = all.TryRead()
	assert.True(t, ok)
	_, ok = other.TryRead()
	assert.False(t, ok)
}

func TestUnsubscribeStopsDeliveryAndUnblocksRead(t *testing.T) {
	b := New(4)
	q := b.Subscribe("trade:BTCUSD")
	b.Unsubscribe("trade:BTCUSD", q)

	b.Publish("trade:BTCUSD", tradeEvent(1))
	_, ok := q.TryRead()
	assert.False(t, ok, "unsubscribed queue must not receive further publishes")

	_, ok = q.Read()
	assert.False(t, ok, "Read must unblock with ok=false once closed")
}

func TestSubscriberCountTracksRegistrations(t *testing.T) {
	b := New(4)
	assert.Equal(t, 0, b.SubscriberCount("trade:BTCUSD"))

	q1 := b.Subscribe("trade:BTCUSD")
	q2 := b.Subscribe("trade:BTCUSD")
	assert.Equal(t, 2, b.SubscriberCount("trade:BTCUSD"))

	b.Unsubscribe("trade:BTCUSD", q1)
	assert.Equal(t, 1, b.SubscriberCount("trade:BTCUSD"))

	b.Unsubscribe("trade:BTCUSD", q2)
	assert.Equal(t, 0, b.SubscriberCount("trade:BTCUSD"))
}
