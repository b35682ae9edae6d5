package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesOnlyItsChannels(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(ChannelOrders, ChannelProfiles)
	defer sub.Close()

	hub.Publish(Change{Channel: ChannelProducts, Op: "UPDATE", RowID: "p1"})
	hub.Publish(Change{Channel: ChannelOrders, Op: "INSERT", RowID: "o1"})
	hub.Publish(Change{Channel: ChannelProfiles, Op: "UPDATE", RowID: "u1"})

	assert.Equal(t, Change{Channel: ChannelOrders, Op: "INSERT", RowID: "o1"}, <-sub.C())
	assert.Equal(t, Change{Channel: ChannelProfiles, Op: "UPDATE", RowID: "u1"}, <-sub.C())
	select {
	case c := <-sub.C():
		t.Fatalf("unexpected change %+v", c)
	default:
	}
}

func TestCloseRemovesSubscriptionAndIsIdempotent(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(ChannelOrders, ChannelProfiles)
	b := hub.Subscribe(ChannelOrders)
	assert.Equal(t, 2, hub.SubscriberCount())

	a.Close()
	a.Close()
	assert.Equal(t, 1, hub.SubscriberCount())

	_, open := <-a.C()
	assert.False(t, open)

	hub.Publish(Change{Channel: ChannelOrders, Op: "INSERT"})
	assert.Equal(t, "INSERT", (<-b.C()).Op)

	b.Close()
	assert.Equal(t, 0, hub.SubscriberCount())
	hub.Publish(Change{Channel: ChannelOrders, Op: "INSERT"})
}

func TestSlowSubscriberGetsResync(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(ChannelOrders)
	defer sub.Close()

	for i := 0; i < hub.buffer+5; i++ {
		hub.Publish(Change{Channel: ChannelOrders, Op: "INSERT"})
	}
	for i := 0; i < hub.buffer; i++ {
		<-sub.C()
	}
	hub.Publish(Change{Channel: ChannelOrders, Op: "UPDATE", RowID: "last"})

	assert.Equal(t, OpResync, (<-sub.C()).Op)
	assert.Equal(t, "last", (<-sub.C()).RowID)
}

func TestDecodeNotification(t *testing.T) {
	c, err := DecodeNotification(`{"table":"orders","op":"UPDATE","id":"abc"}`)
	require.NoError(t, err)
	assert.Equal(t, Change{Channel: "orders", Op: "UPDATE", RowID: "abc"}, c)

	_, err = DecodeNotification(`{"op":"UPDATE"}`)
	assert.Error(t, err)
	_, err = DecodeNotification(`not json`)
	assert.Error(t, err)
}
