package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bricktok/internal/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
	return Envelope{}
}

func TestHub_Subscriptions(t *testing.T) {
	hub := NewHub(5)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	defer func() {
		cancel()
		<-hub.done
	}()

	client := &Client{
		hub:        hub,
		send:       make(chan []byte, 8),
		subscribed: map[string]bool{ChannelBook: true, ChannelTrades: true},
	}
	hub.register <- client
	hub.subscribe <- subscription{client: client, channel: ChannelTrades, on: false}

	trade := common.Trade{ID: "t1", Price: decimal.NewFromInt(1002), Quantity: 3, Timestamp: time.Now()}
	hub.ReportTrade(trade)
	hub.ReportTrade(trade)
	// The hub is done with a publish once it accepts the next command.
	assert.Eventually(t, func() bool { return len(hub.publish) == 0 }, time.Second, time.Millisecond)
	hub.subscribe <- subscription{client: client, channel: ChannelTrades, on: true}
	hub.ReportTrade(common.Trade{ID: "t2", Timestamp: time.Now()})

	env := receive(t, client)
	assert.Equal(t, "trade", env.Type)
	assert.Equal(t, "t2", env.Trade.ID)
	assert.Equal(t, 1, hub.Clients())

	hub.unregister <- client
	_, open := <-client.send
	assert.False(t, open)
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, time.Millisecond)
}

func TestHub_PublishBufferFull(t *testing.T) {
	hub := NewHub(5)
	before := hub.Drops()
	for range defaultPublishBuf + 3 {
		hub.ReportTrade(common.Trade{ID: "t"})
	}
	assert.Equal(t, before+3, hub.Drops())
}
