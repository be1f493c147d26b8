package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBroker_RequiresStart(t *testing.T) {
	b := NewLocalBroker()
	assert.Error(t, b.Publish(context.Background(), Delivery{Room: "r"}))

	got := make(chan Delivery, 1)
	require.NoError(t, b.Start(func(d Delivery) { got <- d }))
	require.NoError(t, b.Publish(context.Background(), Delivery{Room: "r", Payload: json.RawMessage(`{}`)}))
	assert.Equal(t, "r", (<-got).Room)
}

func TestRedisBroker_FansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	first := NewRedisBroker(newClient(), "test:chat")
	second := NewRedisBroker(newClient(), "test:chat")

	gotFirst := make(chan Delivery, 4)
	gotSecond := make(chan Delivery, 4)
	require.NoError(t, first.Start(func(d Delivery) { gotFirst <- d }))
	require.NoError(t, second.Start(func(d Delivery) { gotSecond <- d }))
	t.Cleanup(func() {
		assert.NoError(t, first.Close())
		assert.NoError(t, second.Close())
	})

	payload, err := encode(EventReceiveMessage, map[string]string{"messageText": "Hello"})
	require.NoError(t, err)
	require.NoError(t, first.Publish(context.Background(), Delivery{Room: ConversationRoom("c1"), Payload: payload, Exclude: "client-1"}))

	for _, ch := range []chan Delivery{gotFirst, gotSecond} {
		select {
		case d := <-ch:
			assert.Equal(t, ConversationRoom("c1"), d.Room)
			assert.Equal(t, "client-1", d.Exclude)
			assert.JSONEq(t, string(payload), string(d.Payload))
		case <-time.After(2 * time.Second):
			t.Fatal("delivery not received")
		}
	}
}

func TestRedisBroker_HubsShareRooms(t *testing.T) {
	mr := miniredis.RunT(t)

	hubA, err := NewHub(NewRedisBroker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:rooms"))
	require.NoError(t, err)
	hubB, err := NewHub(NewRedisBroker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:rooms"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = hubA.Close()
		_ = hubB.Close()
	})

	onB := testClient("b", "user-2", 4)
	hubB.Register(onB)
	hubB.Join(onB, ConversationRoom("conv-1"))

	require.NoError(t, hubA.EmitToConversation(context.Background(), "conv-1", EventReceiveMessage, map[string]string{"messageText": "Hello"}))

	select {
	case payload := <-onB.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		assert.Equal(t, EventReceiveMessage, env.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("event did not cross instances")
	}
}

func TestRedisBroker_StartFailsWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	assert.Error(t, NewRedisBroker(client, "test:chat").Start(func(Delivery) {}))
}
