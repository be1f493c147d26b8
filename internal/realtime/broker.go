package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Delivery is one encoded frame addressed to a room. Exclude names a client id
// that must not receive it.
type Delivery struct {
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
	Exclude string          `json:"exclude,omitempty"`
}

// Broker carries deliveries to every hub that shares rooms.
type Broker interface {
	// Start registers the function that hands deliveries to the local hub.
	Start(deliver func(Delivery)) error
	Publish(ctx context.Context, d Delivery) error
	Close() error
}

// LocalBroker delivers in-process. It is used when no Redis is configured.
type LocalBroker struct {
	mu      sync.RWMutex
	deliver func(Delivery)
}

// NewLocalBroker creates an in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Start(deliver func(Delivery)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = deliver
	return nil
}

func (b *LocalBroker) Publish(_ context.Context, d Delivery) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver == nil {
		return fmt.Errorf("broker not started")
	}
	deliver(d)
	return nil
}

func (b *LocalBroker) Close() error { return nil }

// RedisBroker fans deliveries out over a Redis pub/sub channel so that clients
// connected to different server instances share rooms.
type RedisBroker struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBroker creates a broker on channel.
func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	return &RedisBroker{client: client, channel: channel}
}

// Start subscribes and returns once the subscription is confirmed by Redis.
func (b *RedisBroker) Start(deliver func(Delivery)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("broker already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.pubsub = pubsub
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.receive(ctx, pubsub.Channel(), deliver)

	log.Info().Str("channel", b.channel).Msg("realtime broker subscribed")
	return nil
}

func (b *RedisBroker) receive(ctx context.Context, ch <-chan *redis.Message, deliver func(Delivery)) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				log.Warn().Err(err).Str("channel", b.channel).Msg("dropping malformed delivery")
				continue
			}
			deliver(d)
		}
	}
}

// Publish sends d to every subscribed instance, this one included.
func (b *RedisBroker) Publish(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish delivery: %w", err)
	}
	return nil
}

// Close stops the subscription.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	pubsub, cancel, done := b.pubsub, b.cancel, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	cancel()
	err := pubsub.Close()
	<-done
	if err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", b.channel, err)
	}
	return nil
}
