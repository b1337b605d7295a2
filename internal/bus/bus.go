// Package bus implements the message-transport primitives named in the
// spec — broadcast, send, subscribe, request/response correlation, and
// self-channel rebinding — on top of Redis pub/sub, the way pkg/pgnotify
// implements the same broadcast/subscribe/Event/Handler shape on top of
// Postgres LISTEN/NOTIFY.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/haroldsh/fulcrum/internal/obs"
)

// Event is the envelope every subscriber receives, carrying the raw
// payload plus enough metadata to correlate request/response exchanges.
type Event struct {
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler processes a received Event. Handlers must be re-entrant and
// idempotent: the same Event may be redelivered after a reconnect.
type Handler func(ctx context.Context, event Event) error

// Bus is a Redis-pub/sub-backed message bus. One Bus instance corresponds
// to one process's subscription set; Broadcast/Send are safe to call from
// any goroutine.
type Bus struct {
	client *redis.Client
	log    *obs.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	pubsub   *redis.PubSub

	selfMu   sync.RWMutex
	serverID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Bus over an already-dialed redis.Client.
func New(client *redis.Client, log *obs.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		client:   client,
		log:      log,
		handlers: make(map[string][]Handler),
		pubsub:   client.Subscribe(ctx),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.wg.Add(1)
	go b.listen()
	return b
}

// Broadcast fans payload out to every subscriber of channel.
func (b *Bus) Broadcast(ctx context.Context, channel string, payload interface{}) error {
	return b.publish(ctx, channel, payload)
}

// Send is directed delivery to a single channel (e.g. server:<id>); on a
// pub/sub transport this is identical to Broadcast, the distinction is at
// the call site (one subscriber vs many).
func (b *Bus) Send(ctx context.Context, channel string, payload interface{}) error {
	return b.publish(ctx, channel, payload)
}

func (b *Bus) publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload: %w", err)
	}
	envelope := Event{Channel: channel, Payload: data, Timestamp: time.Now().UTC()}
	envData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	return b.client.Publish(ctx, channel, envData).Err()
}

// Subscribe registers handler for channel, issuing a SUBSCRIBE the first
// time a channel gains a handler.
func (b *Bus) Subscribe(channel string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.handlers[channel]) == 0 {
		if err := b.pubsub.Subscribe(b.ctx, channel); err != nil {
			return fmt.Errorf("bus: subscribe %s: %w", channel, err)
		}
	}
	b.handlers[channel] = append(b.handlers[channel], handler)
	return nil
}

// Unsubscribe removes every handler registered for channel.
func (b *Bus) Unsubscribe(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, channel)
	return b.pubsub.Unsubscribe(b.ctx, channel)
}

// Request sends payload on channel and waits up to timeout for a reply on
// response:<requestId>, implemented as send + reply correlation (spec
// §4.A): the requester subscribes to its own correlation channel before
// publishing so no reply can race ahead of the subscription.
func (b *Bus) Request(ctx context.Context, channel string, payload interface{}, timeout time.Duration) (Event, error) {
	requestID := uuid.NewString()
	replyChannel := fmt.Sprintf("response:%s", requestID)

	replies := make(chan Event, 1)
	if err := b.Subscribe(replyChannel, func(_ context.Context, ev Event) error {
		select {
		case replies <- ev:
		default:
		}
		return nil
	}); err != nil {
		return Event{}, err
	}
	defer b.Unsubscribe(replyChannel)

	envelope := map[string]interface{}{"requestId": requestID, "replyChannel": replyChannel, "payload": payload}
	if err := b.publish(ctx, channel, envelope); err != nil {
		return Event{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case ev := <-replies:
		return ev, nil
	case <-reqCtx.Done():
		return Event{}, fmt.Errorf("bus: request on %s timed out after %s", channel, timeout)
	}
}

// RefreshServerIdentity records the new server id after it changes (e.g.
// a registry-assigned id replaces a temp id), so SelfServerID returns it.
// It does not subscribe or unsubscribe any channel; the caller subscribes
// the channels named after the new id itself.
func (b *Bus) RefreshServerIdentity(newServerID string) {
	b.selfMu.Lock()
	b.serverID = newServerID
	b.selfMu.Unlock()
}

// SelfServerID returns the currently bound server id, if any.
func (b *Bus) SelfServerID() string {
	b.selfMu.RLock()
	defer b.selfMu.RUnlock()
	return b.serverID
}

// Close stops the listener goroutine and closes the underlying pub/sub
// connection.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.pubsub.Close()
}

func (b *Bus) listen() {
	defer b.wg.Done()
	ch := b.pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				event = Event{Channel: msg.Channel, Payload: json.RawMessage(msg.Payload), Timestamp: time.Now().UTC()}
			}

			b.mu.RLock()
			handlers := make([]Handler, len(b.handlers[msg.Channel]))
			copy(handlers, b.handlers[msg.Channel])
			b.mu.RUnlock()

			for _, h := range handlers {
				go b.invoke(h, event)
			}
		}
	}
}

func (b *Bus) invoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.With(nil).Errorf("bus: handler panic on %s: %v", event.Channel, r)
		}
	}()
	if err := h(b.ctx, event); err != nil {
		b.log.With(nil).WithError(err).Warnf("bus: handler error on %s", event.Channel)
	}
}
