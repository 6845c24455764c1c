package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// TopicAll subscribes a handler to every published topic.
	TopicAll = "*"

	TopicAlerts        = "alerts"
	TopicTasksApproved = "tasks.approved"
)

// TopicEvents is the topic normalized webhook events are published on,
// one per external service.
func TopicEvents(service string) string {
	return "events." + service
}

// Event is a normalized notification from an external service.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Service    string          `json:"service"`
	Type       string          `json:"type"`
	ExternalID string          `json:"externalId"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// DedupeKey identifies a delivery independent of redelivery attempts.
func (e Event) DedupeKey() string {
	return fmt.Sprintf("%s/%s/%s", e.Service, e.Type, e.ExternalID)
}

type Handler func(ctx context.Context, event Event) error

type subscription struct {
	name    string
	handler Handler
}

// Bus is an in-process at-least-once publish/subscribe dispatcher. One
// instance is constructed at startup and injected into every component;
// Drain waits for in-flight handlers at shutdown.
//
// Delivery to each subscriber runs on its own goroutine so publishers never
// block on handlers. A failing handler is redelivered up to maxRedeliveries
// times; subscribers must therefore be idempotent against duplicates.
type Bus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string][]subscription

	wg sync.WaitGroup

	maxRedeliveries int
	redeliveryDelay time.Duration
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:          logger.Named("eventbus"),
		subs:            make(map[string][]subscription),
		maxRedeliveries: 3,
		redeliveryDelay: 100 * time.Millisecond,
	}
}

func (b *Bus) Subscribe(topic, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], subscription{name: name, handler: h})
}

// Publish dispatches event to every subscriber of topic (and of TopicAll)
// asynchronously and returns immediately.
func (b *Bus) Publish(ctx context.Context, topic string, event Event) {
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs[topic])+len(b.subs[TopicAll]))
	targets = append(targets, b.subs[topic]...)
	if topic != TopicAll {
		targets = append(targets, b.subs[TopicAll]...)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.wg.Add(1)
		go b.deliver(ctx, sub, topic, event)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, topic string, event Event) {
	defer b.wg.Done()

	var err error
	for attempt := 0; attempt <= b.maxRedeliveries; attempt++ {
		if attempt > 0 {
			time.Sleep(b.redeliveryDelay)
		}
		if err = sub.handler(ctx, event); err == nil {
			return
		}
		b.logger.Warn("event handler failed",
			zap.String("topic", topic),
			zap.String("subscriber", sub.name),
			zap.String("event", event.DedupeKey()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	b.logger.Error("dropping event after redelivery attempts exhausted",
		zap.String("topic", topic),
		zap.String("subscriber", sub.name),
		zap.String("event", event.DedupeKey()),
		zap.Error(err))
}

// Drain blocks until all in-flight deliveries finish or ctx expires.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
