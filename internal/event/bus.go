package event

import (
	"context"
	"reflect"
	"sync"
	"strconv"
	"sync/atomic"

	"qian/internal/logging"
	"qian/internal/metrics"
)

const defaultSubscriberBufferSize = 128

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	MaxSubscribers       int
	Metrics              *metrics.Registry
	// Logger reports the first drop of each run of drops for a subscriber.
	Logger *logging.Logger
}

// Bus fans published events out to subscribers. Publishing never blocks: an
// event is dropped for a subscriber whose buffer is full, counted and logged.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscription[T]
	nextSubID   uint64
	closed      bool
	closeOnce   sync.Once
	options     BusOptions
	published   atomic.Int64
	dropped     atomic.Int64
}

type subscription[T any] struct {
	id       uint64
	ch       chan T
	filter   func(T) bool
	dropping bool
}

func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	if opts.Name == "" {
		opts.Name = "event_bus"
	}
	bus := &Bus[T]{
		subscribers: make(map[uint64]*subscription[T]),
		options:     opts,
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered returns a channel receiving events accepted by filter and
// a cancel func that closes it. A closed or full bus returns a closed channel.
func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan T, b.options.SubscriberBufferSize)
	id := atomic.AddUint64(&b.nextSubID, 1)

	b.mu.Lock()
	if b.closed || (b.options.MaxSubscribers > 0 && len(b.subscribers) >= b.options.MaxSubscribers) {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = &subscription[T]{id: id, ch: ch, filter: filter}
	count := len(b.subscribers)
	b.mu.Unlock()

	b.options.Metrics.SetSubscribers(b.options.Name, count)
	return ch, func() {
		b.removeSubscriber(id)
	}
}

func (b *Bus[T]) Publish(event T) {
	if b == nil || isNil(event) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	eventType := eventTypeOf(event)
	b.published.Add(1)
	b.options.Metrics.IncEventPublished(b.options.Name, eventType)

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
			sub.dropping = false
		default:
			total := b.dropped.Add(1)
			b.options.Metrics.IncEventDropped(b.options.Name, eventType)
			if !sub.dropping {
				sub.dropping = true
				b.logDrop(sub.id, eventType, total)
			}
		}
	}
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribers := b.subscribers
		b.subscribers = make(map[uint64]*subscription[T])
		b.mu.Unlock()

		for _, sub := range subscribers {
			close(sub.ch)
		}
		b.options.Metrics.SetSubscribers(b.options.Name, 0)
	})
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Stats reports published and dropped totals.
func (b *Bus[T]) Stats() (published, dropped int64) {
	if b == nil {
		return 0, 0
	}
	return b.published.Load(), b.dropped.Load()
}

func (b *Bus[T]) removeSubscriber(id uint64) {
	b.mu.Lock()
	existing, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(existing.ch)
	}
	count := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		b.options.Metrics.SetSubscribers(b.options.Name, count)
	}
}

func (b *Bus[T]) logDrop(subscriber uint64, eventType string, total int64) {
	if b.options.Logger == nil {
		return
	}
	b.options.Logger.Warn("event dropped for slow subscriber", map[string]string{
		"qian.category": "event",
		"qian.source":   "backend",
		"bus":           b.options.Name,
		"type":          eventType,
		"subscriber":    strconv.FormatUint(subscriber, 10),
		"dropped_total": strconv.FormatInt(total, 10),
	})
}

func eventTypeOf[T any](event T) string {
	typed, ok := any(event).(Event)
	if !ok {
		return "unknown"
	}
	if value := typed.EventType(); value != "" {
		return value
	}
	return "unknown"
}

func isNil[T any](value T) bool {
	kind := reflect.ValueOf(value)
	if !kind.IsValid() {
		return true
	}
	switch kind.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice:
		return kind.IsNil()
	default:
		return false
	}
}
