package eventbus

import (
	"sync"

	"github.com/rs/xid"
)

// Handler consumes one published event
type Handler func(event *Event)

// Bus is the publish side of the presence lifecycle stream
type Bus interface {
	// Publish delivers an event to every matching subscriber, synchronously
	Publish(event *Event)

	// PublishAsync queues an event for delivery; full queues drop silently
	PublishAsync(event *Event)

	// Subscribe registers a handler for one event type and returns its id
	Subscribe(eventType EventType, handler Handler) string

	// SubscribeAll registers a handler for every event and returns its id
	SubscribeAll(handler Handler) string

	// Unsubscribe removes a subscription by id
	Unsubscribe(id string)

	// Start begins draining the async queue
	Start()

	// Stop halts the async drain. Queued events are discarded.
	Stop()
}

// InMemoryBus delivers events inside the process. Async publishes never
// block the caller: the queue is bounded and overflow is dropped, because
// observability must not stall a presence mutation.
type InMemoryBus struct {
	mu     sync.RWMutex
	typed  map[EventType]map[string]Handler
	all    map[string]Handler
	queue  chan *Event
	quit   chan struct{}
	once   sync.Once
	closed sync.Once
	wg     sync.WaitGroup
}

// NewInMemoryBus creates a bus with the given async queue capacity
func NewInMemoryBus(queueSize int) *InMemoryBus {
	return &InMemoryBus{
		typed: make(map[EventType]map[string]Handler),
		all:   make(map[string]Handler),
		queue: make(chan *Event, queueSize),
		quit:  make(chan struct{}),
	}
}

// Publish delivers the event to subscribers of its type, then to the
// catch-all subscribers
func (b *InMemoryBus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.typed[event.Type] {
		handler(event)
	}
	for _, handler := range b.all {
		handler(event)
	}
}

// PublishAsync queues the event for the drain goroutine
func (b *InMemoryBus) PublishAsync(event *Event) {
	select {
	case b.queue <- event:
	default:
	}
}

// Subscribe registers a handler for eventType
func (b *InMemoryBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := xid.New().String()
	if b.typed[eventType] == nil {
		b.typed[eventType] = make(map[string]Handler)
	}
	b.typed[eventType][id] = handler
	return id
}

// SubscribeAll registers a handler for every event
func (b *InMemoryBus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := xid.New().String()
	b.all[id] = handler
	return id
}

// Unsubscribe removes the subscription with the given id
func (b *InMemoryBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.all[id]; ok {
		delete(b.all, id)
		return
	}
	for eventType, handlers := range b.typed {
		if _, ok := handlers[id]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.typed, eventType)
			}
			return
		}
	}
}

// Start launches the async drain goroutine
func (b *InMemoryBus) Start() {
	b.once.Do(func() {
		b.wg.Add(1)
		go b.drain()
	})
}

// Stop halts the drain goroutine
func (b *InMemoryBus) Stop() {
	b.closed.Do(func() {
		close(b.quit)
	})
	b.wg.Wait()
}

func (b *InMemoryBus) drain() {
	defer b.wg.Done()

	for {
		select {
		case <-b.quit:
			return
		case event := <-b.queue:
			if event != nil {
				b.Publish(event)
			}
		}
	}
}
