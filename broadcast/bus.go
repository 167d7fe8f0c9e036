package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Kind tags an event with its meaning.
type Kind string

const (
	// KindAuthFailure signals a terminal, unrecoverable 401 after the
	// refresh attempt. The authoritative reaction is forced logout.
	KindAuthFailure Kind = "auth:failure"
	// KindLoggedOut signals an explicit logout, user-initiated or
	// externally triggered.
	KindLoggedOut Kind = "auth:logged-out"
)

// Event is one broadcast message. Origin identifies the publishing bus so
// subscribers can distinguish local events from remote ones; remote buses
// drop echoes of their own publishes.
type Event struct {
	Kind   Kind   `json:"kind"`
	Origin string `json:"origin"`
	Reason string `json:"reason,omitempty"`
	At     int64  `json:"at"`
}

const bufferSize = 16

// Bus is a process-wide publish/subscribe signal. The zero value is
// unusable; construct through [New]. All methods are safe for concurrent
// use after construction.
type Bus struct {
	origin  string
	log     *slog.Logger
	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)

	rdb     redis.UniversalClient
	channel string
	pubsub  *redis.PubSub
}

// New creates a bus. rdb may be nil for single-process use; when non-nil the
// bus mirrors publishes to the named Redis channel and fans remote events
// out to local subscribers. logger may be nil.
func New(rdb redis.UniversalClient, channel string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		origin:  uuid.NewString(),
		log:     logger,
		ch:      make(chan Event, bufferSize),
		done:    make(chan struct{}),
		subs:    make(map[int]func(Event)),
		rdb:     rdb,
		channel: channel,
	}
	b.wg.Add(1)
	go b.run()
	if rdb != nil && channel != "" {
		b.pubsub = rdb.Subscribe(context.Background(), channel)
		b.wg.Add(1)
		go b.receive()
	}
	return b
}

// Origin returns the bus instance id stamped on its own publishes.
func (b *Bus) Origin() string { return b.origin }

// Dropped returns the number of events discarded because the local buffer
// was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribe registers fn for every event and returns a cancel function.
// Handlers run on the bus goroutine and must not block.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish emits an event of the given kind from this bus. It stamps origin
// and timestamp, fans out locally, and mirrors to Redis when configured.
// Publish never blocks: on local overflow the event is dropped and counted.
func (b *Bus) Publish(kind Kind, reason string) {
	if b == nil || b.closed.Load() {
		return
	}
	ev := Event{Kind: kind, Origin: b.origin, Reason: reason, At: time.Now().Unix()}
	b.deliver(ev)
	if b.rdb != nil && b.channel != "" {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := b.rdb.Publish(context.Background(), b.channel, payload).Err(); err != nil {
				b.log.Warn("broadcast: redis publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (b *Bus) deliver(ev Event) {
	select {
	case b.ch <- ev:
	case <-b.done:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.ch:
			b.fanout(ev)
		case <-b.done:
			for {
				select {
				case ev := <-b.ch:
					b.fanout(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) fanout(ev Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func (b *Bus) receive() {
	defer b.wg.Done()
	ch := b.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("broadcast: malformed remote event", slog.String("error", err.Error()))
				continue
			}
			if ev.Origin == b.origin {
				// Echo of our own publish.
				continue
			}
			b.deliver(ev)
		case <-b.done:
			return
		}
	}
}

// Close stops the drain goroutine and the Redis subscription. Pending local
// events are flushed to subscribers before Close returns.
func (b *Bus) Close() {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return
	}
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	close(b.done)
	b.wg.Wait()
}
