package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"paywall/core/types"
)

const defaultSubscriberBuffer = 64

// Bus fans committed events out to any number of subscribers. Slow subscribers
// lose events rather than blocking the publisher; each subscription reports how
// many it dropped.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	nowFn  func() time.Time
}

// Subscription receives events published on a Bus.
type Subscription struct {
	id      uint64
	bus     *Bus
	ch      chan *types.Event
	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription), nowFn: time.Now}
}

// Emit implements Emitter. The wire payload is stamped with a fresh id and
// timestamp before delivery.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	stamped := *payload
	if stamped.ID == "" {
		stamped.ID = uuid.NewString()
	}
	if stamped.Timestamp == 0 {
		stamped.Timestamp = b.nowFn().UTC().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.deliver(&stamped)
	}
}

// Subscribe registers a new subscriber with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, bus: b, ch: make(chan *types.Event, buffer)}
	b.subs[sub.id] = sub
	return sub
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan *types.Event { return s.ch }

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(evt *types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
	default:
		s.dropped++
	}
}

// Multi forwards each event to every wrapped emitter in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory. Tests use it to assert on
// emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
