package events

import (
	"errors"
	"sync"
	"time"
)

// Kind enumerates the domain events emitted by the connection engine.
type Kind string

const (
	KindConnected         Kind = "connected"
	KindDisconnected      Kind = "disconnected"
	KindReconnecting      Kind = "reconnecting"
	KindConnectionFailed  Kind = "connectionFailed"
	KindFullUpdate        Kind = "fullUpdate"
	KindMaintenanceUpdate Kind = "maintenanceUpdate"
	KindPlayerUpdate      Kind = "playerUpdate"
	KindServerUpdate      Kind = "serverUpdate"
	KindPlayerAdd         Kind = "playerAdd"
	KindPlayerRemove      Kind = "playerRemove"
	KindPlayerMove        Kind = "playerMove"
)

// Connected reports that the channel is open and subscribed.
type Connected struct{}

// Disconnected reports the close code and reason of a dropped connection.
type Disconnected struct {
	Code   int
	Reason string
}

// Reconnecting reports a scheduled reconnection attempt.
type Reconnecting struct {
	Attempt     int
	Delay       time.Duration
	MaxAttempts int
}

// ConnectionFailed reports exhausted reconnection; the session is terminal.
type ConnectionFailed struct {
	MaxAttempts   int
	TotalAttempts int
}

// FullUpdate summarizes an applied full sync.
type FullUpdate struct {
	ServerCount  int
	TotalPlayers int
}

// MaintenanceUpdate reports the maintenance flag after an authority signal.
type MaintenanceUpdate struct {
	Active    bool
	StartedAt *time.Time
}

// PlayerUpdate reports a change of the authoritative total player count.
type PlayerUpdate struct {
	TotalPlayers int
}

// ServerUpdate reports which servers a delta batch touched.
type ServerUpdate struct {
	ServerIDs []string
}

// PlayerAdd reports a player joining a server.
type PlayerAdd struct {
	UUID     string
	ServerID string
}

// PlayerRemove reports a player leaving the fleet.
type PlayerRemove struct {
	UUID     string
	ServerID string
	Resolved bool
}

// PlayerMove reports a player switching servers.
type PlayerMove struct {
	UUID string
	From string
	To   string
}

// Envelope carries exactly one concrete event payload, selected by Kind.
type Envelope struct {
	Kind              Kind
	Connected         *Connected
	Disconnected      *Disconnected
	Reconnecting      *Reconnecting
	ConnectionFailed  *ConnectionFailed
	FullUpdate        *FullUpdate
	MaintenanceUpdate *MaintenanceUpdate
	PlayerUpdate      *PlayerUpdate
	ServerUpdate      *ServerUpdate
	PlayerAdd         *PlayerAdd
	PlayerRemove      *PlayerRemove
	PlayerMove        *PlayerMove
}

// Bus fans domain events out to subscribers over buffered channels. Delivery is
// non-blocking: a saturated subscriber misses events instead of stalling the
// engine's dispatch loop.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]*subscriber
	dropped uint64
}

type subscriber struct {
	id int
	ch chan Envelope
}

// Subscription exposes the event channel and an explicit unsubscribe.
type Subscription struct {
	id   int
	bus  *Bus
	ch   chan Envelope
	once sync.Once
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) (*Subscription, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Envelope, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = &subscriber{id: id, ch: ch}
	b.mu.Unlock()

	return &Subscription{id: id, bus: b, ch: ch}, nil
}

// Events exposes the delivery channel for the subscriber.
func (s *Subscription) Events() <-chan Envelope {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close detaches the subscriber and closes its channel. Safe to call repeatedly.
func (s *Subscription) Close() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.unsubscribe(s.id)
	})
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish delivers the envelope to every current subscriber without blocking.
// Delivery happens under the bus mutex so a subscriber channel can never be
// closed between the snapshot and the send.
func (b *Bus) Publish(envelope Envelope) {
	if b == nil || envelope.Kind == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- envelope:
		default:
			//1.- Count rather than block: one faulty consumer must not break dispatch.
			b.dropped++
		}
	}
}

// Dropped reports how many deliveries were skipped due to saturated subscribers.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
