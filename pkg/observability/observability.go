// Package observability broadcasts operational events for a running
// pipeline — epoch commits, snapshot completion, node termination — to any
// number of subscribers (a CLI progress reporter, an operator-supplied
// handler) without coupling the executor to how those events are consumed.
package observability

import (
	"sync"
	"time"
)

// EventType tags the kind of thing that happened.
type EventType string

const (
	EventEpochCommitted    EventType = "epoch.committed"
	EventSnapshotDone      EventType = "snapshot.done"
	EventNodeTerminated    EventType = "node.terminated"
	EventNodeError         EventType = "node.error"
	EventCheckpointWritten EventType = "checkpoint.written"
)

// Event is one thing that happened in a pipeline.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Pipeline  string
	Node      string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans out published events to every current subscriber, dropping
// events for a subscriber whose buffer is full rather than blocking the
// publisher on a slow consumer.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker returns a Broker with its distribution loop not yet started.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker; safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a new channel that receives every event published from
// now on, buffered so a momentarily slow subscriber doesn't lose events
// under ordinary load.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish delivers event to every subscriber, setting Timestamp if unset.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
