// Package stream is the direct-message store: append-only writes plus live
// per-user subscriptions that replay full history and then follow updates.
// Seen-transitions are re-delivered as upserts of the same message id, so a
// subscriber's view of a message converges regardless of arrival order.
package stream

import (
	"sync"

	"github.com/studygroup/internal/model"
)

// Broker fans appended and updated messages out to the live subscriptions
// of both conversation participants. In-process: every API instance owns
// one; cross-instance consistency comes from the shared store, as each
// fresh subscription replays history from it.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Publish delivers an upsert of m to every subscription observing either
// participant. Never blocks: each subscription queues internally.
func (b *Broker) Publish(m model.Message) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, 4)
	for s := range b.subs[m.SenderID] {
		targets = append(targets, s)
	}
	if m.RecipientID != m.SenderID {
		for s := range b.subs[m.RecipientID] {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(m)
	}
}

func (b *Broker) add(s *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[s.observerID]; !ok {
		b.subs[s.observerID] = make(map[*Subscription]struct{})
	}
	b.subs[s.observerID][s] = struct{}{}
	b.mu.Unlock()
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[s.observerID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.observerID)
		}
	}
	b.mu.Unlock()
}

// Subscription is one observer's live view of the message stream.
// Events() yields the history replay first, then live upserts, until
// Cancel. After Cancel returns, no further events are delivered.
type Subscription struct {
	observerID string
	broker     *Broker

	mu      sync.Mutex
	pending []model.Message
	started bool

	wake chan struct{}
	out  chan model.Message
	done chan struct{}
	once sync.Once
}

func newSubscription(b *Broker, observerID string) *Subscription {
	return &Subscription{
		observerID: observerID,
		broker:     b,
		wake:       make(chan struct{}, 1),
		out:        make(chan model.Message),
		done:       make(chan struct{}),
	}
}

// Events returns the ordered event channel. Closed after Cancel.
func (s *Subscription) Events() <-chan model.Message {
	return s.out
}

// ObserverID returns the user this subscription belongs to.
func (s *Subscription) ObserverID() string {
	return s.observerID
}

// enqueue queues an upsert without blocking the publisher.
func (s *Subscription) enqueue(m model.Message) {
	s.mu.Lock()
	s.pending = append(s.pending, m)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// start seeds the queue with the history replay (ahead of any live upserts
// queued while history was loading) and launches the delivery goroutine.
func (s *Subscription) start(history []model.Message) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.pending = append(append(make([]model.Message, 0, len(history)+len(s.pending)), history...), s.pending...)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	go s.pump()
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, m := range batch {
			select {
			case s.out <- m:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// Cancel tears the subscription down. Idempotent; safe from any goroutine.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}
