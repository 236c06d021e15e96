package stream

import (
	"testing"
	"time"

	"github.com/studygroup/internal/model"
)

func mk(id, from, to string, at time.Time) model.Message {
	return model.Message{ID: id, SenderID: from, RecipientID: to, Body: "x", CreatedAt: at}
}

func waitMsg(t *testing.T, ch <-chan model.Message) model.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("events channel closed")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return model.Message{}
}

func TestBrokerDeliversToBothParticipants(t *testing.T) {
	b := NewBroker()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	subA := newSubscription(b, "alice")
	b.add(subA)
	subA.start(nil)
	defer subA.Cancel()

	subB := newSubscription(b, "bob")
	b.add(subB)
	subB.start(nil)
	defer subB.Cancel()

	subC := newSubscription(b, "carol")
	b.add(subC)
	subC.start(nil)
	defer subC.Cancel()

	b.Publish(mk("01A", "alice", "bob", base))

	if got := waitMsg(t, subA.Events()); got.ID != "01A" {
		t.Fatalf("alice got %q, want 01A", got.ID)
	}
	if got := waitMsg(t, subB.Events()); got.ID != "01A" {
		t.Fatalf("bob got %q, want 01A", got.ID)
	}
	select {
	case m := <-subC.Events():
		t.Fatalf("carol received foreign message %q", m.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerHistoryBeforeLive(t *testing.T) {
	b := NewBroker()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sub := newSubscription(b, "alice")
	b.add(sub)
	// Событие между регистрацией и стартом replay.
	b.Publish(mk("01B", "bob", "alice", base.Add(time.Minute)))
	sub.start([]model.Message{mk("01A", "bob", "alice", base)})
	defer sub.Cancel()

	first := waitMsg(t, sub.Events())
	second := waitMsg(t, sub.Events())
	if first.ID != "01A" || second.ID != "01B" {
		t.Fatalf("order = [%s %s], want history first [01A 01B]", first.ID, second.ID)
	}
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	sub := newSubscription(b, "alice")
	b.add(sub)
	sub.start(nil)
	sub.Cancel()
	sub.Cancel() // idempotent

	b.Publish(mk("01A", "bob", "alice", time.Now().UTC()))
	select {
	case m, ok := <-sub.Events():
		if ok {
			t.Fatalf("received %q after cancel", m.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel not closed after cancel")
	}
}
