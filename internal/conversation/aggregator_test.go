package conversation

import (
	"testing"
	"time"

	"github.com/studygroup/internal/model"
)

func msg(id, from, to, body string, at time.Time, seen bool) model.Message {
	return model.Message{
		ID:          id,
		SenderID:    from,
		RecipientID: to,
		Body:        body,
		Seen:        seen,
		CreatedAt:   at,
	}
}

func TestSummarizeBasic(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		msg("01A", "alice", "bob", "hello", base, true),
		msg("01B", "bob", "alice", "world", base.Add(time.Minute), false),
	}

	got := Summarize("alice", msgs)
	if len(got) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(got))
	}
	s := got[0]
	if s.PeerID != "bob" {
		t.Fatalf("peer = %q, want bob", s.PeerID)
	}
	if s.LastMessage.Body != "world" {
		t.Fatalf("last message = %q, want world", s.LastMessage.Body)
	}
	if s.LastMessage.FromMe {
		t.Fatalf("last message should not be from alice")
	}
	if s.UnreadCount != 1 {
		t.Fatalf("unread = %d, want 1", s.UnreadCount)
	}

	// Same data from bob's side: last message is his own, zero unread.
	got = Summarize("bob", msgs)
	if len(got) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(got))
	}
	s = got[0]
	if s.PeerID != "alice" {
		t.Fatalf("peer = %q, want alice", s.PeerID)
	}
	if !s.LastMessage.FromMe {
		t.Fatalf("last message should be from bob")
	}
	if s.UnreadCount != 0 {
		t.Fatalf("unread = %d, want 0", s.UnreadCount)
	}
}

func TestSummarizeSkipsUnresolved(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		msg("01A", "alice", "bob", "persisted", base, false),
		msg("01B", "alice", "bob", "optimistic", time.Time{}, false),
	}
	got := Summarize("alice", msgs)
	if len(got) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(got))
	}
	if got[0].LastMessage.Body != "persisted" {
		t.Fatalf("unresolved message leaked into summary: %q", got[0].LastMessage.Body)
	}
}

func TestSummarizeUnreadOnlyCountsIncoming(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		msg("01A", "alice", "bob", "one", base, false),
		msg("01B", "alice", "bob", "two", base.Add(time.Second), false),
		msg("01C", "bob", "alice", "three", base.Add(2*time.Second), false),
	}
	got := Summarize("alice", msgs)
	if got[0].UnreadCount != 1 {
		t.Fatalf("unread = %d, want 1 (own unseen messages must not count)", got[0].UnreadCount)
	}
}

func TestSummarizeOrdersByRecency(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		msg("01A", "carol", "alice", "old", base, true),
		msg("01B", "bob", "alice", "new", base.Add(time.Hour), true),
	}
	got := Summarize("alice", msgs)
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	if got[0].PeerID != "bob" || got[1].PeerID != "carol" {
		t.Fatalf("order = [%s %s], want [bob carol]", got[0].PeerID, got[1].PeerID)
	}
}

func TestSummarizeTimestampTiebreakByID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		msg("01B", "alice", "bob", "second", at, false),
		msg("01A", "bob", "alice", "first", at, false),
	}
	got := Summarize("alice", msgs)
	if got[0].LastMessage.Body != "second" {
		t.Fatalf("tiebreak picked %q, want second (higher ULID wins)", got[0].LastMessage.Body)
	}
}

func TestAggregatorApplyConvergesOnUpsert(t *testing.T) {
	a := NewAggregator("alice")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sums := a.Apply(msg("01A", "bob", "alice", "hi", at, false))
	if sums[0].UnreadCount != 1 {
		t.Fatalf("unread = %d, want 1", sums[0].UnreadCount)
	}

	// Duplicate delivery of the same record changes nothing.
	sums = a.Apply(msg("01A", "bob", "alice", "hi", at, false))
	if sums[0].UnreadCount != 1 {
		t.Fatalf("after duplicate: unread = %d, want 1", sums[0].UnreadCount)
	}

	// Seen transition arrives as an upsert of the same id.
	sums = a.Apply(msg("01A", "bob", "alice", "hi", at, true))
	if sums[0].UnreadCount != 0 {
		t.Fatalf("after seen upsert: unread = %d, want 0", sums[0].UnreadCount)
	}
	if !sums[0].LastMessage.Seen {
		t.Fatalf("last message should be seen")
	}
}
