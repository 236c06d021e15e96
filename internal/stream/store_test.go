package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/studygroup/internal/model"
)

type memLog struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (l *memLog) Create(_ context.Context, m *model.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, *m)
	return nil
}

func (l *memLog) GetByID(_ context.Context, id string) (*model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			m := l.msgs[i]
			return &m, nil
		}
	}
	return nil, errors.New("not found")
}

func (l *memLog) ListForUser(_ context.Context, userID string) ([]model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Message
	for _, m := range l.msgs {
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (l *memLog) MarkSeen(_ context.Context, messageID, recipientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.msgs {
		if l.msgs[i].ID == messageID && l.msgs[i].RecipientID == recipientID {
			l.msgs[i].Seen = true
		}
	}
	return nil
}

func (l *memLog) MarkConversationSeen(_ context.Context, recipientID, peerID string) ([]model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var changed []model.Message
	for i := range l.msgs {
		m := &l.msgs[i]
		if m.RecipientID == recipientID && m.SenderID == peerID && !m.Seen {
			m.Seen = true
			changed = append(changed, *m)
		}
	}
	return changed, nil
}

type memUsers struct{ known map[string]bool }

func (u *memUsers) Exists(_ context.Context, id string) (bool, error) {
	return u.known[id], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, recipientID, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recipientID)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestStore(known ...string) (*Store, *memLog, *recordingNotifier) {
	users := &memUsers{known: map[string]bool{}}
	for _, id := range known {
		users.known[id] = true
	}
	log := &memLog{}
	notifier := &recordingNotifier{}
	return NewStore(log, users, NewBroker(), notifier), log, notifier
}

func TestAppendRejectsEmptyBody(t *testing.T) {
	s, _, notifier := newTestStore("bob")
	for _, body := range []string{"", "   ", "\n\t"} {
		if _, err := s.Append(context.Background(), "alice", "bob", body); !errors.Is(err, ErrEmptyBody) {
			t.Fatalf("Append(%q) err = %v, want ErrEmptyBody", body, err)
		}
	}
	if notifier.count() != 0 {
		t.Fatalf("notifier fired %d times on rejected appends", notifier.count())
	}
}

func TestAppendRejectsUnknownRecipient(t *testing.T) {
	s, log, _ := newTestStore("bob")
	if _, err := s.Append(context.Background(), "alice", "nobody", "hi"); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("err = %v, want ErrRecipientNotFound", err)
	}
	if len(log.msgs) != 0 {
		t.Fatalf("message persisted despite unknown recipient")
	}
}

func TestAppendAssignsOrderedIDs(t *testing.T) {
	s, _, _ := newTestStore("bob")
	var prev string
	for i := 0; i < 50; i++ {
		m, err := s.Append(context.Background(), "alice", "bob", "hi")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if m.ID <= prev {
			t.Fatalf("id %q not greater than previous %q", m.ID, prev)
		}
		prev = m.ID
	}
}

func TestAppendPublishesAndNotifies(t *testing.T) {
	s, _, notifier := newTestStore("bob")
	sub, err := s.Subscribe(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	m, err := s.Append(context.Background(), "alice", "bob", "hello")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := waitMsg(t, sub.Events())
	if got.ID != m.ID || got.Seen {
		t.Fatalf("live event = %+v, want unseen %s", got, m.ID)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifier fired %d times, want 1", notifier.count())
	}
}

func TestMarkSeenRepublishesUpsert(t *testing.T) {
	s, _, _ := newTestStore("bob")
	m, err := s.Append(context.Background(), "alice", "bob", "hello")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Отправитель видит и исходное сообщение (replay), и upsert после прочтения.
	sub, err := s.Subscribe(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()
	if first := waitMsg(t, sub.Events()); first.Seen {
		t.Fatalf("history replay already seen")
	}

	if err := s.MarkSeen(context.Background(), m.ID, "bob"); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	upsert := waitMsg(t, sub.Events())
	if upsert.ID != m.ID || !upsert.Seen {
		t.Fatalf("upsert = %+v, want seen %s", upsert, m.ID)
	}
}

func TestMarkSeenIgnoresWrongRecipient(t *testing.T) {
	s, log, _ := newTestStore("bob")
	m, err := s.Append(context.Background(), "alice", "bob", "hello")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Отметка от отправителя не переключает флаг.
	if err := s.MarkSeen(context.Background(), m.ID, "alice"); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	stored, err := log.GetByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Seen {
		t.Fatalf("seen flipped by non-recipient")
	}
}

func TestMarkConversationSeenCountsTransitions(t *testing.T) {
	s, _, _ := newTestStore("alice", "bob")
	ctx := context.Background()
	if _, err := s.Append(ctx, "bob", "alice", "one"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append(ctx, "bob", "alice", "two"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append(ctx, "alice", "bob", "reply"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := s.MarkConversationSeen(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("MarkConversationSeen: %v", err)
	}
	if n != 2 {
		t.Fatalf("transitions = %d, want 2", n)
	}
	// Повтор идемпотентен: переходов больше нет.
	n, err = s.MarkConversationSeen(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("MarkConversationSeen repeat: %v", err)
	}
	if n != 0 {
		t.Fatalf("repeat transitions = %d, want 0", n)
	}
}
