package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/studygroup/internal/model"
)

type memNotifStore struct {
	mu      sync.Mutex
	created []model.Notification
	failFor map[string]bool
}

func (s *memNotifStore) Create(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[n.RecipientID] {
		return errors.New("insert failed")
	}
	s.created = append(s.created, *n)
	return nil
}

type memUsers struct {
	users map[string]*model.User
}

func (u *memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	usr, ok := u.users[id]
	if !ok {
		return nil, errors.New("no such user")
	}
	return usr, nil
}

type recordingPusher struct {
	mu    sync.Mutex
	sent  []string
	title map[string]string
}

func (p *recordingPusher) Notify(_ context.Context, userID, title, _ string, _ map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, userID)
	if p.title == nil {
		p.title = make(map[string]string)
	}
	p.title[userID] = title
}

func TestNotifyGroupMembersExcludesActor(t *testing.T) {
	store := &memNotifStore{}
	users := &memUsers{users: map[string]*model.User{}}
	e := NewEngine(store, users, nil)

	got, err := e.NotifyGroupMembers(context.Background(),
		[]string{"alice", "bob", "carol"}, "alice",
		model.KindMeeting, "meeting at 5", "g1")
	if err != nil {
		t.Fatalf("NotifyGroupMembers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("created %d notifications, want 2", len(got))
	}
	for _, n := range got {
		if n.RecipientID == "alice" {
			t.Fatalf("actor received their own notification")
		}
		if n.ActorID != "alice" {
			t.Fatalf("actor id = %q, want alice", n.ActorID)
		}
		if n.GroupID != "g1" || n.Kind != model.KindMeeting || n.Read {
			t.Fatalf("bad notification: %+v", n)
		}
	}
}

func TestNotifyGroupMembersActorOnly(t *testing.T) {
	store := &memNotifStore{}
	e := NewEngine(store, &memUsers{users: map[string]*model.User{}}, nil)

	got, err := e.NotifyGroupMembers(context.Background(),
		[]string{"alice"}, "alice", model.KindGroupUpdate, "renamed", "g1")
	if err != nil {
		t.Fatalf("NotifyGroupMembers: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %v", got)
	}
	if len(store.created) != 0 {
		t.Fatalf("stored %d notifications, want 0", len(store.created))
	}
}

func TestNotifyGroupMembersPartialFailure(t *testing.T) {
	store := &memNotifStore{failFor: map[string]bool{"bob": true}}
	e := NewEngine(store, &memUsers{users: map[string]*model.User{}}, nil)

	got, err := e.NotifyGroupMembers(context.Background(),
		[]string{"bob", "carol"}, "alice", model.KindDocument, "notes.pdf", "g1")
	if err != nil {
		t.Fatalf("NotifyGroupMembers: %v", err)
	}
	if len(got) != 1 || got[0].RecipientID != "carol" {
		t.Fatalf("want carol only, got %v", got)
	}
}

func TestPushGatedOnOptIn(t *testing.T) {
	store := &memNotifStore{}
	users := &memUsers{users: map[string]*model.User{
		"bob":   {ID: "bob", DisplayName: "Bob", PushEnabled: true},
		"carol": {ID: "carol", DisplayName: "Carol", PushEnabled: false},
	}}
	pusher := &recordingPusher{}
	e := NewEngine(store, users, pusher)

	_, err := e.NotifyGroupMembers(context.Background(),
		[]string{"alice", "bob", "carol"}, "alice",
		model.KindMeeting, "meeting at 5", "g1")
	if err != nil {
		t.Fatalf("NotifyGroupMembers: %v", err)
	}
	if len(pusher.sent) != 1 || pusher.sent[0] != "bob" {
		t.Fatalf("push sent to %v, want [bob]", pusher.sent)
	}
	if pusher.title["bob"] != "Meeting Reminder" {
		t.Fatalf("title = %q, want Meeting Reminder", pusher.title["bob"])
	}
	// Записи созданы для обоих, пуш только для bob.
	if len(store.created) != 2 {
		t.Fatalf("stored %d notifications, want 2", len(store.created))
	}
}

func TestNotifyNewMessagePreview(t *testing.T) {
	store := &memNotifStore{}
	users := &memUsers{users: map[string]*model.User{
		"alice": {ID: "alice", DisplayName: "Alice"},
		"bob":   {ID: "bob", DisplayName: "Bob"},
	}}
	e := NewEngine(store, users, nil)

	long := "this message is well over thirty characters long"
	e.NotifyNewMessage(context.Background(), "bob", "alice", long)

	if len(store.created) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(store.created))
	}
	n := store.created[0]
	if n.Kind != model.KindMessage {
		t.Fatalf("kind = %q, want message", n.Kind)
	}
	want := "Alice: " + string([]rune(long)[:30]) + "..."
	if n.Content != want {
		t.Fatalf("content = %q, want %q", n.Content, want)
	}
}

func TestPreviewShortBodyUntouched(t *testing.T) {
	if got := Preview("hello"); got != "hello" {
		t.Fatalf("Preview = %q, want hello", got)
	}
	if got := Preview("ровно тридцать рун или меньше!"); got != "ровно тридцать рун или меньше!" {
		t.Fatalf("Preview mangled a 30-rune body: %q", got)
	}
}
