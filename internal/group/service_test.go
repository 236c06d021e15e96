package group

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/notify"
)

type fakeGroups struct {
	mu     sync.Mutex
	groups map[string]*model.Group
}

func newFakeGroups(gs ...*model.Group) *fakeGroups {
	f := &fakeGroups{groups: make(map[string]*model.Group)}
	for _, g := range gs {
		f.groups[g.ID] = g
	}
	return f
}

func (f *fakeGroups) Create(_ context.Context, g *model.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.ID] = g
	return nil
}

func (f *fakeGroups) GetByID(_ context.Context, id string) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return nil, errors.New("group not found")
	}
	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	return &cp, nil
}

func (f *fakeGroups) AddMember(_ context.Context, groupID, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.groups[groupID]
	g.Members = append(g.Members, userID)
	return nil
}

func (f *fakeGroups) RemoveMember(_ context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.groups[groupID]
	kept := g.Members[:0]
	for _, id := range g.Members {
		if id != userID {
			kept = append(kept, id)
		}
	}
	g.Members = kept
	return nil
}

func (f *fakeGroups) UpdateInfo(_ context.Context, id, name, description, imageURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.groups[id]
	g.Name, g.Description, g.ImageURL = name, description, imageURL
	return nil
}

func (f *fakeGroups) TouchActivity(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[id].LastActiveAt = at
	return nil
}

func (f *fakeGroups) ListForUser(_ context.Context, userID string) ([]model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Group
	for _, g := range f.groups {
		if g.HasMember(userID) {
			out = append(out, *g)
		}
	}
	return out, nil
}

type notifSink struct {
	mu      sync.Mutex
	created []model.Notification
}

func (s *notifSink) Create(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *n)
	return nil
}

func (s *notifSink) recipients() map[string]model.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.NotificationKind, len(s.created))
	for _, n := range s.created {
		out[n.RecipientID] = n.Kind
	}
	return out
}

type noUsers struct{}

func (noUsers) GetByID(context.Context, string) (*model.User, error) {
	return nil, errors.New("no directory in test")
}

func newService(groups Store) (*Service, *notifSink) {
	sink := &notifSink{}
	return NewService(groups, notify.NewEngine(sink, noUsers{}, nil)), sink
}

func studyGroup() *model.Group {
	return &model.Group{
		ID:        "g1",
		Name:      "Algorithms",
		CreatorID: "alice",
		Members:   []string{"alice", "bob", "carol"},
	}
}

func TestJoinRejectsExistingMember(t *testing.T) {
	svc, sink := newService(newFakeGroups(studyGroup()))
	if _, err := svc.Join(context.Background(), "g1", "bob"); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("err = %v, want ErrAlreadyMember", err)
	}
	if len(sink.created) != 0 {
		t.Fatalf("rejected join produced notifications: %v", sink.created)
	}
}

func TestJoinRejectsFullGroup(t *testing.T) {
	g := studyGroup()
	g.MaxMembers = 3
	svc, _ := newService(newFakeGroups(g))
	if _, err := svc.Join(context.Background(), "g1", "dave"); !errors.Is(err, ErrGroupFull) {
		t.Fatalf("err = %v, want ErrGroupFull", err)
	}
}

func TestJoinNotifiesCreator(t *testing.T) {
	groups := newFakeGroups(studyGroup())
	svc, sink := newService(groups)

	g, err := svc.Join(context.Background(), "g1", "dave")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !g.HasMember("dave") {
		t.Fatalf("dave missing from returned group: %v", g.Members)
	}
	rec := sink.recipients()
	if rec["alice"] != model.KindGroupJoin {
		t.Fatalf("creator notification = %q, want group_join", rec["alice"])
	}
	if len(sink.created) != 1 {
		t.Fatalf("join created %d notifications, want 1 (creator only)", len(sink.created))
	}
}

func TestLeaveRejectsNonMember(t *testing.T) {
	svc, _ := newService(newFakeGroups(studyGroup()))
	if err := svc.Leave(context.Background(), "g1", "mallory"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}
}

func TestLeaveFansOutToRemainingMembers(t *testing.T) {
	groups := newFakeGroups(studyGroup())
	svc, sink := newService(groups)

	if err := svc.Leave(context.Background(), "g1", "bob"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	g, _ := groups.GetByID(context.Background(), "g1")
	if g.HasMember("bob") {
		t.Fatalf("bob still a member: %v", g.Members)
	}
	rec := sink.recipients()
	if _, ok := rec["bob"]; ok {
		t.Fatalf("departing member received a notification")
	}
	if rec["alice"] != model.KindGroupLeave || rec["carol"] != model.KindGroupLeave {
		t.Fatalf("remaining members not notified: %v", rec)
	}
}

func TestMeetingFanOutExcludesActor(t *testing.T) {
	svc, sink := newService(newFakeGroups(studyGroup()))
	if err := svc.NotifyMeeting(context.Background(), "g1", "alice", "standup at 5pm"); err != nil {
		t.Fatalf("NotifyMeeting: %v", err)
	}
	rec := sink.recipients()
	if _, ok := rec["alice"]; ok {
		t.Fatalf("actor received their own meeting reminder")
	}
	if rec["bob"] != model.KindMeeting || rec["carol"] != model.KindMeeting {
		t.Fatalf("members not notified: %v", rec)
	}
}

func TestUpdateInfoRequiresMembership(t *testing.T) {
	svc, _ := newService(newFakeGroups(studyGroup()))
	err := svc.UpdateInfo(context.Background(), "g1", "mallory", "New name", "", "")
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}
}
