package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/studygroup/internal/model"
)

type fakeStore struct {
	status     map[string]model.PresenceStatus
	lastActive map[string]time.Time
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		status:     make(map[string]model.PresenceStatus),
		lastActive: make(map[string]time.Time),
	}
}

func (f *fakeStore) SetPresence(_ context.Context, userID string, status model.PresenceStatus, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.status[userID] = status
	f.lastActive[userID] = at
	return nil
}

func (f *fakeStore) TouchActivity(_ context.Context, userID string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.lastActive[userID] = at
	return nil
}

func TestLifecycleTransitions(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(store, nil, nil)
	tr.now = func() time.Time { return now }

	ctx := context.Background()
	if err := tr.SignIn(ctx, "alice"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if store.status["alice"] != model.StatusOnline {
		t.Fatalf("after SignIn status = %q, want online", store.status["alice"])
	}
	if !store.lastActive["alice"].Equal(now) {
		t.Fatalf("lastActive = %v, want %v", store.lastActive["alice"], now)
	}

	if err := tr.Background(ctx, "alice"); err != nil {
		t.Fatalf("Background: %v", err)
	}
	if store.status["alice"] != model.StatusOffline {
		t.Fatalf("after Background status = %q, want offline", store.status["alice"])
	}

	if err := tr.Foreground(ctx, "alice"); err != nil {
		t.Fatalf("Foreground: %v", err)
	}
	if store.status["alice"] != model.StatusOnline {
		t.Fatalf("after Foreground status = %q, want online", store.status["alice"])
	}

	if err := tr.SignOut(ctx, "alice"); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if store.status["alice"] != model.StatusOffline {
		t.Fatalf("after SignOut status = %q, want offline", store.status["alice"])
	}
}

func TestTouchDoesNotChangeStatus(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(store, nil, nil)
	tr.now = func() time.Time { return base }

	ctx := context.Background()
	if err := tr.SignIn(ctx, "alice"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	later := base.Add(5 * time.Minute)
	tr.now = func() time.Time { return later }
	if err := tr.Touch(ctx, "alice"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if store.status["alice"] != model.StatusOnline {
		t.Fatalf("Touch changed status to %q", store.status["alice"])
	}
	if !store.lastActive["alice"].Equal(later) {
		t.Fatalf("lastActive = %v, want %v", store.lastActive["alice"], later)
	}
}

func TestOnChangeFiresAfterStoreWrite(t *testing.T) {
	store := newFakeStore()
	var gotUser string
	var gotStatus model.PresenceStatus
	tr := NewTracker(store, nil, func(u string, s model.PresenceStatus) {
		gotUser, gotStatus = u, s
	})

	if err := tr.SignIn(context.Background(), "bob"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if gotUser != "bob" || gotStatus != model.StatusOnline {
		t.Fatalf("onChange got (%q, %q), want (bob, online)", gotUser, gotStatus)
	}
}

func TestOnChangeSkippedOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	fired := false
	tr := NewTracker(store, nil, func(string, model.PresenceStatus) { fired = true })

	if err := tr.SignIn(context.Background(), "bob"); err == nil {
		t.Fatalf("expected error from store")
	}
	if fired {
		t.Fatalf("onChange fired despite store error")
	}
}
