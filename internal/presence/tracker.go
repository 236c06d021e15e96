// Package presence tracks online/offline state driven by client lifecycle
// events: session start and end, tab visibility, unload. State lives in the
// user record; there is no server-side timeout, so a client that dies
// without its unload beacon stays online until its next session fixes it.
package presence

import (
	"context"
	"time"

	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

// Store persists presence transitions. *repository.UserRepository satisfies it.
type Store interface {
	SetPresence(ctx context.Context, userID string, status model.PresenceStatus, at time.Time) error
	TouchActivity(ctx context.Context, userID string, at time.Time) error
}

// Invalidator сбрасывает кешированный профиль после смены статуса.
type Invalidator interface {
	InvalidateUser(ctx context.Context, id string) error
}

// Tracker applies lifecycle events to the presence store and announces
// transitions to the optional onChange hook (ws-рассылка).
type Tracker struct {
	store    Store
	inval    Invalidator
	onChange func(userID string, status model.PresenceStatus)
	now      func() time.Time
}

// NewTracker собирает трекер. inval и onChange могут быть nil.
func NewTracker(store Store, inval Invalidator, onChange func(string, model.PresenceStatus)) *Tracker {
	return &Tracker{
		store:    store,
		inval:    inval,
		onChange: onChange,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignIn marks the user online at session start.
func (t *Tracker) SignIn(ctx context.Context, userID string) error {
	return t.set(ctx, userID, model.StatusOnline)
}

// SignOut marks the user offline at session end.
func (t *Tracker) SignOut(ctx context.Context, userID string) error {
	return t.set(ctx, userID, model.StatusOffline)
}

// Foreground marks the user online when the client tab becomes visible or
// its first live connection opens.
func (t *Tracker) Foreground(ctx context.Context, userID string) error {
	return t.set(ctx, userID, model.StatusOnline)
}

// Background marks the user offline when the tab is hidden, unloaded or the
// last live connection drops.
func (t *Tracker) Background(ctx context.Context, userID string) error {
	return t.set(ctx, userID, model.StatusOffline)
}

// Touch advances lastActiveAt without changing status. Используется при
// действиях пользователя (сообщение, пометка прочитанным).
func (t *Tracker) Touch(ctx context.Context, userID string) error {
	return t.store.TouchActivity(ctx, userID, t.now())
}

func (t *Tracker) set(ctx context.Context, userID string, status model.PresenceStatus) error {
	if err := t.store.SetPresence(ctx, userID, status, t.now()); err != nil {
		return err
	}
	if t.inval != nil {
		if err := t.inval.InvalidateUser(ctx, userID); err != nil {
			logger.Debugf("presence: cache invalidate %s: %v", userID, err)
		}
	}
	if t.onChange != nil {
		t.onChange(userID, status)
	}
	return nil
}
