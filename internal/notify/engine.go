// Package notify creates notification records and fires best-effort web
// push for them. The actor of an event is never among its recipients.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

// NotificationStore persists notification records.
// *repository.NotificationRepository satisfies it.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
}

// UserLookup resolves recipient profiles, including the push opt-in flag.
// Обычно это кэширующая обёртка над репозиторием пользователей.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Pusher delivers a web push. *push.Client satisfies it; уже best-effort.
type Pusher interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// LiveDeliverer доставляет уведомление открытым соединениям получателя.
// *ws.Hub удовлетворяет.
type LiveDeliverer interface {
	DeliverNotification(userID string, n model.Notification)
}

// Engine is the notification fan-out: one record per recipient, actor
// excluded, push gated on the recipient's opt-in.
type Engine struct {
	notifs NotificationStore
	users  UserLookup
	push   Pusher
	live   LiveDeliverer
}

// NewEngine собирает движок. push может быть nil (пуши отключены).
func NewEngine(notifs NotificationStore, users UserLookup, push Pusher) *Engine {
	return &Engine{notifs: notifs, users: users, push: push}
}

// SetLive подключает realtime-доставку. Вызывается один раз при старте,
// после сборки ws-хаба (хаб зависит от store, store — от движка).
func (e *Engine) SetLive(d LiveDeliverer) {
	e.live = d
}

// NotifyUser creates a single notification for recipientID attributed to
// actorID and fires push if the recipient opted in. groupID may be empty
// for events outside any group.
func (e *Engine) NotifyUser(ctx context.Context, recipientID, actorID string, kind model.NotificationKind, content, groupID string) (*model.Notification, error) {
	defer logger.DeferLogDuration("notify.NotifyUser", time.Now())()
	n := &model.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		ActorID:     actorID,
		Kind:        kind,
		Content:     content,
		Read:        false,
		CreatedAt:   time.Now().UTC(),
		GroupID:     groupID,
	}
	if err := e.notifs.Create(ctx, n); err != nil {
		return nil, err
	}
	e.deliver(ctx, n)
	return n, nil
}

// NotifyGroupMembers fans a group event out to every member except the
// actor. Membership of one recipient is independent of the rest: a failed
// create is logged and skipped, the others still go through. Returns the
// notifications that were actually created; no recipients besides the
// actor yields an empty slice and no error.
func (e *Engine) NotifyGroupMembers(ctx context.Context, memberIDs []string, actorID string, kind model.NotificationKind, content, groupID string) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notify.NotifyGroupMembers", time.Now())()
	recipients := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != actorID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return []model.Notification{}, nil
	}

	now := time.Now().UTC()
	created := make([]model.Notification, len(recipients))
	ok := make([]bool, len(recipients))
	var wg sync.WaitGroup
	for i, rid := range recipients {
		wg.Add(1)
		go func(i int, rid string) {
			defer wg.Done()
			n := &model.Notification{
				ID:          uuid.NewString(),
				RecipientID: rid,
				ActorID:     actorID,
				Kind:        kind,
				Content:     content,
				Read:        false,
				CreatedAt:   now,
				GroupID:     groupID,
			}
			if err := e.notifs.Create(ctx, n); err != nil {
				logger.Errorf("notify: create for %s failed: %v", rid, err)
				return
			}
			created[i] = *n
			ok[i] = true
			e.deliver(ctx, n)
		}(i, rid)
	}
	wg.Wait()

	out := make([]model.Notification, 0, len(recipients))
	for i := range created {
		if ok[i] {
			out = append(out, created[i])
		}
	}
	return out, nil
}

// NotifyNewMessage записывает уведомление о новом личном сообщении с
// 30-символьным превью текста. Вызывается из store после записи сообщения;
// любая ошибка здесь не влияет на само сообщение.
func (e *Engine) NotifyNewMessage(ctx context.Context, recipientID, senderID, body string) {
	senderName := senderID
	if u, err := e.users.GetByID(ctx, senderID); err == nil && u.DisplayName != "" {
		senderName = u.DisplayName
	}
	content := senderName + ": " + Preview(body)
	if _, err := e.NotifyUser(ctx, recipientID, senderID, model.KindMessage, content, ""); err != nil {
		logger.Errorf("notify: message notification for %s failed: %v", recipientID, err)
	}
}

// Preview trims a message body to at most 30 runes for notification text.
func Preview(body string) string {
	const max = 30
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "..."
}

// deliver fans one created notification out to live connections and push.
func (e *Engine) deliver(ctx context.Context, n *model.Notification) {
	if e.live != nil {
		e.live.DeliverNotification(n.RecipientID, *n)
	}
	e.maybePush(ctx, n)
}

// maybePush fires push for n when the recipient opted in. Сбой поиска
// профиля трактуем как opt-out.
func (e *Engine) maybePush(ctx context.Context, n *model.Notification) {
	if e.push == nil {
		return
	}
	u, err := e.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		logger.Debugf("notify: push skipped, profile %s: %v", n.RecipientID, err)
		return
	}
	if !u.PushEnabled {
		return
	}
	data := map[string]string{"type": string(n.Kind)}
	if n.GroupID != "" {
		data["groupId"] = n.GroupID
	}
	e.push.Notify(ctx, n.RecipientID, n.Kind.PushTitle(), n.Content, data)
}
