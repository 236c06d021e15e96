package stream

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

// ErrEmptyBody rejects empty or whitespace-only message bodies before any write.
var ErrEmptyBody = errors.New("message body is empty")

// ErrRecipientNotFound — получатель отсутствует в каталоге пользователей.
var ErrRecipientNotFound = errors.New("recipient not found")

// MessageLog is the persistence contract the store writes through.
// *repository.MessageRepository satisfies it.
type MessageLog interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListForUser(ctx context.Context, userID string) ([]model.Message, error)
	MarkSeen(ctx context.Context, messageID, recipientID string) error
	MarkConversationSeen(ctx context.Context, recipientID, peerID string) ([]model.Message, error)
}

// UserDirectory resolves recipient existence. *repository.UserRepository satisfies it.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// MessageNotifier triggers the degenerate one-recipient fan-out after a
// successful append. Best-effort: the store never fails an append over it.
type MessageNotifier interface {
	NotifyNewMessage(ctx context.Context, recipientID, senderID, body string)
}

// Store — append-only хранилище личных сообщений поверх MessageLog, с
// live-подписками через Broker. createdAt назначается сервером; ULID в id
// монотонен, поэтому порядок (created_at, id) тотален в пределах store.
type Store struct {
	log      MessageLog
	users    UserDirectory
	broker   *Broker
	notifier MessageNotifier

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStore создаёт store. notifier может быть nil (fan-out отключён).
func NewStore(log MessageLog, users UserDirectory, broker *Broker, notifier MessageNotifier) *Store {
	return &Store{
		log:      log,
		users:    users,
		broker:   broker,
		notifier: notifier,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Store) newID(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Append validates, persists and publishes a new message, then triggers the
// one-recipient message fan-out. Fan-out or push failure never rolls the
// message back.
func (s *Store) Append(ctx context.Context, senderID, recipientID, body string) (*model.Message, error) {
	defer logger.DeferLogDuration("store.Append", time.Now())()
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	ok, err := s.users.Exists(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("store.Append recipient check: %w", err)
	}
	if !ok {
		return nil, ErrRecipientNotFound
	}

	now := time.Now().UTC()
	id, err := s.newID(now)
	if err != nil {
		return nil, fmt.Errorf("store.Append id: %w", err)
	}
	m := &model.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		Seen:        false,
		CreatedAt:   now,
	}
	if err := s.log.Create(ctx, m); err != nil {
		return nil, err
	}
	s.broker.Publish(*m)

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(ctx, recipientID, senderID, body)
	}
	return m, nil
}

// Subscribe opens a live subscription for observerID: full history replay
// (ascending createdAt) followed by live upserts. The caller must Cancel it
// when the consumer loses interest.
func (s *Store) Subscribe(ctx context.Context, observerID string) (*Subscription, error) {
	defer logger.DeferLogDuration("store.Subscribe", time.Now())()
	sub := newSubscription(s.broker, observerID)
	// Регистрация до чтения истории: append между ними попадёт в очередь
	// подписки и будет доставлен после replay как upsert того же id.
	s.broker.add(sub)
	history, err := s.log.ListForUser(ctx, observerID)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.start(history)
	return sub, nil
}

// MarkSeen applies the unseen->seen transition to a single message rendered
// by its recipient and republishes the updated record. Идемпотентно.
func (s *Store) MarkSeen(ctx context.Context, messageID, recipientID string) error {
	defer logger.DeferLogDuration("store.MarkSeen", time.Now())()
	if err := s.log.MarkSeen(ctx, messageID, recipientID); err != nil {
		return err
	}
	m, err := s.log.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.RecipientID == recipientID && m.Seen {
		s.broker.Publish(*m)
	}
	return nil
}

// MarkConversationSeen flips every unseen message from peer to recipient,
// republishing each transitioned record so both participants' aggregators
// converge (the sender sees "Seen", the recipient's unread count drops).
func (s *Store) MarkConversationSeen(ctx context.Context, recipientID, peerID string) (int, error) {
	defer logger.DeferLogDuration("store.MarkConversationSeen", time.Now())()
	changed, err := s.log.MarkConversationSeen(ctx, recipientID, peerID)
	if err != nil {
		return 0, err
	}
	for _, m := range changed {
		s.broker.Publish(m)
	}
	return len(changed), nil
}

// History returns the observer's messages ascending createdAt (snapshot,
// no subscription).
func (s *Store) History(ctx context.Context, observerID string) ([]model.Message, error) {
	return s.log.ListForUser(ctx, observerID)
}
