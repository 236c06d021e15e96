package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

const msgCols = `id, sender_id, recipient_id, body, seen, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.Seen, &m.CreatedAt)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, body, seen, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.SenderID, m.RecipientID, m.Body, m.Seen, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+msgCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListForUser returns every message where userID is sender or recipient,
// ascending created_at. ULID ids tail-break equal timestamps so the order
// is total and stable across replays.
func (r *MessageRepository) ListForUser(ctx context.Context, userID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+` FROM messages
		 WHERE sender_id = $1 OR recipient_id = $1
		 ORDER BY created_at ASC, id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, 64)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.ListForUser scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListForUser rows: %w", err)
	}
	return msgs, nil
}

// ListConversation returns the full thread between two users, ascending created_at.
func (r *MessageRepository) ListConversation(ctx context.Context, userA, userB string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+` FROM messages
		 WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		 ORDER BY created_at ASC, id ASC`, userA, userB,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListConversation query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, 64)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.ListConversation scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListConversation rows: %w", err)
	}
	return msgs, nil
}

// MarkSeen flips a single message to seen. The predicate makes the write
// idempotent: re-applying to an already-seen message matches zero rows,
// so concurrent re-application from another device is safe.
func (r *MessageRepository) MarkSeen(ctx context.Context, messageID, recipientID string) error {
	defer logger.DeferLogDuration("msg.MarkSeen", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET seen = true
		 WHERE id = $1 AND recipient_id = $2 AND seen = false`,
		messageID, recipientID,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkSeen: %w", err)
	}
	return nil
}

// MarkConversationSeen flips every unseen message from peer to recipient
// and returns the rows that actually transitioned, so the store can
// re-publish them to live subscriptions.
func (r *MessageRepository) MarkConversationSeen(ctx context.Context, recipientID, peerID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.MarkConversationSeen", time.Now())()
	rows, err := r.pool.Query(ctx,
		`UPDATE messages SET seen = true
		 WHERE recipient_id = $1 AND sender_id = $2 AND seen = false
		 RETURNING `+msgCols,
		recipientID, peerID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.MarkConversationSeen: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.MarkConversationSeen scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.MarkConversationSeen rows: %w", err)
	}
	return msgs, nil
}
