package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

const notifCols = `id, recipient_id, actor_id, COALESCE(group_id,''), kind, content, read, created_at`

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func scanNotification(s interface{ Scan(dest ...any) error }, n *model.Notification) error {
	return s.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.GroupID, &n.Kind, &n.Content, &n.Read, &n.CreatedAt)
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	defer logger.DeferLogDuration("notif.Create", time.Now())()
	var groupID any
	if n.GroupID != "" {
		groupID = n.GroupID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, recipient_id, actor_id, group_id, kind, content, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.RecipientID, n.ActorID, groupID, n.Kind, n.Content, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("notifRepo.Create: %w", err)
	}
	return nil
}

// ListForUser возвращает уведомления получателя, новые первыми.
func (r *NotificationRepository) ListForUser(ctx context.Context, recipientID string, limit int) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notif.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+notifCols+` FROM notifications
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, recipientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("notifRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Notification, 0, limit)
	for rows.Next() {
		var n model.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, fmt.Errorf("notifRepo.ListForUser scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notifRepo.ListForUser rows: %w", err)
	}
	return out, nil
}

// MarkRead — одноразовый переход read=false -> true; повтор — no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	defer logger.DeferLogDuration("notif.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = true
		 WHERE id = $1 AND recipient_id = $2 AND read = false`,
		id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("notifRepo.MarkRead: %w", err)
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	defer logger.DeferLogDuration("notif.MarkAllRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = true
		 WHERE recipient_id = $1 AND read = false`, recipientID,
	)
	if err != nil {
		return fmt.Errorf("notifRepo.MarkAllRead: %w", err)
	}
	return nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	defer logger.DeferLogDuration("notif.CountUnread", time.Now())()
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = false`,
		recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("notifRepo.CountUnread: %w", err)
	}
	return n, nil
}
