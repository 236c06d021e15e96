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

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO groups (id, name, description, image_url, creator_id, max_members, created_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.Description, g.ImageURL, g.CreatorID, g.MaxMembers, g.CreatedAt, g.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.Create: %w", err)
	}
	for _, uid := range g.Members {
		if err := r.AddMember(ctx, g.ID, uid, g.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetByID возвращает группу вместе с текущим множеством участников.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(description,''), image_url, creator_id, max_members, created_at, last_active_at
		 FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Description, &g.ImageURL, &g.CreatorID, &g.MaxMembers, &g.CreatedAt, &g.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetByID: %w", err)
	}
	members, err := r.GetMemberIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Members = members
	return g, nil
}

func (r *GroupRepository) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	defer logger.DeferLogDuration("group.GetMemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetMemberIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("groupRepo.GetMemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.GetMemberIDs rows: %w", err)
	}
	return ids, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string, at time.Time) error {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		groupID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.AddMember: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.RemoveMember: %w", err)
	}
	return nil
}

func (r *GroupRepository) UpdateInfo(ctx context.Context, id, name, description, imageURL string) error {
	defer logger.DeferLogDuration("group.UpdateInfo", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE groups SET name = $1, description = $2, image_url = $3 WHERE id = $4`,
		name, description, imageURL, id,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.UpdateInfo: %w", err)
	}
	return nil
}

// TouchActivity обновляет last_active_at группы (новое сообщение/документ).
func (r *GroupRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	defer logger.DeferLogDuration("group.TouchActivity", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE groups SET last_active_at = $1 WHERE id = $2`, at, id,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.TouchActivity: %w", err)
	}
	return nil
}

// ListForUser возвращает группы, где userID — участник.
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, COALESCE(g.description,''), g.image_url, g.creator_id, g.max_members, g.created_at, g.last_active_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY g.last_active_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	groups := make([]model.Group, 0, 8)
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ImageURL, &g.CreatorID, &g.MaxMembers, &g.CreatedAt, &g.LastActiveAt); err != nil {
			return nil, fmt.Errorf("groupRepo.ListForUser scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListForUser rows: %w", err)
	}
	return groups, nil
}
