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

var ErrNotFound = errors.New("not found")

// userCols — список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, display_name, email, photo_url, status, last_active_at, push_notifications_enabled, dark_mode, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PhotoURL, &u.Status, &u.LastActiveAt, &u.PushEnabled, &u.DarkMode, &u.CreatedAt)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, display_name, email, photo_url, status, last_active_at, push_notifications_enabled, dark_mode, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.DisplayName, u.Email, u.PhotoURL, u.Status, u.LastActiveAt, u.PushEnabled, u.DarkMode, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

// Exists проверяет наличие пользователя без выборки всей записи
// (достаточно для валидации получателя перед append сообщения).
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	defer logger.DeferLogDuration("user.Exists", time.Now())()
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("userRepo.Exists: %w", err)
	}
	return found, nil
}

func (r *UserRepository) ListAll(ctx context.Context, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.ListAll", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+userCols+` FROM users ORDER BY display_name LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListAll: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListAll scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListAll rows: %w", err)
	}
	return users, nil
}

// SetPresence выставляет status и last_active_at одним UPDATE.
func (r *UserRepository) SetPresence(ctx context.Context, userID string, status model.PresenceStatus, at time.Time) error {
	defer logger.DeferLogDuration("user.SetPresence", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET status = $1, last_active_at = $2 WHERE id = $3`,
		status, at, userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetPresence: %w", err)
	}
	return nil
}

// TouchActivity обновляет только last_active_at, не трогая status.
func (r *UserRepository) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	defer logger.DeferLogDuration("user.TouchActivity", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_active_at = $1 WHERE id = $2`,
		at, userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.TouchActivity: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID, displayName, photoURL string) error {
	defer logger.DeferLogDuration("user.UpdateProfile", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET display_name = $1, photo_url = $2 WHERE id = $3`,
		displayName, photoURL, userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateProfile: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateSettings(ctx context.Context, userID string, pushEnabled, darkMode bool) error {
	defer logger.DeferLogDuration("user.UpdateSettings", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET push_notifications_enabled = $1, dark_mode = $2 WHERE id = $3`,
		pushEnabled, darkMode, userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateSettings: %w", err)
	}
	return nil
}
