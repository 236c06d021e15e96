package cache

import (
	"context"
	"time"

	"github.com/studygroup/internal/model"
)

// ProfileCache — кеш профилей и настроек пользователей перед Postgres.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
// Промах кеша возвращает (nil, nil): вызывающий идёт в репозиторий и
// кладёт результат обратно. Любая запись профиля инвалидирует ключ.
type ProfileCache interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	SetUser(ctx context.Context, u *model.User, ttl time.Duration) error
	InvalidateUser(ctx context.Context, id string) error
	Close() error
}
