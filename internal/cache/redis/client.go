package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studygroup/internal/model"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// GetUser возвращает профиль из кеша или (nil, nil) при промахе.
// Битое значение трактуем как промах и удаляем ключ.
func (c *Client) GetUser(ctx context.Context, id string) (*model.User, error) {
	data, err := c.cli.Get(ctx, "user:"+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		c.cli.Del(ctx, "user:"+id)
		return nil, nil
	}
	return &u, nil
}

// SetUser кладёт профиль под user:{id} с TTL.
func (c *Client) SetUser(ctx context.Context, u *model.User, ttl time.Duration) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, "user:"+u.ID, data, ttl).Err()
}

// InvalidateUser удаляет ключ профиля. Вызывается на каждой записи профиля
// или настроек, чтобы читатели не видели устаревший PushEnabled/DarkMode.
func (c *Client) InvalidateUser(ctx context.Context, id string) error {
	return c.cli.Del(ctx, "user:"+id).Err()
}
