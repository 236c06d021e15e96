package memory

import (
	"context"
	"sync"
	"time"

	"github.com/studygroup/internal/model"
)

type item struct {
	user model.User
	exp  time.Time
}

type Client struct {
	mu    sync.RWMutex
	users map[string]item
}

func New() *Client {
	return &Client{users: make(map[string]item)}
}

func (c *Client) Close() error { return nil }

func (c *Client) GetUser(ctx context.Context, id string) (*model.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.users[id]
	if !ok || time.Now().After(v.exp) {
		return nil, nil
	}
	u := v.user
	return &u, nil
}

func (c *Client) SetUser(ctx context.Context, u *model.User, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = item{user: *u, exp: time.Now().Add(ttl)}
	return nil
}

func (c *Client) InvalidateUser(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, id)
	return nil
}
