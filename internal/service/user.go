package service

import (
	"context"
	"time"

	"github.com/studygroup/internal/cache"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/repository"
)

// UserService — профили и настройки поверх репозитория с кешем cache-aside.
// Каждая запись профиля или настроек инвалидирует ключ в кеше, чтобы
// fan-out уведомлений не читал устаревший PushEnabled.
type UserService struct {
	repo  *repository.UserRepository
	cache cache.ProfileCache
	ttl   time.Duration
}

func NewUserService(repo *repository.UserRepository, c cache.ProfileCache, ttl time.Duration) *UserService {
	return &UserService{repo: repo, cache: c, ttl: ttl}
}

// GetByID returns the profile, serving from cache when possible. Cache
// errors degrade to a repository read, never to a request failure.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if s.cache != nil {
		u, err := s.cache.GetUser(ctx, id)
		if err != nil {
			logger.Debugf("userService.GetByID cache: %v", err)
		} else if u != nil {
			return u, nil
		}
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetUser(ctx, u, s.ttl); err != nil {
			logger.Debugf("userService.GetByID cache set: %v", err)
		}
	}
	return u, nil
}

// Exists проверяет наличие пользователя. Попадание в кеш избавляет от
// похода в базу; промах не кешируем.
func (s *UserService) Exists(ctx context.Context, id string) (bool, error) {
	if s.cache != nil {
		if u, err := s.cache.GetUser(ctx, id); err == nil && u != nil {
			return true, nil
		}
	}
	return s.repo.Exists(ctx, id)
}

func (s *UserService) Create(ctx context.Context, u *model.User) error {
	if err := s.repo.Create(ctx, u); err != nil {
		return err
	}
	s.invalidate(ctx, u.ID)
	return nil
}

func (s *UserService) ListAll(ctx context.Context, limit int) ([]model.User, error) {
	return s.repo.ListAll(ctx, limit)
}

// UpdateProfile пишет displayName/photoURL и сбрасывает кеш.
func (s *UserService) UpdateProfile(ctx context.Context, userID, displayName, photoURL string) error {
	if err := s.repo.UpdateProfile(ctx, userID, displayName, photoURL); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// UpdateSettings пишет pushEnabled/darkMode и сбрасывает кеш.
func (s *UserService) UpdateSettings(ctx context.Context, userID string, pushEnabled, darkMode bool) error {
	if err := s.repo.UpdateSettings(ctx, userID, pushEnabled, darkMode); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, id); err != nil {
		logger.Errorf("userService: cache invalidate %s: %v", id, err)
	}
}
