// Package group implements study-group membership and the notifications
// its changes produce.
package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/notify"
)

var (
	ErrAlreadyMember = errors.New("user is already a member")
	ErrNotMember     = errors.New("user is not a member")
	ErrGroupFull     = errors.New("group is full")
)

// Store — персистентность групп. *repository.GroupRepository удовлетворяет.
type Store interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	AddMember(ctx context.Context, groupID, userID string, at time.Time) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	UpdateInfo(ctx context.Context, id, name, description, imageURL string) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
	ListForUser(ctx context.Context, userID string) ([]model.Group, error)
}

// Service — операции над группами. Уведомления о членстве и активности
// идут через notify.Engine; их сбой не откатывает изменение группы.
type Service struct {
	groups Store
	notify *notify.Engine
}

func NewService(groups Store, n *notify.Engine) *Service {
	return &Service{groups: groups, notify: n}
}

// Create регистрирует группу; создатель сразу участник.
func (s *Service) Create(ctx context.Context, creatorID, name, description, imageURL string, maxMembers int) (*model.Group, error) {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	now := time.Now().UTC()
	g := &model.Group{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		ImageURL:     imageURL,
		CreatorID:    creatorID,
		Members:      []string{creatorID},
		MaxMembers:   maxMembers,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Group, error) {
	return s.groups.GetByID(ctx, id)
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]model.Group, error) {
	return s.groups.ListForUser(ctx, userID)
}

// Join adds userID to the group. Rejected when already a member or when the
// member limit is reached. The creator gets a group_join notification.
func (s *Service) Join(ctx context.Context, groupID, userID string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.Join", time.Now())()
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.HasMember(userID) {
		return nil, ErrAlreadyMember
	}
	if g.MaxMembers > 0 && len(g.Members) >= g.MaxMembers {
		return nil, ErrGroupFull
	}
	now := time.Now().UTC()
	if err := s.groups.AddMember(ctx, groupID, userID, now); err != nil {
		return nil, err
	}
	g.Members = append(g.Members, userID)
	g.LastActiveAt = now

	if _, err := s.notify.NotifyUser(ctx, g.CreatorID, userID,
		model.KindGroupJoin, fmt.Sprintf("New member joined %s", g.Name), groupID); err != nil {
		logger.Errorf("group: join notification for creator %s: %v", g.CreatorID, err)
	}
	return g, nil
}

// Leave removes userID from the group and fans a group_leave notification
// out to the remaining members.
func (s *Service) Leave(ctx context.Context, groupID, userID string) error {
	defer logger.DeferLogDuration("group.Leave", time.Now())()
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(userID) {
		return ErrNotMember
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}

	remaining := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if id != userID {
			remaining = append(remaining, id)
		}
	}
	if _, err := s.notify.NotifyGroupMembers(ctx, remaining, userID,
		model.KindGroupLeave, fmt.Sprintf("A member left %s", g.Name), groupID); err != nil {
		logger.Errorf("group: leave fan-out for %s: %v", groupID, err)
	}
	return nil
}

// UpdateInfo записывает name/description/image и рассылает group_update
// всем участникам, кроме инициатора.
func (s *Service) UpdateInfo(ctx context.Context, groupID, actorID, name, description, imageURL string) error {
	defer logger.DeferLogDuration("group.UpdateInfo", time.Now())()
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(actorID) {
		return ErrNotMember
	}
	if err := s.groups.UpdateInfo(ctx, groupID, name, description, imageURL); err != nil {
		return err
	}
	if _, err := s.notify.NotifyGroupMembers(ctx, g.Members, actorID,
		model.KindGroupUpdate, fmt.Sprintf("%s was updated", name), groupID); err != nil {
		logger.Errorf("group: update fan-out for %s: %v", groupID, err)
	}
	return nil
}

// NotifyMeeting рассылает напоминание о встрече участникам группы.
func (s *Service) NotifyMeeting(ctx context.Context, groupID, actorID, details string) error {
	defer logger.DeferLogDuration("group.NotifyMeeting", time.Now())()
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(actorID) {
		return ErrNotMember
	}
	if err := s.groups.TouchActivity(ctx, groupID, time.Now().UTC()); err != nil {
		logger.Errorf("group: touch activity %s: %v", groupID, err)
	}
	_, err = s.notify.NotifyGroupMembers(ctx, g.Members, actorID,
		model.KindMeeting, details, groupID)
	return err
}

// NotifyDocument рассылает уведомление о новом документе после успешной
// загрузки файла в группу.
func (s *Service) NotifyDocument(ctx context.Context, groupID, actorID, filename string) error {
	defer logger.DeferLogDuration("group.NotifyDocument", time.Now())()
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(actorID) {
		return ErrNotMember
	}
	if err := s.groups.TouchActivity(ctx, groupID, time.Now().UTC()); err != nil {
		logger.Errorf("group: touch activity %s: %v", groupID, err)
	}
	_, err = s.notify.NotifyGroupMembers(ctx, g.Members, actorID,
		model.KindDocument, fmt.Sprintf("New document in %s: %s", g.Name, filename), groupID)
	return err
}
