package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"authsvc/internal/cache"
	"authsvc/internal/model"
	"authsvc/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// UserService serves the public profile of a user through the cache.
type UserService interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*model.PublicUser, error)
	Invalidate(ctx context.Context, id uuid.UUID)
}

type userService struct {
	repo  repository.UserRepository
	cache cache.Store
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache cache.Store) UserService {
	return &userService{repo: repo, cache: cache}
}

func (s *userService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}

func (s *userService) GetProfile(ctx context.Context, id uuid.UUID) (*model.PublicUser, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
		var cached model.PublicUser
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	profile := user.Public()
	if payload, err := json.Marshal(profile); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(id), payload, userCacheTTL)
	}
	return profile, nil
}

func (s *userService) Invalidate(ctx context.Context, id uuid.UUID) {
	_ = s.cache.Delete(ctx, s.cacheKey(id))
}
