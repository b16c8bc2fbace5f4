package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"authsvc/internal/model"
)

// MemoryUserRepository keeps users in process memory. It is used by the
// "memory" database driver and in tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*model.User
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

var _ UserRepository = (*MemoryUserRepository)(nil)

// NewMemoryUserRepository creates an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[uuid.UUID]*model.User),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}
	if err := user.BeforeCreate(nil); err != nil {
		return err
	}
	now := r.now()
	user.CreatedAt, user.UpdatedAt = now, now

	r.byID[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return u.ID == id })
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryUserRepository) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool {
		return u.VerificationToken != nil && *u.VerificationToken == token
	})
}

func (r *MemoryUserRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return u.HasValidResetToken(token, now) })
}

func (r *MemoryUserRepository) MarkVerified(ctx context.Context, id uuid.UUID, token string) error {
	return r.update(ctx, id, func(u *model.User) bool {
		if u.VerificationToken == nil || *u.VerificationToken != token {
			return false
		}
		u.IsVerified = true
		u.VerificationToken = nil
		return true
	})
}

func (r *MemoryUserRepository) SetResetToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error {
	return r.update(ctx, id, func(u *model.User) bool {
		u.ResetPasswordToken = &token
		u.ResetPasswordExpires = &expires
		return true
	})
}

func (r *MemoryUserRepository) ConsumeResetToken(ctx context.Context, id uuid.UUID, token string, now time.Time, passwordHash string) error {
	return r.update(ctx, id, func(u *model.User) bool {
		if !u.HasValidResetToken(token, now) {
			return false
		}
		u.PasswordHash = passwordHash
		u.ResetPasswordToken = nil
		u.ResetPasswordExpires = nil
		return true
	})
}

func (r *MemoryUserRepository) find(ctx context.Context, match func(*model.User) bool) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// update applies mutate to a copy and stores it only when mutate reports a match.
func (r *MemoryUserRepository) update(ctx context.Context, id uuid.UUID, mutate func(*model.User) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	next := cloneUser(current)
	if !mutate(next) {
		return ErrNotFound
	}
	next.UpdatedAt = r.now()
	r.byID[id] = next
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.VerificationToken != nil {
		v := *u.VerificationToken
		c.VerificationToken = &v
	}
	if u.ResetPasswordToken != nil {
		v := *u.ResetPasswordToken
		c.ResetPasswordToken = &v
	}
	if u.ResetPasswordExpires != nil {
		v := *u.ResetPasswordExpires
		c.ResetPasswordExpires = &v
	}
	return &c
}
