package repository

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"authsvc/internal/model"
)

var (
	// ErrNotFound is returned when no record matches, or a conditional
	// update matched no row.
	ErrNotFound = gorm.ErrRecordNotFound
	// ErrDuplicateEmail is returned when the unique email index rejects an insert.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository defines persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*model.User, error)
	// FindByResetToken only matches tokens whose expiry is strictly after now.
	FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error)
	// MarkVerified flips is_verified and clears the token, provided the
	// record still holds token.
	MarkVerified(ctx context.Context, id uuid.UUID, token string) error
	SetResetToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error
	// ConsumeResetToken replaces the password hash and clears both reset
	// fields, provided the record still holds an unexpired token.
	ConsumeResetToken(ctx context.Context, id uuid.UUID, token string, now time.Time, passwordHash string) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository. The DB should be opened
// with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

// Token lookups re-compare in Go: MySQL's default collation is case
// insensitive and ignores trailing spaces, and tokens must match byte for byte.
// Update callers pass the token a lookup returned, so their WHERE clauses only
// ever see exact values.

func (r *userRepository) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	user, err := r.first(ctx, "verification_token = ?", token)
	if err != nil {
		return nil, err
	}
	if !sameToken(user.VerificationToken, token) {
		return nil, ErrNotFound
	}
	return user, nil
}

func (r *userRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error) {
	user, err := r.first(ctx, "reset_password_token = ? AND reset_password_expires > ?", token, now)
	if err != nil {
		return nil, err
	}
	if !sameToken(user.ResetPasswordToken, token) {
		return nil, ErrNotFound
	}
	return user, nil
}

func (r *userRepository) MarkVerified(ctx context.Context, id uuid.UUID, token string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND verification_token = ?", id, token).
		Updates(map[string]interface{}{
			"is_verified":        true,
			"verification_token": nil,
		})
	return rowsOrNotFound(res)
}

func (r *userRepository) SetResetToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reset_password_token":   token,
			"reset_password_expires": expires,
		})
	return rowsOrNotFound(res)
}

func (r *userRepository) ConsumeResetToken(ctx context.Context, id uuid.UUID, token string, now time.Time, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND reset_password_token = ? AND reset_password_expires > ?", id, token, now).
		Updates(map[string]interface{}{
			"password_hash":          passwordHash,
			"reset_password_token":   nil,
			"reset_password_expires": nil,
		})
	return rowsOrNotFound(res)
}

func (r *userRepository) first(ctx context.Context, query string, args ...interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func sameToken(stored *string, token string) bool {
	return stored != nil && subtle.ConstantTimeCompare([]byte(*stored), []byte(token)) == 1
}

func rowsOrNotFound(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
