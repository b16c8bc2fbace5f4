package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the authorization role carried in session tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the persisted credential record.
type User struct {
	ID                   uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Name                 string     `json:"name" gorm:"size:255;not null"`
	Email                string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash         string     `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	IsVerified           bool       `json:"is_verified" gorm:"not null;default:false"`
	VerificationToken    *string    `json:"-" gorm:"size:128;index"`
	ResetPasswordToken   *string    `json:"-" gorm:"size:128;index"`
	ResetPasswordExpires *time.Time `json:"-"`
	Role                 Role       `json:"role" gorm:"size:50;not null;default:'user'"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// BeforeCreate sets UUID and role before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// PublicUser is the projection of a User that may leave the service.
type PublicUser struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// Public returns the public view of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

// HasValidResetToken reports whether token matches the stored reset token and
// has not expired at now.
func (u *User) HasValidResetToken(token string, now time.Time) bool {
	return u.ResetPasswordToken != nil && *u.ResetPasswordToken == token &&
		u.ResetPasswordExpires != nil && u.ResetPasswordExpires.After(now)
}
