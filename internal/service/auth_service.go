package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authsvc/internal/auth"
	apperrors "authsvc/internal/errors"
	"authsvc/internal/logger"
	"authsvc/internal/model"
	"authsvc/internal/notify"
	"authsvc/internal/repository"
)

const (
	defaultResetTokenTTL    = time.Hour
	defaultOperationTimeout = 5 * time.Second

	verifyLinkPath = "/api/auth/verify/"
	resetLinkPath  = "/api/auth/reset-password/"
)

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong password alike.
	ErrInvalidCredentials = apperrors.Auth("INVALID_CREDENTIALS", "invalid credentials")
	// ErrEmailNotVerified is returned when the password matches but the email is unverified.
	ErrEmailNotVerified = apperrors.Auth("EMAIL_NOT_VERIFIED", "please verify your email before logging in")
	// ErrUserAlreadyExists is returned when trying to register an existing email.
	ErrUserAlreadyExists = apperrors.Conflict("USER_ALREADY_EXISTS", "user already exists")
	// ErrUserNotFound is returned when an email or id does not resolve.
	ErrUserNotFound = apperrors.NotFound("USER_NOT_FOUND", "user not found")
	// ErrInvalidVerificationToken is returned when no pending account holds the token.
	ErrInvalidVerificationToken = apperrors.NotFound("INVALID_VERIFICATION_TOKEN", "invalid verification token")
	// ErrInvalidResetToken covers both unknown and expired reset tokens.
	ErrInvalidResetToken = apperrors.InvalidOrExpired("invalid or expired reset token")
)

// SessionIssuer signs session tokens. *auth.JWTService implements it.
type SessionIssuer interface {
	Sign(userID uuid.UUID, role model.Role) (token string, expiresAt time.Time, err error)
}

// Session is the outcome of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.PublicUser
}

// AuthService handles the credential lifecycle. Every error it returns is an
// *apperrors.Error.
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*model.PublicUser, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*Session, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetCurrentUser(ctx context.Context, identity auth.Identity) (*model.PublicUser, error)
	Logout(ctx context.Context, identity auth.Identity) error
}

// Dependencies are the collaborators of AuthService. Revoker may be nil.
type Dependencies struct {
	Users    repository.UserRepository
	Profiles UserService
	Issuer   SessionIssuer
	Hasher   auth.PasswordHasher
	Revoker  auth.SessionRevoker
	Notifier notify.Notifier
	Logger   *zap.Logger
}

// Options tunes AuthService. Zero values fall back to defaults.
type Options struct {
	ResetTokenTTL    time.Duration
	OperationTimeout time.Duration
	// PublicBaseURL prefixes the links handed to the notifier.
	PublicBaseURL string
	// RevokeOnLogout keeps logged-out sessions in the revocation store until
	// they expire.
	RevokeOnLogout bool

	Now      func() time.Time
	NewToken auth.TokenGenerator
}

type authService struct {
	users    repository.UserRepository
	profiles UserService
	issuer   SessionIssuer
	hasher   auth.PasswordHasher
	revoker  auth.SessionRevoker
	notifier notify.Notifier
	log      *zap.Logger
	opts     Options

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new authentication service.
func NewAuthService(deps Dependencies, opts Options) AuthService {
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = defaultResetTokenTTL
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaultOperationTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewToken == nil {
		opts.NewToken = auth.NewOpaqueToken
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	log := deps.Logger
	if log == nil {
		log = logger.L()
	}
	return &authService{
		users:    deps.Users,
		profiles: deps.Profiles,
		issuer:   deps.Issuer,
		hasher:   deps.Hasher,
		revoker:  deps.Revoker,
		notifier: deps.Notifier,
		log:      log.Named("auth"),
		opts:     opts,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified account and hands its verification token to the notifier.
func (s *authService) Register(ctx context.Context, name, email, password string) (*model.PublicUser, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || strings.TrimSpace(password) == "" {
		return nil, apperrors.Validation("name, email and password are required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, ErrUserAlreadyExists
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Dependency(fmt.Errorf("check user existence: %w", err))
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	token, err := s.opts.NewToken()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("generate verification token: %w", err))
	}

	user := &model.User{
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: &token,
	}
	// The unique index settles concurrent registrations of the same email.
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, apperrors.Dependency(fmt.Errorf("create user: %w", err))
	}

	msg := notify.Message{Email: user.Email, Name: user.Name, Token: token, Link: s.link(verifyLinkPath, token)}
	s.dispatch("verification", user.ID, func() error { return s.notifier.SendVerification(ctx, msg) })

	return user.Public(), nil
}

// VerifyEmail consumes a verification token. A token can be used once.
func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if token == "" {
		return ErrInvalidVerificationToken
	}

	user, err := s.users.FindByVerificationToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidVerificationToken
	}
	if err != nil {
		return apperrors.Dependency(fmt.Errorf("find by verification token: %w", err))
	}

	if err := s.users.MarkVerified(ctx, user.ID, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// consumed by a concurrent request
			return ErrInvalidVerificationToken
		}
		return apperrors.Dependency(fmt.Errorf("mark verified: %w", err))
	}
	s.profiles.Invalidate(ctx, user.ID)
	return nil
}

// Login checks credentials and issues a session token.
func (s *authService) Login(ctx context.Context, email, password string) (*Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.compareDummy(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.Dependency(fmt.Errorf("find user: %w", err))
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperrors.Internal(fmt.Errorf("compare password: %w", err))
	}
	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}

	token, expiresAt, err := s.issuer.Sign(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.Dependency(fmt.Errorf("sign session token: %w", err))
	}

	return &Session{Token: token, ExpiresAt: expiresAt, User: user.Public()}, nil
}

// RequestPasswordReset stores a fresh reset token and hands it to the notifier.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	email = NormalizeEmail(email)
	if email == "" {
		return ErrUserNotFound
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return apperrors.Dependency(fmt.Errorf("find user: %w", err))
	}

	token, err := s.opts.NewToken()
	if err != nil {
		return apperrors.Internal(fmt.Errorf("generate reset token: %w", err))
	}
	expiresAt := s.opts.Now().Add(s.opts.ResetTokenTTL)

	if err := s.users.SetResetToken(ctx, user.ID, token, expiresAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return apperrors.Dependency(fmt.Errorf("set reset token: %w", err))
	}

	msg := notify.Message{
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		Link:      s.link(resetLinkPath, token),
		ExpiresAt: expiresAt,
	}
	s.dispatch("password_reset", user.ID, func() error { return s.notifier.SendPasswordReset(ctx, msg) })
	return nil
}

// ResetPassword replaces the password of the account holding an unexpired reset token.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if strings.TrimSpace(newPassword) == "" {
		return apperrors.Validation("password is required")
	}
	if token == "" {
		return ErrInvalidResetToken
	}

	user, err := s.users.FindByResetToken(ctx, token, s.opts.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return apperrors.Dependency(fmt.Errorf("find by reset token: %w", err))
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	// Re-checks token and expiry so a token expiring during hashing, or a
	// concurrent reset, leaves the record untouched.
	if err := s.users.ConsumeResetToken(ctx, user.ID, token, s.opts.Now(), hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return apperrors.Dependency(fmt.Errorf("consume reset token: %w", err))
	}
	s.profiles.Invalidate(ctx, user.ID)
	return nil
}

// GetCurrentUser returns the public profile of an authenticated caller.
func (s *authService) GetCurrentUser(ctx context.Context, identity auth.Identity) (*model.PublicUser, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	profile, err := s.profiles.GetProfile(ctx, identity.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.Dependency(fmt.Errorf("get profile: %w", err))
	}
	return profile, nil
}

// Logout is stateless unless RevokeOnLogout is set, in which case the
// session id is revoked for the rest of its lifetime.
func (s *authService) Logout(ctx context.Context, identity auth.Identity) error {
	if !s.opts.RevokeOnLogout || s.revoker == nil || identity.TokenID == "" {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ttl := identity.ExpiresAt.Sub(s.opts.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.revoker.RevokeSession(ctx, identity.TokenID, ttl); err != nil {
		return apperrors.Dependency(fmt.Errorf("revoke session: %w", err))
	}
	return nil
}

func (s *authService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.OperationTimeout)
}

func (s *authService) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", apperrors.Validation("password must be at most 72 bytes")
	}
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}
	return hash, nil
}

// compareDummy spends the same bcrypt work as a real comparison so unknown
// emails are not distinguishable by response time.
func (s *authService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("authsvc-unknown-account")
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

// dispatch delivers a notification. Failures are logged; the operation has
// already been committed.
func (s *authService) dispatch(kind string, userID uuid.UUID, send func() error) {
	if s.notifier == nil {
		return
	}
	if err := send(); err != nil {
		s.log.Warn("notification failed",
			zap.String("kind", kind),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func (s *authService) link(path, token string) string {
	return s.opts.PublicBaseURL + path + token
}
