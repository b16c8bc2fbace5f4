package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"authsvc/internal/auth"
	"authsvc/internal/cache"
	apperrors "authsvc/internal/errors"
	"authsvc/internal/model"
	"authsvc/internal/notify"
	"authsvc/internal/repository"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error) {
	args := m.Called(ctx, token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, id uuid.UUID, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *MockUserRepository) SetResetToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error {
	args := m.Called(ctx, id, token, expires)
	return args.Error(0)
}

func (m *MockUserRepository) ConsumeResetToken(ctx context.Context, id uuid.UUID, token string, now time.Time, passwordHash string) error {
	args := m.Called(ctx, id, token, now, passwordHash)
	return args.Error(0)
}

// MockSessionIssuer is a mock implementation of SessionIssuer.
type MockSessionIssuer struct {
	mock.Mock
}

func (m *MockSessionIssuer) Sign(userID uuid.UUID, role model.Role) (string, time.Time, error) {
	args := m.Called(userID, role)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// MockNotifier is a mock implementation of notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendVerification(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier keeps every message so tests can read issued tokens.
type recordingNotifier struct {
	mu           sync.Mutex
	verification []notify.Message
	reset        []notify.Message
}

func (n *recordingNotifier) SendVerification(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification = append(n.verification, msg)
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset = append(n.reset, msg)
	return nil
}

func (n *recordingNotifier) lastReset() notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[len(n.reset)-1]
}

type fixture struct {
	svc      AuthService
	repo     *repository.MemoryUserRepository
	jwt      *auth.JWTService
	store    *auth.TokenStore
	clock    *testClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	repo := repository.NewMemoryUserRepository()
	mem := cache.NewMemory().WithClock(clock.Now)
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour).WithClock(clock.Now)
	store := auth.NewTokenStore(mem)
	notifier := &recordingNotifier{}

	opts.Now = clock.Now
	if opts.PublicBaseURL == "" {
		opts.PublicBaseURL = "http://localhost:8080/"
	}
	svc := NewAuthService(Dependencies{
		Users:    repo,
		Profiles: NewUserService(repo, mem),
		Issuer:   jwtService,
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		Revoker:  store,
		Notifier: notifier,
	}, opts)

	return &fixture{svc: svc, repo: repo, jwt: jwtService, store: store, clock: clock, notifier: notifier}
}

func (f *fixture) registerVerified(t *testing.T, email, password string) *model.PublicUser {
	t.Helper()
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "Ada", email, password)
	require.NoError(t, err)
	stored, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, *stored.VerificationToken))
	return user
}

func assertKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperrors.KindOf(err), "got %v", err)
}

func newMockService(repo *MockUserRepository, issuer SessionIssuer, opts Options) AuthService {
	if issuer == nil {
		issuer = auth.NewJWTService("test-secret", time.Hour)
	}
	return NewAuthService(Dependencies{
		Users:    repo,
		Profiles: NewUserService(repo, cache.NewMemory()),
		Issuer:   issuer,
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		Notifier: &recordingNotifier{},
	}, opts)
}

func TestAuthService_Register(t *testing.T) {
	storeDown := errors.New("connection refused")

	tests := []struct {
		name      string
		userName  string
		email     string
		password  string
		setupMock func(*MockUserRepository)
		wantKind  apperrors.Kind
		wantErr   error
	}{
		{
			name:     "successful registration",
			userName: "Test User",
			email:    "  Test@Example.com ",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(nil, repository.ErrNotFound)
				m.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
					return u.Email == "test@example.com" && !u.IsVerified &&
						u.VerificationToken != nil && len(*u.VerificationToken) == 64 &&
						u.PasswordHash != "password123"
				})).Return(nil)
			},
		},
		{
			name:      "missing name",
			email:     "test@example.com",
			password:  "password123",
			setupMock: func(m *MockUserRepository) {},
			wantKind:  apperrors.KindValidation,
		},
		{
			name:      "blank password",
			userName:  "Test User",
			email:     "test@example.com",
			password:  "   ",
			setupMock: func(m *MockUserRepository) {},
			wantKind:  apperrors.KindValidation,
		},
		{
			name:     "user already exists",
			userName: "Existing User",
			email:    "existing@example.com",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByEmail", mock.Anything, "existing@example.com").Return(&model.User{Email: "existing@example.com"}, nil)
			},
			wantKind: apperrors.KindConflict,
			wantErr:  ErrUserAlreadyExists,
		},
		{
			name:     "unique index rejects concurrent insert",
			userName: "Racer",
			email:    "race@example.com",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByEmail", mock.Anything, "race@example.com").Return(nil, repository.ErrNotFound)
				m.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEmail)
			},
			wantKind: apperrors.KindConflict,
			wantErr:  ErrUserAlreadyExists,
		},
		{
			name:     "store unavailable on lookup",
			userName: "Test User",
			email:    "test@example.com",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(nil, storeDown)
			},
			wantKind: apperrors.KindDependency,
			wantErr:  storeDown,
		},
		{
			name:     "store unavailable on create",
			userName: "Test User",
			email:    "test@example.com",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(nil, repository.ErrNotFound)
				m.On("Create", mock.Anything, mock.Anything).Return(storeDown)
			},
			wantKind: apperrors.KindDependency,
			wantErr:  storeDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)

			service := newMockService(mockRepo, nil, Options{})
			user, err := service.Register(context.Background(), tt.userName, tt.email, tt.password)

			if tt.wantKind != apperrors.KindInternal || tt.wantErr != nil {
				assertKind(t, err, tt.wantKind)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "test@example.com", user.Email)
				assert.Equal(t, tt.userName, user.Name)
				assert.False(t, user.IsVerified)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Register_NotifierFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	notifier := new(MockNotifier)
	notifier.On("SendVerification", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Email == "ada@example.com" && msg.Link == "https://auth.example.com/api/auth/verify/"+msg.Token
	})).Return(errors.New("mailer down"))

	repo := repository.NewMemoryUserRepository()
	svc := NewAuthService(Dependencies{
		Users:    repo,
		Profiles: NewUserService(repo, cache.NewMemory()),
		Issuer:   auth.NewJWTService("test-secret", time.Hour),
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		Notifier: notifier,
		Logger:   zap.New(core),
	}, Options{PublicBaseURL: "https://auth.example.com"})

	user, err := svc.Register(context.Background(), "Ada", "ada@example.com", "pw")

	require.NoError(t, err)
	assert.NotNil(t, user)
	assert.Equal(t, 1, logs.FilterMessage("notification failed").Len())
	notifier.AssertExpectations(t)
}

func TestAuthService_RegisterTwiceKeepsFirstRecord(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first, err := f.svc.Register(ctx, "Ada", "ada@example.com", "first")
	require.NoError(t, err)
	before, err := f.repo.FindByID(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "Impostor", "ADA@example.com", "second")
	assertKind(t, err, apperrors.KindConflict)

	after, err := f.repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAuthService_ConcurrentRegisterSameEmail(t *testing.T) {
	f := newFixture(t, Options{})

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), fmt.Sprintf("user-%d", i), "same@example.com", "pw")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.IsKind(err, apperrors.KindConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestAuthService_VerificationLifecycle(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	require.NoError(t, err)

	stored, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsVerified)
	require.NotNil(t, stored.VerificationToken)
	token := *stored.VerificationToken
	assert.NotEmpty(t, token)
	require.Len(t, f.notifier.verification, 1)
	assert.Equal(t, token, f.notifier.verification[0].Token)
	assert.Equal(t, "http://localhost:8080/api/auth/verify/"+token, f.notifier.verification[0].Link)

	// Unverified accounts cannot log in, whatever the password.
	_, err = f.svc.Login(ctx, "ada@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	_, err = f.svc.Login(ctx, "ada@example.com", "wrong")
	assertKind(t, err, apperrors.KindAuth)

	// Tokens match exactly.
	err = f.svc.VerifyEmail(ctx, token[:len(token)-1])
	assertKind(t, err, apperrors.KindNotFound)

	require.NoError(t, f.svc.VerifyEmail(ctx, token))
	stored, err = f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.VerificationToken)

	err = f.svc.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)

	err = f.svc.VerifyEmail(ctx, "")
	assertKind(t, err, apperrors.KindNotFound)
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.registerVerified(t, "ada@example.com", "s3cret")

	session, err := f.svc.Login(ctx, " ADA@example.com", "s3cret")
	require.NoError(t, err)

	assert.Equal(t, f.clock.Now().Add(24*time.Hour), session.ExpiresAt)
	assert.Equal(t, user.ID, session.User.ID)

	claims, err := f.jwt.ValidateToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, model.RoleUser, claims.Role)
	assert.Equal(t, 24*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestAuthService_Login_IndistinguishableFailures(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.registerVerified(t, "ada@example.com", "s3cret")

	_, wrongPassword := f.svc.Login(ctx, "ada@example.com", "nope")
	_, unknownEmail := f.svc.Login(ctx, "ghost@example.com", "nope")

	assertKind(t, wrongPassword, apperrors.KindAuth)
	assertKind(t, unknownEmail, apperrors.KindAuth)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, apperrors.MapErrorToHTTP(wrongPassword), apperrors.MapErrorToHTTP(unknownEmail))

	_, err := f.svc.Login(ctx, "", "s3cret")
	assertKind(t, err, apperrors.KindValidation)
	_, err = f.svc.Login(ctx, "ada@example.com", "")
	assertKind(t, err, apperrors.KindValidation)
}

func TestAuthService_PasswordReset(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.registerVerified(t, "ada@example.com", "old-password")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ada@example.com"))
	msg := f.notifier.lastReset()
	assert.Equal(t, f.clock.Now().Add(time.Hour), msg.ExpiresAt)
	assert.Equal(t, "http://localhost:8080/api/auth/reset-password/"+msg.Token, msg.Link)

	stored, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetPasswordToken)
	require.NotNil(t, stored.ResetPasswordExpires)
	assert.Equal(t, msg.Token, *stored.ResetPasswordToken)

	f.clock.Advance(59 * time.Minute)
	require.NoError(t, f.svc.ResetPassword(ctx, msg.Token, "new-password"))

	stored, err = f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetPasswordToken)
	assert.Nil(t, stored.ResetPasswordExpires)

	_, err = f.svc.Login(ctx, "ada@example.com", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ada@example.com", "new-password")
	assert.NoError(t, err)

	// one-shot
	err = f.svc.ResetPassword(ctx, msg.Token, "third-password")
	assertKind(t, err, apperrors.KindInvalidOrExpired)
}

func TestAuthService_ResetPassword_ExpiredAndUnknownLookAlike(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.registerVerified(t, "ada@example.com", "old-password")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ada@example.com"))
	msg := f.notifier.lastReset()
	before, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	expired := f.svc.ResetPassword(ctx, msg.Token, "new-password")
	unknown := f.svc.ResetPassword(ctx, "0123456789abcdef", "new-password")

	assertKind(t, expired, apperrors.KindInvalidOrExpired)
	assertKind(t, unknown, apperrors.KindInvalidOrExpired)
	assert.Equal(t, expired.Error(), unknown.Error())

	after, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	err = f.svc.ResetPassword(ctx, msg.Token, "")
	assertKind(t, err, apperrors.KindValidation)
}

func TestAuthService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture(t, Options{})

	err := f.svc.RequestPasswordReset(context.Background(), "ghost@example.com")

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.notifier.reset)
}

func TestAuthService_GetCurrentUser(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	require.NoError(t, err)

	profile, err := f.svc.GetCurrentUser(ctx, auth.Identity{UserID: user.ID})
	require.NoError(t, err)
	assert.False(t, profile.IsVerified)

	// Verification invalidates the cached profile.
	stored, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, *stored.VerificationToken))

	profile, err = f.svc.GetCurrentUser(ctx, auth.Identity{UserID: user.ID})
	require.NoError(t, err)
	assert.True(t, profile.IsVerified)

	_, err = f.svc.GetCurrentUser(ctx, auth.Identity{UserID: uuid.New()})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_Logout(t *testing.T) {
	tests := []struct {
		name        string
		revoke      bool
		advance     time.Duration
		wantRevoked bool
	}{
		{"stateless by default", false, 0, false},
		{"revocation enabled", true, 0, true},
		{"already expired session", true, 25 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{RevokeOnLogout: tt.revoke})
			ctx := context.Background()
			f.registerVerified(t, "ada@example.com", "s3cret")

			session, err := f.svc.Login(ctx, "ada@example.com", "s3cret")
			require.NoError(t, err)
			claims, err := f.jwt.ValidateToken(session.Token)
			require.NoError(t, err)
			identity, err := claims.Identity()
			require.NoError(t, err)

			f.clock.Advance(tt.advance)
			require.NoError(t, f.svc.Logout(ctx, identity))

			revoked, err := f.store.IsSessionRevoked(ctx, identity.TokenID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRevoked, revoked)
		})
	}
}

func TestAuthService_DependencyFailures(t *testing.T) {
	storeDown := errors.New("connection refused")
	id := uuid.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	verified := &model.User{ID: id, Email: "ada@example.com", PasswordHash: string(hash), IsVerified: true, Role: model.RoleUser}

	tests := []struct {
		name   string
		setup  func(*MockUserRepository, *MockSessionIssuer)
		invoke func(AuthService) error
	}{
		{
			name: "login lookup fails",
			setup: func(m *MockUserRepository, _ *MockSessionIssuer) {
				m.On("FindByEmail", mock.Anything, "ada@example.com").Return(nil, storeDown)
			},
			invoke: func(s AuthService) error {
				_, err := s.Login(context.Background(), "ada@example.com", "s3cret")
				return err
			},
		},
		{
			name: "issuer fails",
			setup: func(m *MockUserRepository, i *MockSessionIssuer) {
				m.On("FindByEmail", mock.Anything, "ada@example.com").Return(verified, nil)
				i.On("Sign", id, model.RoleUser).Return("", time.Time{}, errors.New("signing failed"))
			},
			invoke: func(s AuthService) error {
				_, err := s.Login(context.Background(), "ada@example.com", "s3cret")
				return err
			},
		},
		{
			name: "verify update fails",
			setup: func(m *MockUserRepository, _ *MockSessionIssuer) {
				m.On("FindByVerificationToken", mock.Anything, "tok").Return(&model.User{ID: id}, nil)
				m.On("MarkVerified", mock.Anything, id, "tok").Return(storeDown)
			},
			invoke: func(s AuthService) error { return s.VerifyEmail(context.Background(), "tok") },
		},
		{
			name: "reset request write fails",
			setup: func(m *MockUserRepository, _ *MockSessionIssuer) {
				m.On("FindByEmail", mock.Anything, "ada@example.com").Return(verified, nil)
				m.On("SetResetToken", mock.Anything, id, mock.Anything, mock.Anything).Return(storeDown)
			},
			invoke: func(s AuthService) error { return s.RequestPasswordReset(context.Background(), "ada@example.com") },
		},
		{
			name: "reset lookup fails",
			setup: func(m *MockUserRepository, _ *MockSessionIssuer) {
				m.On("FindByResetToken", mock.Anything, "tok", mock.Anything).Return(nil, storeDown)
			},
			invoke: func(s AuthService) error { return s.ResetPassword(context.Background(), "tok", "new") },
		},
		{
			name: "profile lookup fails",
			setup: func(m *MockUserRepository, _ *MockSessionIssuer) {
				m.On("FindByID", mock.Anything, id).Return(nil, storeDown)
			},
			invoke: func(s AuthService) error {
				_, err := s.GetCurrentUser(context.Background(), auth.Identity{UserID: id})
				return err
			},
		},
		{
			name: "store exceeds operation timeout",
			setup: func(m *MockUserRepository, _ *MockSessionIssuer) {
				m.On("FindByEmail", mock.Anything, "ada@example.com").
					Run(func(args mock.Arguments) {
						<-args.Get(0).(context.Context).Done()
					}).
					Return(nil, context.DeadlineExceeded)
			},
			invoke: func(s AuthService) error { return s.RequestPasswordReset(context.Background(), "ada@example.com") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			issuer := new(MockSessionIssuer)
			tt.setup(mockRepo, issuer)

			service := newMockService(mockRepo, issuer, Options{OperationTimeout: 50 * time.Millisecond})
			err := tt.invoke(service)

			assertKind(t, err, apperrors.KindDependency)
			assert.Equal(t, 503, apperrors.MapErrorToHTTP(err).StatusCode)
			mockRepo.AssertExpectations(t)
			issuer.AssertExpectations(t)
		})
	}
}

func TestAuthService_VerifyEmail_LostRace(t *testing.T) {
	mockRepo := new(MockUserRepository)
	id := uuid.New()
	mockRepo.On("FindByVerificationToken", mock.Anything, "tok").Return(&model.User{ID: id}, nil)
	mockRepo.On("MarkVerified", mock.Anything, id, "tok").Return(repository.ErrNotFound)

	err := newMockService(mockRepo, nil, Options{}).VerifyEmail(context.Background(), "tok")

	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
	mockRepo.AssertExpectations(t)
}
