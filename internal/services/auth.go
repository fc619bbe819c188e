package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/furniro/apiserver/internal/store"
	"github.com/furniro/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SignupInput carries the fields of a signup request.
type SignupInput struct {
	Email    string
	Name     string
	Password string
	// Role defaults to "user" when empty.
	Role string
}

// Validate checks the required fields and the requested role without
// touching the store.
func (in SignupInput) Validate() error {
	if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.Name) == "" || in.Password == "" {
		return invalidf("Email, name, and password required")
	}
	if !types.ValidRole(in.role()) {
		return invalidf("Invalid role")
	}
	return nil
}

func (in SignupInput) role() string {
	role := strings.TrimSpace(in.Role)
	if role == "" {
		return types.RoleUser
	}
	return role
}

// AuthService implements signup and credential checks.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	emitter

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserRepository, hasher PasswordHasher, events EventPublisher, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:   users,
		hasher:  hasher,
		emitter: newEmitter(events, logger),
	}
}

// Signup registers a new account.
//
// The lookup before the insert only produces the friendly conflict error;
// the unique index in the store is what rejects a concurrent duplicate,
// which surfaces here as store.ErrDuplicate.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	if err := in.Validate(); err != nil {
		return types.User{}, err
	}
	email := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.Name)
	role := in.role()

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.User{}, invalidf("Password must be at most 72 bytes")
		}
		return types.User{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}

	s.emit(ctx, types.EventUserSignedUp, user.Email, map[string]any{"role": user.Role})
	return user, nil
}

// Login verifies the credentials and returns the account. An unknown email
// and a wrong password both yield ErrInvalidCredentials, and both pay for
// one hash comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.User{}, invalidf("Email and password required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(password, s.placeholderHash())
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("placeholder-password")
	})
	return s.dummyHash
}
