package services

import (
	"context"
	"strings"

	"github.com/furniro/apiserver/types"
	"go.uber.org/zap"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateRole(ctx context.Context, email, role string) error
	Delete(ctx context.Context, email string) error
	List(ctx context.Context) ([]types.UserSummary, error)
}

// UserService encapsulates role administration use-cases.
//
// Mutations go straight to the repository and a mutation that touched no
// row is reported as store.ErrNotFound; there is no existence check first.
type UserService struct {
	repo UserRepository
	emitter
}

func NewUserService(repo UserRepository, events EventPublisher, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, emitter: newEmitter(events, logger)}
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, strings.TrimSpace(email))
}

func (s *UserService) List(ctx context.Context) ([]types.UserSummary, error) {
	return s.repo.List(ctx)
}

// MakeAdmin promotes the user to admin.
func (s *UserService) MakeAdmin(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalidf("Email required")
	}
	return s.setRole(ctx, email, types.RoleAdmin)
}

// UpdateRole sets the role, which must be exactly "user" or "admin".
func (s *UserService) UpdateRole(ctx context.Context, email, role string) error {
	email = strings.TrimSpace(email)
	if email == "" || role == "" {
		return invalidf("Email and role required")
	}
	if !types.ValidRole(role) {
		return invalidf("Invalid role")
	}
	return s.setRole(ctx, email, role)
}

// RemoveUser deletes the account. Likes made by the user are kept.
func (s *UserService) RemoveUser(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalidf("Email required")
	}
	if err := s.repo.Delete(ctx, email); err != nil {
		return err
	}
	s.emit(ctx, types.EventUserRemoved, email, nil)
	return nil
}

func (s *UserService) setRole(ctx context.Context, email, role string) error {
	if err := s.repo.UpdateRole(ctx, email, role); err != nil {
		return err
	}
	s.emit(ctx, types.EventUserRoleChange, email, map[string]any{"role": role})
	return nil
}
