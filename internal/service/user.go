package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
)

// UserServiceOptions groups dependencies for UserService.
type UserServiceOptions struct {
	Repo   core.UserRepository // Required: user repository
	Logger *slog.Logger        // Optional: structured logger
}

// UserService manages marketplace accounts and profiles.
type UserService struct {
	repo   core.UserRepository
	logger *slog.Logger
}

// NewUserService constructs a new UserService.
func NewUserService(opts UserServiceOptions) (*UserService, error) {
	if opts.Repo == nil {
		return nil, errors.New("UserRepository is required")
	}
	return &UserService{
		repo:   opts.Repo,
		logger: componentLogger(opts.Logger, "user_service"),
	}, nil
}

// UpsertFromIdentity creates the account on first sign-in and refreshes its
// last login otherwise. The account type is fixed at creation; later group
// changes at the IdP do not alter it.
func (s *UserService) UpsertFromIdentity(
	ctx context.Context,
	identity domainauth.Identity,
	role domainauth.Role,
) (*model.User, error) {
	if !role.Valid() {
		return nil, apperrors.Forbidden("identity has no marketplace role")
	}
	req := &model.UpsertUserRequest{
		ExternalID: identity.UserID,
		Type:       model.UserType(role),
		Name:       plainText(identity.Name()),
		Email:      identity.Email,
	}
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	u, err := s.repo.Upsert(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if !u.CanSignIn() {
		s.logger.WarnContext(ctx, "blocked account attempted sign-in", "user_id", u.ID)
		return nil, core.ErrAccountBlocked
	}
	return u, nil
}

// Active returns the account behind an authenticated session and fails when
// it has since been blocked or deactivated.
func (s *UserService) Active(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, apperrors.Unauthorized("account no longer exists")
		}
		return nil, err
	}
	if !u.CanSignIn() {
		return nil, core.ErrAccountBlocked
	}
	return u, nil
}

// GetMe returns the caller's own account.
func (s *UserService) GetMe(ctx context.Context, caller domainauth.Caller) (*model.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, caller.UserID)
}

// UpdateProfile edits the caller's contact details and the profile that
// matches their account type.
func (s *UserService) UpdateProfile(
	ctx context.Context,
	caller domainauth.Caller,
	req *model.UpdateProfileRequest,
) (*model.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	current, err := s.repo.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	sanitizeProfile(req)
	if err := req.Validate(current.Type); err != nil {
		return nil, invalid(err)
	}
	u, err := s.repo.UpdateProfile(ctx, caller.UserID, *req)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// SetBlocked blocks or unblocks an account. Admin only; admins cannot block
// themselves.
func (s *UserService) SetBlocked(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	blocked bool,
) (*model.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, apperrors.Forbidden("only admins can block accounts")
	}
	userID, err := parseID(id, core.ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	if userID == caller.UserID {
		return nil, apperrors.ValidationField("id", "admins cannot block themselves")
	}
	u, err := s.repo.SetBlocked(ctx, userID, blocked)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "account block state changed",
		"user_id", u.ID,
		"blocked", blocked,
		"admin_id", caller.UserID,
	)
	return u, nil
}

func sanitizeProfile(req *model.UpdateProfileRequest) {
	req.Name = plainTextPtr(req.Name)
	if wp := req.WorkerProfile; wp != nil {
		wp.Skills = plainTextAll(wp.Skills)
		wp.Languages = plainTextAll(wp.Languages)
	}
	if ep := req.EmployerProfile; ep != nil {
		ep.CompanyName = plainText(ep.CompanyName)
		ep.CompanyType = plainText(ep.CompanyType)
		ep.Address = plainText(ep.Address)
		ep.GSTNumber = plainText(ep.GSTNumber)
	}
}
