package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// defaultTemporaryPassword is set as a one-time credential on identities
// created administratively; the provider forces a change on first login.
const defaultTemporaryPassword = "ChangeMe123!"

type service struct {
	repo      Repository
	registrar Registrar
	logger    *slog.Logger
}

// NewService creates a new user service. The registrar receives best-effort
// remote writes; the local repository remains authoritative when they fail.
func NewService(repo Repository, registrar Registrar, logger *slog.Logger) Service {
	return &service{repo: repo, registrar: registrar, logger: logger}
}

func (s *service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *service) GetByID(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, strings.TrimSpace(email))
}

func (s *service) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.GetByUsername(ctx, strings.TrimSpace(username))
}

func (s *service) Create(ctx context.Context, input CreateInput) (User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" || email == "" {
		return User{}, fmt.Errorf("username and email are required")
	}

	role := input.Role
	if !role.Valid() {
		role = RoleUser
	}

	// Register the identity with the provider first. Failure (including an
	// already-existing remote identity) is logged and does not block the
	// local write; the local store is the durability boundary.
	if err := s.registrar.CreateUser(ctx, username, email, input.FirstName, input.LastName, defaultTemporaryPassword); err != nil {
		s.logger.Warn("failed to register user with identity provider, proceeding with local create",
			"username", username, "error", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Role:      role,
		Active:    input.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s.repo.Create(ctx, user)
}

func (s *service) Update(ctx context.Context, id string, input UpdateInput) (User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return User{}, fmt.Errorf("invalid role: %s", *input.Role)
		}
		user.Role = *input.Role
	}
	if input.Active != nil {
		user.Active = *input.Active
	}
	if input.ProfileImage != nil {
		user.ProfileImage = *input.ProfileImage
	}
	if input.FaceAuthEnabled != nil {
		user.FaceAuthEnabled = *input.FaceAuthEnabled
	}
	if input.Driver != nil {
		user.Driver = *input.Driver
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return User{}, err
	}

	// Push profile fields to the provider by username. Divergence on failure
	// is expected and is not repaired by later reconciliation passes.
	if err := s.registrar.UpdateProfile(ctx, updated.Username, updated.FirstName, updated.LastName); err != nil {
		s.logger.Warn("failed to push profile update to identity provider",
			"username", updated.Username, "error", err)
	}

	return updated, nil
}

func (s *service) Delete(ctx context.Context, id string) (User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	// Local record goes first; a failed remote delete is logged only and the
	// local deletion is not rolled back.
	if err := s.repo.Delete(ctx, id); err != nil {
		return User{}, err
	}

	if err := s.registrar.DeleteByEmail(ctx, user.Email); err != nil {
		s.logger.Warn("user deleted locally but removal from identity provider failed",
			"email", user.Email, "error", err)
	}

	return user, nil
}
