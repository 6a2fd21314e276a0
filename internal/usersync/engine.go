package usersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ecocollect/identity-service/internal/identity"
	"github.com/ecocollect/identity-service/internal/keycloak"
)

// Directory is the slice of the provider's admin API the engine consumes.
type Directory interface {
	ListUsers(ctx context.Context) ([]keycloak.User, error)
	EffectiveRealmRoles(ctx context.Context, userID string) ([]string, error)
}

// Store is the slice of the local repository the engine reconciles against.
type Store interface {
	GetByEmail(ctx context.Context, email string) (identity.User, error)
	Create(ctx context.Context, user identity.User) (identity.User, error)
	Update(ctx context.Context, user identity.User) (identity.User, error)
}

// Result aggregates the outcome of one reconciliation pass.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Total returns the number of remote identities the pass accounted for.
func (r Result) Total() int {
	return r.Created + r.Updated + r.Skipped + r.Errors
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeSkipped
)

// Engine reconciles the local user projection against the identity provider.
// Email is the reconciliation key: provider usernames may be absent or
// reassigned, while email is treated as the stable external identity.
type Engine struct {
	directory Directory
	store     Store
	logger    *slog.Logger
	group     singleflight.Group
}

// NewEngine creates a reconciliation engine.
func NewEngine(directory Directory, store Store, logger *slog.Logger) *Engine {
	return &Engine{directory: directory, store: store, logger: logger}
}

// Run executes one full reconciliation pass. Concurrent callers (a manual
// trigger racing the startup pass, or two manual triggers) join the in-flight
// pass and share its result instead of running a duplicate pass.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	value, err, shared := e.group.Do("reconcile", func() (any, error) {
		return e.runPass(ctx)
	})
	if shared {
		e.logger.Info("joined an in-flight reconciliation pass")
	}
	if err != nil {
		return Result{}, err
	}
	return value.(Result), nil
}

func (e *Engine) runPass(ctx context.Context) (Result, error) {
	started := time.Now()

	remote, err := e.directory.ListUsers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list remote identities: %w", err)
	}
	if len(remote) == 0 {
		e.logger.Warn("identity provider returned no identities, nothing to reconcile")
		return Result{}, nil
	}

	e.logger.Info("starting reconciliation pass", "remote_identities", len(remote))

	var result Result
	for _, remoteUser := range remote {
		out, err := e.reconcile(ctx, remoteUser)
		if err != nil {
			result.Errors++
			e.logger.Error("failed to reconcile identity",
				"username", remoteUser.Username, "email", remoteUser.Email, "error", err)
			continue
		}

		switch out {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		case outcomeSkipped:
			result.Skipped++
		}
	}

	e.logger.Info("reconciliation pass finished",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"duration", time.Since(started))

	return result, nil
}

// reconcile decides create/update/skip for a single remote identity. Faults
// here never abort the pass; the caller counts them and moves on.
func (e *Engine) reconcile(ctx context.Context, remoteUser keycloak.User) (outcome, error) {
	email := strings.TrimSpace(remoteUser.Email)
	if email == "" {
		// Email is the reconciliation key; identities without one are never persisted.
		e.logger.Warn("skipping identity without email",
			"keycloak_id", remoteUser.ID, "username", remoteUser.Username)
		return outcomeSkipped, nil
	}

	local, err := e.store.GetByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return e.create(ctx, remoteUser, email)
	}
	if err != nil {
		return 0, fmt.Errorf("look up %s: %w", email, err)
	}
	return e.update(ctx, local, remoteUser)
}

func (e *Engine) create(ctx context.Context, remoteUser keycloak.User, email string) (outcome, error) {
	username := strings.TrimSpace(remoteUser.Username)
	if username == "" {
		// Fall back to the local part of the email.
		if localPart, _, found := strings.Cut(email, "@"); found && localPart != "" {
			username = localPart
		} else {
			username = email
		}
	}

	now := time.Now().UTC()
	user := identity.User{
		ID:              uuid.NewString(),
		Username:        username,
		Email:           email,
		FirstName:       remoteUser.FirstName,
		LastName:        remoteUser.LastName,
		Role:            e.resolveRole(ctx, remoteUser),
		Active:          remoteUser.Enabled,
		FaceAuthEnabled: false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := e.store.Create(ctx, user); err != nil {
		return 0, fmt.Errorf("create %s: %w", email, err)
	}

	e.logger.Info("created user from identity provider",
		"email", email, "username", username, "role", user.Role)
	return outcomeCreated, nil
}

func (e *Engine) update(ctx context.Context, local identity.User, remoteUser keycloak.User) (outcome, error) {
	changed := false

	if role := e.resolveRole(ctx, remoteUser); local.Role != role {
		e.logger.Info("updating role", "email", local.Email, "from", local.Role, "to", role)
		local.Role = role
		changed = true
	}
	if local.Active != remoteUser.Enabled {
		e.logger.Info("updating active status", "email", local.Email, "from", local.Active, "to", remoteUser.Enabled)
		local.Active = remoteUser.Enabled
		changed = true
	}
	if remoteUser.FirstName != "" && remoteUser.FirstName != local.FirstName {
		local.FirstName = remoteUser.FirstName
		changed = true
	}
	if remoteUser.LastName != "" && remoteUser.LastName != local.LastName {
		local.LastName = remoteUser.LastName
		changed = true
	}

	if !changed {
		return outcomeSkipped, nil
	}

	if _, err := e.store.Update(ctx, local); err != nil {
		return 0, fmt.Errorf("update %s: %w", local.Email, err)
	}
	return outcomeUpdated, nil
}

// resolveRole asks the provider for the identity's effective realm roles and
// maps them through the role policy. Lookup failures fall back to the default
// user role rather than failing the identity.
func (e *Engine) resolveRole(ctx context.Context, remoteUser keycloak.User) identity.Role {
	names, err := e.directory.EffectiveRealmRoles(ctx, remoteUser.ID)
	if err != nil {
		e.logger.Warn("failed to resolve realm roles, defaulting to user",
			"email", remoteUser.Email, "error", err)
		return identity.RoleUser
	}
	return ResolveRole(names)
}
