package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ecocollect/identity-service/internal/identity"
	"github.com/ecocollect/identity-service/internal/keycloak"
	"github.com/ecocollect/identity-service/internal/usersync"
)

const (
	serviceTimeout = 8 * time.Second
	syncTimeout    = 5 * time.Minute
	maxBodyBytes   = 64 * 1024 // 64KB of JSON is more than enough for user payloads
)

// Synchronizer runs a full reconciliation pass on demand.
type Synchronizer interface {
	Run(ctx context.Context) (usersync.Result, error)
}

// RoleDirectory answers the diagnostic role lookup against the provider.
type RoleDirectory interface {
	FindByEmail(ctx context.Context, email string) (keycloak.User, error)
	EffectiveRealmRoles(ctx context.Context, userID string) ([]string, error)
}

// RegisterRoutes registers the user and admin routes.
func RegisterRoutes(r chi.Router, service identity.Service, syncer Synchronizer, directory RoleDirectory, logger *slog.Logger) {
	r.Route("/v1/users", func(r chi.Router) {
		r.Use(middleware.Recoverer)

		r.Get("/", listUsers(service, logger))
		r.Post("/", createUser(service, logger))
		r.Get("/by-email/{email}", getUserByEmail(service, logger))
		r.Get("/by-username/{username}", getUserByUsername(service, logger))
		r.Get("/{id}", getUser(service, logger))
		r.Put("/{id}", updateUser(service, logger))
		r.Delete("/{id}", deleteUser(service, logger))
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middleware.Recoverer)

		r.Post("/sync", triggerSync(syncer, logger))
		r.Get("/roles/{email}", debugRoles(directory, logger))
	})
}

func triggerSync(syncer Synchronizer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
		defer cancel()

		result, err := syncer.Run(ctx)
		if err != nil {
			logRequestError(r.Context(), logger, "manual user sync failed", err)
			writeError(w, http.StatusInternalServerError, "user synchronization failed: "+err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":  http.StatusOK,
			"message": "user synchronization completed successfully",
			"result":  result,
		})
	}
}

func debugRoles(directory RoleDirectory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(chi.URLParam(r, "email"))
		if email == "" {
			writeError(w, http.StatusBadRequest, "missing email")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		remoteUser, err := directory.FindByEmail(ctx, email)
		if errors.Is(err, keycloak.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found in identity provider")
			return
		}
		if err != nil {
			logRequestError(r.Context(), logger, "failed to look up identity", err)
			writeError(w, http.StatusInternalServerError, "failed to check roles")
			return
		}

		roles, err := directory.EffectiveRealmRoles(ctx, remoteUser.ID)
		if err != nil {
			logRequestError(r.Context(), logger, "failed to fetch realm roles", err)
			writeError(w, http.StatusInternalServerError, "failed to check roles")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"keycloak_user_id": remoteUser.ID,
			"email":            remoteUser.Email,
			"user_name":        remoteUser.Username,
			"first_name":       remoteUser.FirstName,
			"last_name":        remoteUser.LastName,
			"realm_roles":      roles,
			"role_count":       len(roles),
		})
	}
}

func listUsers(service identity.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		users, err := service.List(ctx)
		if err != nil {
			logRequestError(r.Context(), logger, "failed to list users", err)
			writeError(w, http.StatusInternalServerError, "failed to list users")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	}
}

func getUser(service identity.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		user, err := service.GetByID(ctx, id)
		if err != nil {
			respondUserError(w, r.Context(), logger, "failed to get user", err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func getUserByEmail(service identity.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		user, err := service.GetByEmail(ctx, email)
		if err != nil {
			respondUserError(w, r.Context(), logger, "failed to get user by email", err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func getUserByUsername(service identity.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		user, err := service.GetByUsername(ctx, username)
		if err != nil {
			respondUserError(w, r.Context(), logger, "failed to get user by username", err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func createUser(service identity.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input identity.CreateInput
		if err := decodeBody(w, r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		user, err := service.Create(ctx, input)
		if err != nil {
			respondUserError(w, r.Context(), logger, "failed to create user", err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func updateUser(service identity.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var input identity.UpdateInput
		if err := decodeBody(w, r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		user, err := service.Update(ctx, id, input)
		if err != nil {
			respondUserError(w, r.Context(), logger, "failed to update user", err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func deleteUser(service identity.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		user, err := service.Delete(ctx, id)
		if err != nil {
			respondUserError(w, r.Context(), logger, "failed to delete user", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "user deleted successfully",
			"user":    user,
		})
	}
}

func respondUserError(w http.ResponseWriter, ctx context.Context, logger *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, identity.ErrConflict):
		writeError(w, http.StatusConflict, "user with the same email or username already exists")
	default:
		logRequestError(ctx, logger, msg, err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func logRequestError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err, "request_id", middleware.GetReqID(ctx))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
