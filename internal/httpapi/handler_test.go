package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ecocollect/identity-service/internal/identity"
	"github.com/ecocollect/identity-service/internal/keycloak"
	"github.com/ecocollect/identity-service/internal/usersync"
)

type fakeService struct {
	identity.Service

	getByIDFn func(context.Context, string) (identity.User, error)
	createFn  func(context.Context, identity.CreateInput) (identity.User, error)
	deleteFn  func(context.Context, string) (identity.User, error)
}

func (f *fakeService) GetByID(ctx context.Context, id string) (identity.User, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeService) Create(ctx context.Context, input identity.CreateInput) (identity.User, error) {
	return f.createFn(ctx, input)
}

func (f *fakeService) Delete(ctx context.Context, id string) (identity.User, error) {
	return f.deleteFn(ctx, id)
}

type fakeSyncer struct {
	runFn func(context.Context) (usersync.Result, error)
}

func (f *fakeSyncer) Run(ctx context.Context) (usersync.Result, error) {
	return f.runFn(ctx)
}

type fakeDirectory struct {
	findByEmailFn func(context.Context, string) (keycloak.User, error)
	rolesFn       func(context.Context, string) ([]string, error)
}

func (f *fakeDirectory) FindByEmail(ctx context.Context, email string) (keycloak.User, error) {
	return f.findByEmailFn(ctx, email)
}

func (f *fakeDirectory) EffectiveRealmRoles(ctx context.Context, userID string) ([]string, error) {
	return f.rolesFn(ctx, userID)
}

func newTestRouter(service identity.Service, syncer Synchronizer, directory RoleDirectory) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	RegisterRoutes(r, service, syncer, directory, logger)
	return r
}

func TestTriggerSync_ReturnsResult(t *testing.T) {
	syncer := &fakeSyncer{
		runFn: func(context.Context) (usersync.Result, error) {
			return usersync.Result{Created: 2, Updated: 1, Skipped: 4}, nil
		},
	}
	router := newTestRouter(&fakeService{}, syncer, &fakeDirectory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/sync", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Message string          `json:"message"`
		Result  usersync.Result `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Message == "" || body.Result.Created != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestTriggerSync_FailureIs500(t *testing.T) {
	syncer := &fakeSyncer{
		runFn: func(context.Context) (usersync.Result, error) {
			return usersync.Result{}, errors.New("provider unreachable")
		},
	}
	router := newTestRouter(&fakeService{}, syncer, &fakeDirectory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/sync", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestDebugRoles_NotFoundRemotely(t *testing.T) {
	directory := &fakeDirectory{
		findByEmailFn: func(context.Context, string) (keycloak.User, error) {
			return keycloak.User{}, keycloak.ErrNotFound
		},
	}
	router := newTestRouter(&fakeService{}, &fakeSyncer{}, directory)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/roles/a@x.com", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDebugRoles_ReturnsRoleList(t *testing.T) {
	directory := &fakeDirectory{
		findByEmailFn: func(_ context.Context, email string) (keycloak.User, error) {
			return keycloak.User{ID: "kc-1", Email: email, Username: "alice"}, nil
		},
		rolesFn: func(context.Context, string) ([]string, error) {
			return []string{"admin", "employe"}, nil
		},
	}
	router := newTestRouter(&fakeService{}, &fakeSyncer{}, directory)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/roles/a@x.com", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		KeycloakUserID string   `json:"keycloak_user_id"`
		RealmRoles     []string `json:"realm_roles"`
		RoleCount      int      `json:"role_count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.KeycloakUserID != "kc-1" || body.RoleCount != 2 || len(body.RealmRoles) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	service := &fakeService{
		getByIDFn: func(context.Context, string) (identity.User, error) {
			return identity.User{}, identity.ErrNotFound
		},
	}
	router := newTestRouter(service, &fakeSyncer{}, &fakeDirectory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/unknown", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateUser_Created(t *testing.T) {
	service := &fakeService{
		createFn: func(_ context.Context, input identity.CreateInput) (identity.User, error) {
			return identity.User{ID: "u-1", Username: input.Username, Email: input.Email, Role: identity.RoleUser}, nil
		},
	}
	router := newTestRouter(service, &fakeSyncer{}, &fakeDirectory{})

	payload := strings.NewReader(`{"user_name":"alice","email":"a@x.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/users", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var user identity.User
	if err := json.NewDecoder(rec.Body).Decode(&user); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if user.ID != "u-1" || user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestCreateUser_ConflictIs409(t *testing.T) {
	service := &fakeService{
		createFn: func(context.Context, identity.CreateInput) (identity.User, error) {
			return identity.User{}, identity.ErrConflict
		},
	}
	router := newTestRouter(service, &fakeSyncer{}, &fakeDirectory{})

	payload := strings.NewReader(`{"user_name":"alice","email":"a@x.com"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/users", payload))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateUser_BadBodyIs400(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeSyncer{}, &fakeDirectory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteUser_ReturnsDeletedUser(t *testing.T) {
	service := &fakeService{
		deleteFn: func(_ context.Context, id string) (identity.User, error) {
			return identity.User{ID: id, Email: "a@x.com"}, nil
		},
	}
	router := newTestRouter(service, &fakeSyncer{}, &fakeDirectory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/users/u-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
