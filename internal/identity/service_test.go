package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeRegistrar struct {
	createUserFn    func(ctx context.Context, username, email, firstName, lastName, temporaryPassword string) error
	updateProfileFn func(ctx context.Context, username, firstName, lastName string) error
	deleteByEmailFn func(ctx context.Context, email string) error
}

func (f *fakeRegistrar) CreateUser(ctx context.Context, username, email, firstName, lastName, temporaryPassword string) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, username, email, firstName, lastName, temporaryPassword)
	}
	return nil
}

func (f *fakeRegistrar) UpdateProfile(ctx context.Context, username, firstName, lastName string) error {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, username, firstName, lastName)
	}
	return nil
}

func (f *fakeRegistrar) DeleteByEmail(ctx context.Context, email string) error {
	if f.deleteByEmailFn != nil {
		return f.deleteByEmailFn(ctx, email)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceCreate_RegistersWithProvider(t *testing.T) {
	var gotUsername, gotPassword string
	registrar := &fakeRegistrar{
		createUserFn: func(_ context.Context, username, email, _, _, temporaryPassword string) error {
			gotUsername = username
			gotPassword = temporaryPassword
			return nil
		},
	}

	svc := NewService(NewMemoryRepository(), registrar, testLogger())
	user, err := svc.Create(context.Background(), CreateInput{
		Username: "alice", Email: "a@x.com", FirstName: "Alice", Active: true,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if gotUsername != "alice" {
		t.Fatalf("expected provider registration for alice, got %q", gotUsername)
	}
	if gotPassword != defaultTemporaryPassword {
		t.Fatalf("expected the default temporary credential, got %q", gotPassword)
	}
	if user.ID == "" || user.Role != RoleUser || user.CreatedAt.IsZero() {
		t.Fatalf("unexpected user defaults: %+v", user)
	}
}

func TestServiceCreate_ProviderFailureDoesNotBlockLocalWrite(t *testing.T) {
	registrar := &fakeRegistrar{
		createUserFn: func(context.Context, string, string, string, string, string) error {
			return errors.New("keycloak unreachable")
		},
	}

	repo := NewMemoryRepository()
	svc := NewService(repo, registrar, testLogger())
	if _, err := svc.Create(context.Background(), CreateInput{Username: "bob", Email: "b@x.com"}); err != nil {
		t.Fatalf("local create must proceed despite provider failure: %v", err)
	}

	if _, err := repo.GetByEmail(context.Background(), "b@x.com"); err != nil {
		t.Fatalf("expected user to be stored locally: %v", err)
	}
}

func TestServiceCreate_RejectsDuplicateEmail(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &fakeRegistrar{}, testLogger())

	if _, err := svc.Create(context.Background(), CreateInput{Username: "alice", Email: "a@x.com"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), CreateInput{Username: "alice2", Email: "a@x.com"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestServiceUpdate_PushesProfileBestEffort(t *testing.T) {
	pushed := false
	registrar := &fakeRegistrar{
		updateProfileFn: func(_ context.Context, username, firstName, lastName string) error {
			pushed = true
			if username != "carol" || firstName != "Caroline" {
				t.Errorf("unexpected profile push: %s %s %s", username, firstName, lastName)
			}
			return nil
		},
	}

	repo := NewMemoryRepository()
	svc := NewService(repo, registrar, testLogger())
	created, err := svc.Create(context.Background(), CreateInput{Username: "carol", Email: "c@x.com", FirstName: "Carol"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	firstName := "Caroline"
	updated, err := svc.Update(context.Background(), created.ID, UpdateInput{FirstName: &firstName})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.FirstName != "Caroline" {
		t.Fatalf("first name not applied: %+v", updated)
	}
	if !pushed {
		t.Fatalf("expected a profile push to the provider")
	}
}

func TestServiceUpdate_RemotePushFailureKeepsLocalWrite(t *testing.T) {
	registrar := &fakeRegistrar{
		updateProfileFn: func(context.Context, string, string, string) error {
			return errors.New("keycloak unreachable")
		},
	}

	repo := NewMemoryRepository()
	svc := NewService(repo, registrar, testLogger())
	created, _ := svc.Create(context.Background(), CreateInput{Username: "dave", Email: "d@x.com"})

	lastName := "Doe"
	if _, err := svc.Update(context.Background(), created.ID, UpdateInput{LastName: &lastName}); err != nil {
		t.Fatalf("local update must not be rolled back on remote failure: %v", err)
	}

	user, _ := repo.GetByID(context.Background(), created.ID)
	if user.LastName != "Doe" {
		t.Fatalf("local write lost: %+v", user)
	}
}

func TestServiceUpdate_RejectsUnknownRole(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &fakeRegistrar{}, testLogger())
	created, _ := svc.Create(context.Background(), CreateInput{Username: "erin", Email: "e@x.com"})

	bogus := Role("superuser")
	if _, err := svc.Update(context.Background(), created.ID, UpdateInput{Role: &bogus}); err == nil {
		t.Fatalf("expected invalid role to be rejected")
	}
}

func TestServiceDelete_LocalFirstThenRemoteBestEffort(t *testing.T) {
	var deletedEmail string
	registrar := &fakeRegistrar{
		deleteByEmailFn: func(_ context.Context, email string) error {
			deletedEmail = email
			return errors.New("keycloak unreachable")
		},
	}

	repo := NewMemoryRepository()
	svc := NewService(repo, registrar, testLogger())
	created, _ := svc.Create(context.Background(), CreateInput{Username: "frank", Email: "f@x.com"})

	user, err := svc.Delete(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("remote failure must not fail the delete: %v", err)
	}
	if user.Email != "f@x.com" || deletedEmail != "f@x.com" {
		t.Fatalf("expected remote delete attempt for f@x.com")
	}

	if _, err := repo.GetByID(context.Background(), created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("local record must be gone, got %v", err)
	}
}

func TestServiceDelete_NotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &fakeRegistrar{}, testLogger())
	if _, err := svc.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
