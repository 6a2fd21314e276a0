package identity

import (
	"context"
	"errors"
	"time"
)

// Role is the local role assigned to a user. Roles are owned by the identity
// provider; the local value is a projection resolved from realm role names.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleUser     Role = "user"
)

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleUser:
		return true
	}
	return false
}

var (
	// ErrNotFound indicates the requested user does not exist locally.
	ErrNotFound = errors.New("user not found")
	// ErrConflict indicates a user with the same email or username already exists.
	ErrConflict = errors.New("user already exists")
)

// User represents the persisted user document stored in Firestore.
// It is the local projection of an identity owned by the provider.
type User struct {
	ID              string    `json:"id" firestore:"id"`
	Username        string    `json:"user_name" firestore:"user_name"`
	Email           string    `json:"email" firestore:"email"`
	FirstName       string    `json:"first_name" firestore:"first_name"`
	LastName        string    `json:"last_name" firestore:"last_name"`
	Role            Role      `json:"role" firestore:"role"`
	Active          bool      `json:"is_active" firestore:"is_active"`
	ProfileImage    string    `json:"profile_image,omitempty" firestore:"profile_image"`
	FaceAuthEnabled bool      `json:"face_auth_enabled" firestore:"face_auth_enabled"`
	Driver          bool      `json:"driver" firestore:"driver"`
	CreatedAt       time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" firestore:"updated_at"`
}

// CreateInput describes the fields accepted when creating a user.
type CreateInput struct {
	Username  string `json:"user_name"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
	Active    bool   `json:"is_active"`
}

// UpdateInput describes the allowed fields during a partial update.
// Nil pointers leave the corresponding field untouched.
type UpdateInput struct {
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	Role            *Role   `json:"role"`
	Active          *bool   `json:"is_active"`
	ProfileImage    *string `json:"profile_image"`
	FaceAuthEnabled *bool   `json:"face_auth_enabled"`
	Driver          *bool   `json:"driver"`
}

// Repository defines the interface for user data access.
// Implementations enforce uniqueness on email and username.
type Repository interface {
	Create(ctx context.Context, user User) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user User) (User, error)
	Delete(ctx context.Context, id string) error
}

// Registrar is the slice of the identity provider's administrative API the
// user service needs for best-effort remote writes.
type Registrar interface {
	CreateUser(ctx context.Context, username, email, firstName, lastName, temporaryPassword string) error
	UpdateProfile(ctx context.Context, username, firstName, lastName string) error
	DeleteByEmail(ctx context.Context, email string) error
}

// Service defines the user service interface.
type Service interface {
	List(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, input CreateInput) (User, error)
	Update(ctx context.Context, id string, input UpdateInput) (User, error)
	Delete(ctx context.Context, id string) (User, error)
}
