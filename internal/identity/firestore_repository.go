package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const usersCollection = "users"

type firestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository creates a new Firestore-backed user repository.
func NewFirestoreRepository(client *firestore.Client) Repository {
	return &firestoreRepository{client: client}
}

func (r *firestoreRepository) users() *firestore.CollectionRef {
	return r.client.Collection(usersCollection)
}

func (r *firestoreRepository) Create(ctx context.Context, user User) (User, error) {
	if taken, err := r.ExistsByEmail(ctx, user.Email); err != nil {
		return User{}, err
	} else if taken {
		return User{}, fmt.Errorf("email %s: %w", user.Email, ErrConflict)
	}
	if taken, err := r.ExistsByUsername(ctx, user.Username); err != nil {
		return User{}, err
	} else if taken {
		return User{}, fmt.Errorf("username %s: %w", user.Username, ErrConflict)
	}

	if _, err := r.users().Doc(user.ID).Create(ctx, user); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return User{}, ErrConflict
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *firestoreRepository) GetByID(ctx context.Context, id string) (User, error) {
	doc, err := r.users().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}

	var user User
	if err := doc.DataTo(&user); err != nil {
		return User{}, fmt.Errorf("unmarshal user: %w", err)
	}
	user.ID = doc.Ref.ID
	return user, nil
}

func (r *firestoreRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getByField(ctx, "email", strings.TrimSpace(email))
}

func (r *firestoreRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	return r.getByField(ctx, "user_name", strings.TrimSpace(username))
}

func (r *firestoreRepository) getByField(ctx context.Context, field, value string) (User, error) {
	iter := r.users().Where(field, "==", value).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}

	var user User
	if err := doc.DataTo(&user); err != nil {
		return User{}, fmt.Errorf("unmarshal user: %w", err)
	}
	user.ID = doc.Ref.ID
	return user, nil
}

func (r *firestoreRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *firestoreRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *firestoreRepository) List(ctx context.Context) ([]User, error) {
	iter := r.users().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var users []User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var user User
		if err := doc.DataTo(&user); err != nil {
			return nil, fmt.Errorf("unmarshal user: %w", err)
		}
		user.ID = doc.Ref.ID
		users = append(users, user)
	}
	return users, nil
}

func (r *firestoreRepository) Update(ctx context.Context, user User) (User, error) {
	user.UpdatedAt = time.Now().UTC()

	docRef := r.users().Doc(user.ID)
	if _, err := docRef.Get(ctx); status.Code(err) == codes.NotFound {
		return User{}, ErrNotFound
	} else if err != nil {
		return User{}, err
	}

	if _, err := docRef.Set(ctx, user); err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (r *firestoreRepository) Delete(ctx context.Context, id string) error {
	docRef := r.users().Doc(id)
	if _, err := docRef.Get(ctx); status.Code(err) == codes.NotFound {
		return ErrNotFound
	} else if err != nil {
		return err
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
