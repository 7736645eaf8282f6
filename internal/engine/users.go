package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"officedesk/internal/domain"
	"officedesk/internal/events"
	"officedesk/internal/repo"
)

// ErrBadCredentials reports a failed login without revealing whether
// the username exists.
var ErrBadCredentials = errors.New("invalid username or password")

// UserCreateOptions are parameters for creating a user.
type UserCreateOptions struct {
	Username string
	Password string
	Role     string
	ActorID  string
}

func validRole(role string) error {
	switch role {
	case "admin", "member":
		return nil
	}
	return fmt.Errorf("invalid role %q", role)
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	opts.Username = strings.TrimSpace(opts.Username)
	if opts.Username == "" {
		return domain.User{}, errors.New("username is required")
	}
	if len(opts.Password) < 8 {
		return domain.User{}, errors.New("password must be at least 8 characters")
	}
	if opts.Role == "" {
		opts.Role = "member"
	}
	if err := validRole(opts.Role); err != nil {
		return domain.User{}, err
	}
	if _, err := e.Repo.GetUserByUsername(ctx, opts.Username); err == nil {
		return domain.User{}, fmt.Errorf("username %q already taken", opts.Username)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	now := e.nowStr()
	u := domain.User{
		ID:             uuid.NewString(),
		Username:       opts.Username,
		PasswordDigest: string(digest),
		Role:           opts.Role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", "user", u.ID, opts.ActorID, events.EventPayload{"username": u.Username, "role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UserUpdateOptions encapsulates allowed updates. Nil fields are left
// unchanged.
type UserUpdateOptions struct {
	ID       string
	Role     *string
	Password *string
	ActorID  string
}

func (e Engine) UpdateUser(ctx context.Context, opts UserUpdateOptions) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, opts.ID)
	if err != nil {
		return u, err
	}
	if opts.Role != nil {
		if err := validRole(*opts.Role); err != nil {
			return u, err
		}
		u.Role = *opts.Role
	}
	if opts.Password != nil {
		if len(*opts.Password) < 8 {
			return u, errors.New("password must be at least 8 characters")
		}
		digest, err := bcrypt.GenerateFromPassword([]byte(*opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return u, err
		}
		u.PasswordDigest = string(digest)
	}
	u.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return u, err
	}
	if err := e.Events.Append(ctx, tx, "user.updated", "", "user", u.ID, opts.ActorID, events.EventPayload{"role": u.Role}); err != nil {
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	return u, nil
}

func (e Engine) DeleteUser(ctx context.Context, id, actorID string) error {
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteUser(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.deleted", "", "user", id, actorID, events.EventPayload{"username": u.Username}); err != nil {
		return err
	}
	return tx.Commit()
}

// Authenticate verifies a username/password pair.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrBadCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordDigest), []byte(password)) != nil {
		return domain.User{}, ErrBadCredentials
	}
	return u, nil
}

// CreateAPIKey mints a key for a user and returns the plaintext secret
// once. Only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := uuid.NewString() + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashSecret(secret),
		CreatedAt: e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "", "apikey", key.ID, actorID, events.EventPayload{"user_id": userID}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}
