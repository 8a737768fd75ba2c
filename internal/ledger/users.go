package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

func (r *Repo) CreateUser(ctx context.Context, in NewUser) (User, error) {
	u := User{
		ID:           r.newID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    r.now().UTC(),
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users(id, username, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *Repo) UserByEmail(ctx context.Context, email string) (User, error) {
	return r.userBy(ctx, `email = $1`, email)
}

func (r *Repo) UserByID(ctx context.Context, id string) (User, error) {
	return r.userBy(ctx, `id = $1`, id)
}

func (r *Repo) userBy(ctx context.Context, cond string, arg any) (User, error) {
	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id::text, username, email, password_hash, role, created_at
		FROM users WHERE `+cond, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
