package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/ledger"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("username, email and password are required")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const bcryptCost = 10

type UserStore interface {
	CreateUser(ctx context.Context, in ledger.NewUser) (ledger.User, error)
	UserByEmail(ctx context.Context, email string) (ledger.User, error)
}

type Service struct {
	Users            UserStore
	Issuer           *Issuer
	AllowAdminSignup bool
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (ledger.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	if in.Username == "" || email == "" || in.Password == "" {
		return ledger.User{}, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ledger.User{}, ErrInvalidEmail
	}

	role := ledger.RoleUser
	if in.Role == ledger.RoleAdmin && s.AllowAdminSignup {
		role = ledger.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return ledger.User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.Users.CreateUser(ctx, ledger.NewUser{
		Username:     in.Username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
}

// Login returns a signed token for valid credentials. Unknown email and wrong
// password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, ledger.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", ledger.User{}, ErrMissingFields
	}
	u, err := s.Users.UserByEmail(ctx, email)
	if errors.Is(err, ledger.ErrNotFound) {
		return "", ledger.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", ledger.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ledger.User{}, ErrInvalidCredentials
	}
	token, err := s.Issuer.Issue(u)
	if err != nil {
		return "", ledger.User{}, err
	}
	return token, u, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
