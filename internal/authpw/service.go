// Package authpw provides email/password sign-up and sign-in.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"skribe/api/internal/store"
	"skribe/api/internal/util"
)

const minPasswordLength = 8

var (
	ErrMissingFields      = errors.New("email, password, and display name are required")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(users UserStore) *Service {
	return &Service{store: users, cost: bcrypt.DefaultCost}
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates an account. Emails are compared case-insensitively.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.DisplayName)
	if email == "" || req.Password == "" || name == "" {
		return store.User{}, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return store.User{}, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return store.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		DisplayName:  name,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, ErrEmailExists
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
