package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

const (
	hashIterations = 100000
	saltBytes      = 16
)

// RegistrationError indicates invalid or conflicting signup input.
type RegistrationError struct {
	Msg string
}

func (e RegistrationError) Error() string { return e.Msg }

// LoginError indicates a failed authentication attempt. Unknown users and
// wrong passwords produce the same message.
type LoginError struct {
	Msg string
}

func (e LoginError) Error() string { return e.Msg }

var errBadCredentials = LoginError{Msg: "invalid username or password"}

// Service provides user registration and password authentication.
type Service struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// HashPassword derives a PBKDF2-HMAC-SHA256 digest over a fresh 16-byte hex
// salt, stored as "hashhex$salthex".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hashWithSalt(password, hex.EncodeToString(salt)), nil
}

func hashWithSalt(password, saltHex string) string {
	key := pbkdf2.Key([]byte(password), []byte(saltHex), hashIterations, sha256.Size, sha256.New)
	return hex.EncodeToString(key) + "$" + saltHex
}

// VerifyPassword checks a password against a stored "hashhex$salthex" value
// in constant time.
func VerifyPassword(password, stored string) bool {
	_, saltHex, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(hashWithSalt(password, saltHex)), []byte(stored))
}

// Register creates a user after validating the signup input.
func (s Service) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if len(username) < 3 {
		return domain.User{}, RegistrationError{Msg: "username must be at least 3 characters"}
	}
	if !strings.Contains(email, "@") {
		return domain.User{}, RegistrationError{Msg: "valid email is required"}
	}
	if len(password) < 6 {
		return domain.User{}, RegistrationError{Msg: "password must be at least 6 characters"}
	}
	exists, err := s.Repo.UserExists(ctx, username, email)
	if err != nil {
		return domain.User{}, err
	}
	if exists {
		return domain.User{}, RegistrationError{Msg: "username or email already exists"}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	id, err := s.Repo.InsertUser(ctx, u)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	return u, nil
}

// Authenticate verifies a username-or-email plus password pair.
func (s Service) Authenticate(ctx context.Context, login, password string) (domain.User, error) {
	u, err := s.Repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, errBadCredentials
		}
		return domain.User{}, err
	}
	if !u.IsActive {
		return domain.User{}, LoginError{Msg: "account is inactive"}
	}
	if !VerifyPassword(password, u.PasswordHash) {
		return domain.User{}, errBadCredentials
	}
	return u, nil
}
