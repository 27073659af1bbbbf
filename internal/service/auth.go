package service

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/budget-service/internal/auth"
	"github.com/Dan9191/budget-service/internal/models"
)

// AuthService checks the configured user's password and issues tokens
type AuthService struct {
	user   models.User
	tokens *auth.TokenManager
	log    *logrus.Logger
}

// NewAuthService initializes a new auth service
func NewAuthService(user models.User, tokens *auth.TokenManager, log *logrus.Logger) *AuthService {
	return &AuthService{user: user, tokens: tokens, log: log}
}

// Login authenticates a user and returns a JWT token with its expiry
func (s *AuthService) Login(username, password string) (string, time.Time, error) {
	if s.user.PasswordHash == "" || username != s.user.Username {
		return "", time.Time{}, ErrInvalidLogin
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(s.user.PasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidLogin
	}

	token, expiresAt, err := s.tokens.Issue(username)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue token: %w", err)
	}

	s.log.Infof("User logged in: %s", username)
	return token, expiresAt, nil
}

// HashPassword returns the bcrypt hash to configure as AUTH_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
