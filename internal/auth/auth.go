package auth

import (
	"context"
	"errors"
	"time"

	"github.com/hansol-club/stockfest/internal/game"
	"github.com/hansol-club/stockfest/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// ErrWrongPassword is returned when the supplied password does not match the
// stored one.
var ErrWrongPassword = errors.New("wrong password")

// Service handles player login and token verification.
//
// Passwords are compared as plaintext. The deployed game never hashed them
// and the stored rows are shared with it, so hashing here would lock every
// existing player out. Known weakness, kept deliberately; see DESIGN.md.
type Service struct {
	store  game.Store
	secret []byte
}

// NewService creates an auth service signing tokens with secret.
func NewService(store game.Store, secret string) *Service {
	return &Service{store: store, secret: []byte(secret)}
}

// Login verifies credentials and returns the user with a signed token.
func (s *Service) Login(ctx context.Context, name, password string) (*models.User, string, error) {
	user, err := s.store.GetUserByName(ctx, name)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", game.ErrUserNotFound
	}
	if user.Password != password {
		return nil, "", ErrWrongPassword
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"name":    user.Name,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, "", err
	}
	return user, tokenString, nil
}

// UserIDFromToken extracts the user id from a signed token.
func (s *Service) UserIDFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid token claims")
	}
	return userID, nil
}
