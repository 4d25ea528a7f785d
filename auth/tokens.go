package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// User pairs a user id with the bcrypt hash of their bearer token.
type User struct {
	ID        string
	TokenHash string
}

// TokenAuthenticator checks bearer tokens against bcrypt hashes.
type TokenAuthenticator struct {
	users []User
}

func NewTokenAuthenticator(users []User) *TokenAuthenticator {
	return &TokenAuthenticator{users: users}
}

// Authenticate returns the session of the user whose token hash matches.
func (a *TokenAuthenticator) Authenticate(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthorized
	}
	for _, u := range a.users {
		if bcrypt.CompareHashAndPassword([]byte(u.TokenHash), []byte(token)) == nil {
			return Session{UserID: u.ID}, nil
		}
	}
	return Session{}, ErrUnauthorized
}

// HashToken returns the bcrypt hash to store as a user's token_hash.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}
