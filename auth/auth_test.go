package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	if _, ok := (Static{}).CurrentSession(ctx); ok {
		t.Error("empty user id must be unauthenticated")
	}
	s, ok := Static{UserID: "U1"}.CurrentSession(ctx)
	if !ok || s.UserID != "U1" {
		t.Errorf("got %+v, %v", s, ok)
	}
}

func TestContextProvider(t *testing.T) {
	ctx := context.Background()
	var p Provider = ContextProvider{}

	if _, ok := p.CurrentSession(ctx); ok {
		t.Error("bare context must be unauthenticated")
	}
	if _, ok := p.CurrentSession(WithSession(ctx, Session{})); ok {
		t.Error("session without user id must be unauthenticated")
	}
	s, ok := p.CurrentSession(WithSession(ctx, Session{UserID: "U2"}))
	if !ok || s.UserID != "U2" {
		t.Errorf("got %+v, %v", s, ok)
	}
}

func TestTokenAuthenticator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-1"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a := NewTokenAuthenticator([]User{{ID: "U1", TokenHash: string(hash)}})

	s, err := a.Authenticate("secret-1")
	if err != nil || s.UserID != "U1" {
		t.Errorf("Authenticate() = %+v, %v", s, err)
	}

	for _, bad := range []string{"", "secret-2"} {
		if _, err := a.Authenticate(bad); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Authenticate(%q) error = %v, want ErrUnauthorized", bad, err)
		}
	}
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("tok")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("tok")) != nil {
		t.Error("hash does not verify")
	}
	if _, err := HashToken(""); err == nil {
		t.Error("expected error for empty token")
	}
}
