package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueLocalToken(secret, Identity{UserID: "user-1", Name: "Alice"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	identity, err := NewLocalVerifier(secret).Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", identity.UserID)
	}
	if identity.Name != "Alice" {
		t.Fatalf("expected Alice, got %q", identity.Name)
	}
}

func TestLocalTokenWrongSecret(t *testing.T) {
	token, err := IssueLocalToken([]byte("secret-a"), Identity{UserID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	_, err = NewLocalVerifier([]byte("secret-b")).Verify(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLocalTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueLocalToken(secret, Identity{UserID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	_, err = NewLocalVerifier(secret).Verify(context.Background(), token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestLocalTokenGarbage(t *testing.T) {
	_, err := NewLocalVerifier([]byte("secret")).Verify(context.Background(), "not-a-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSocketTokenRoundTrip(t *testing.T) {
	secret := []byte("socket-secret")
	token, err := IssueSocketToken(secret, Identity{UserID: "user-2", Name: "Bob"}, 5*time.Minute)
	if err != nil {
		t.Fatalf("issue socket token: %v", err)
	}

	identity, err := ParseSocketToken(secret, token)
	if err != nil {
		t.Fatalf("parse socket token: %v", err)
	}
	if identity.UserID != "user-2" || identity.Name != "Bob" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestSocketTokenMissingSubject(t *testing.T) {
	secret := []byte("socket-secret")
	token, err := IssueSocketToken(secret, Identity{}, 5*time.Minute)
	if err != nil {
		t.Fatalf("issue socket token: %v", err)
	}

	_, err = ParseSocketToken(secret, token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
