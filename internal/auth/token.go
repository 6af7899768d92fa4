package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/supabase-community/supabase-go"
)

// Identity is the authenticated caller as resolved from a bearer token.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// SupabaseVerifier validates access tokens against the Supabase auth API
// using the service role key.
type SupabaseVerifier struct {
	client *supabase.Client
}

func NewSupabaseVerifier(url, serviceKey string) (*SupabaseVerifier, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseVerifier{client: client}, nil
}

func (v *SupabaseVerifier) Verify(_ context.Context, token string) (Identity, error) {
	// WithToken chains the caller's token; the service role key only
	// authenticates this server to the auth API.
	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	identity := Identity{UserID: user.ID.String(), Name: user.Email, Email: user.Email}
	if name, ok := user.UserMetadata["full_name"].(string); ok && name != "" {
		identity.Name = name
	}
	return identity, nil
}

// LocalVerifier validates HS256 tokens signed with a shared secret. Used in
// development and self-hosted deployments without Supabase.
type LocalVerifier struct {
	secret []byte
}

func NewLocalVerifier(secret []byte) *LocalVerifier {
	return &LocalVerifier{secret: secret}
}

func (v *LocalVerifier) Verify(_ context.Context, token string) (Identity, error) {
	return parseHS256(v.secret, token)
}

// IssueLocalToken mints an HS256 token for local development logins.
func IssueLocalToken(secret []byte, identity Identity, ttl time.Duration) (string, error) {
	return issueHS256(secret, identity, ttl)
}

// IssueSocketToken mints a short-lived token handed out by negotiate and
// redeemed once on the websocket upgrade. Same shape as a local token, but
// its TTL is measured in minutes.
func IssueSocketToken(secret []byte, identity Identity, ttl time.Duration) (string, error) {
	return issueHS256(secret, identity, ttl)
}

func ParseSocketToken(secret []byte, token string) (Identity, error) {
	return parseHS256(secret, token)
}

func issueHS256(secret []byte, identity Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   identity.UserID,
		"name":  identity.Name,
		"email": identity.Email,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func parseHS256(secret []byte, token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return Identity{UserID: sub, Name: name, Email: email}, nil
}
