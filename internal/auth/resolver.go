package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scholarconnect-ws/internal/chat"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Resolver turns a signed bearer credential into a user record. It is a
// pure lookup: invalid signature, expiry, and a vanished user all come
// back as chat.ErrAuthenticationFailed.
type Resolver struct {
	secret []byte
	repo   *chat.Repo
}

func NewResolver(secret string, repo *chat.Repo) *Resolver {
	return &Resolver{secret: []byte(secret), repo: repo}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (*chat.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, chat.ErrAuthenticationFailed
	}

	user, err := r.repo.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, chat.ErrAuthenticationFailed
	}
	return user, nil
}

// SignToken issues a credential for the user id. The account service
// normally does this; the helper keeps dev setups and tests honest
// against the same claims layout.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken extracts the credential from an Authorization header. The
// header-based REST variant is the degenerate case of the same
// resolution the socket layer performs.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
