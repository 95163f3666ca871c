package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"scholarconnect-ws/internal/chat"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

func newResolverFixture(t *testing.T) (*Resolver, *chat.User) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&chat.User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	user := &chat.User{ID: uuid.New().String(), Name: "Amina", Role: chat.RoleStudent}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return NewResolver(testSecret, chat.NewRepo(db)), user
}

func TestResolve_RoundTrip(t *testing.T) {
	resolver, user := newResolverFixture(t)

	token, err := SignToken(testSecret, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := resolver.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != user.ID || got.Role != chat.RoleStudent {
		t.Fatalf("resolved wrong user: %+v", got)
	}
}

func TestResolve_RejectsBadSignature(t *testing.T) {
	resolver, user := newResolverFixture(t)

	token, err := SignToken("some-other-secret", user.ID, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, chat.ErrAuthenticationFailed) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestResolve_RejectsExpiredToken(t *testing.T) {
	resolver, user := newResolverFixture(t)

	token, err := SignToken(testSecret, user.ID, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, chat.ErrAuthenticationFailed) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestResolve_RejectsVanishedUser(t *testing.T) {
	resolver, _ := newResolverFixture(t)

	token, err := SignToken(testSecret, uuid.New().String(), time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, chat.ErrAuthenticationFailed) {
		t.Fatalf("a valid token for a missing user must fail, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if _, ok := BearerToken(""); ok {
		t.Fatalf("empty header must not yield a token")
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatalf("non-bearer header must not yield a token")
	}
	token, ok := BearerToken("Bearer abc.def.ghi")
	if !ok || token != "abc.def.ghi" {
		t.Fatalf("unexpected token %q", token)
	}
}
