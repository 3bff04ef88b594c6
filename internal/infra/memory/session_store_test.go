package memory

import (
	"context"
	"errors"
	"testing"

	"live-session-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if err := store.Reserve(ctx, "482913"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Reserve(ctx, "482913"); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	store.Put("482913", nil)
	if _, ok := store.Get("482913"); !ok {
		t.Fatalf("expected session present")
	}
	if got := len(store.List()); got != 1 {
		t.Fatalf("expected 1 session, got %d", got)
	}

	store.Release(ctx, "482913")
	if _, ok := store.Get("482913"); ok {
		t.Fatalf("expected session removed")
	}
	if err := store.Reserve(ctx, "482913"); err != nil {
		t.Fatalf("expected code free after release, got %v", err)
	}
}
