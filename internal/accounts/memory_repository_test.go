package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInMemoryRepositoryLinkIdentityRequiresUser(t *testing.T) {
	repo := NewInMemoryRepository(nil)

	_, err := repo.LinkIdentity(context.Background(), FederatedIdentity{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Provider:   "github",
		ExternalID: "1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestInMemoryRepositoryClaimsAreCopied(t *testing.T) {
	user := User{ID: uuid.New(), Email: "a@x.io"}
	repo := NewInMemoryRepository([]User{user})
	ctx := context.Background()

	claims := map[string]any{"login": "octocat"}
	if _, err := repo.LinkIdentity(ctx, FederatedIdentity{
		ID:         uuid.New(),
		UserID:     user.ID,
		Provider:   "github",
		ExternalID: "1",
		Claims:     claims,
	}); err != nil {
		t.Fatalf("expected identity to link: %v", err)
	}

	claims["login"] = "mutated"

	stored, err := repo.FindIdentity(ctx, "github", "1")
	if err != nil {
		t.Fatalf("expected identity to be found: %v", err)
	}
	if stored.Claims["login"] != "octocat" {
		t.Fatalf("expected stored claims to be isolated, got %v", stored.Claims["login"])
	}
}

func TestInMemoryRepositoryUpdateUserKeepsEmailIndex(t *testing.T) {
	user := User{ID: uuid.New(), Email: "old@x.io"}
	repo := NewInMemoryRepository([]User{user})
	ctx := context.Background()

	user.Email = "new@x.io"
	if _, err := repo.UpdateUser(ctx, user); err != nil {
		t.Fatalf("expected update to succeed: %v", err)
	}

	if _, err := repo.FindUserByEmail(ctx, "old@x.io"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old email to be released, got %v", err)
	}

	if _, err := repo.CreateUser(ctx, User{ID: uuid.New(), Email: "old@x.io"}); err != nil {
		t.Fatalf("expected released email to be reusable: %v", err)
	}
}

func TestInMemoryRepositoryProfileForUnknownUser(t *testing.T) {
	repo := NewInMemoryRepository(nil)

	_, err := repo.CreateJobSeekerProfile(context.Background(), JobSeekerProfile{ID: uuid.New(), UserID: uuid.New()}, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
