package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hansol-club/stockfest/internal/game"
	"github.com/hansol-club/stockfest/internal/testutil"
)

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := NewService(store, "test-secret")

	created, err := store.CreateUser(ctx, "alice", "1234", 10000)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "Success", username: "alice", password: "1234"},
		{name: "WrongPassword", username: "alice", password: "4321", wantErr: ErrWrongPassword},
		{name: "UnknownUser", username: "bob", password: "1234", wantErr: game.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, token, err := svc.Login(ctx, tt.username, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.ID != created.ID {
				t.Errorf("user id %s, want %s", user.ID, created.ID)
			}

			// The token round-trips back to the same user.
			userID, err := svc.UserIDFromToken(token)
			if err != nil {
				t.Fatalf("verify token: %v", err)
			}
			if userID != created.ID {
				t.Errorf("token user id %s, want %s", userID, created.ID)
			}
		})
	}
}

func TestService_UserIDFromToken_Invalid(t *testing.T) {
	store := testutil.NewMemStore()
	svc := NewService(store, "test-secret")

	if _, err := svc.UserIDFromToken("not-a-token"); err == nil {
		t.Error("expected error for a malformed token")
	}

	// A token signed with a different secret must be rejected.
	other := NewService(store, "other-secret")
	if _, err := store.CreateUser(context.Background(), "alice", "1234", 0); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, token, err := other.Login(context.Background(), "alice", "1234")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.UserIDFromToken(token); err == nil {
		t.Error("expected error for a token signed with another secret")
	}
}
