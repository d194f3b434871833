package store

import (
	"context"
	"testing"

	"github.com/erazemk/povratna/internal/db"
	"github.com/erazemk/povratna/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleDriver, nil)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleDriver {
		t.Errorf("expected role 'driver', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestCreateUserRules(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, database, "alice", "hash", model.RoleAdmin, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateUser(ctx, database, "alice", "hash", model.RoleAdmin, nil); !IsConflict(err) {
		t.Errorf("duplicate username: expected ConflictError, got %v", err)
	}
	if _, err := CreateUser(ctx, database, "bob", "hash", "superuser", nil); !IsValidation(err) {
		t.Errorf("unknown role: expected ValidationError, got %v", err)
	}
	missing := int64(4242)
	if _, err := CreateUser(ctx, database, "carol", "hash", model.RoleDriver, &missing); !IsNotFound(err) {
		t.Errorf("unknown home location: expected NotFoundError, got %v", err)
	}
}

func TestUserHomeLocation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	site, _ := CreateLocation(ctx, database, model.LocationSite, 1, "Site 1")
	user, err := CreateUser(ctx, database, "driver", "hash", model.RoleDriver, &site.ID)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.HomeLocationID == nil || *user.HomeLocationID != site.ID {
		t.Errorf("expected home location %d, got %v", site.ID, user.HomeLocationID)
	}

	if err := UpdateUser(ctx, database, user.ID, model.RoleClerk, nil); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleClerk || got.HomeLocationID != nil {
		t.Errorf("unexpected user after update %+v", got)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin, nil)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleDriver, nil)
	CreateUser(ctx, database, "b", "hash", model.RoleManager, nil)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleDriver, nil)
	if err := DeleteUser(ctx, database, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := DeleteUser(ctx, database, user.ID); !IsNotFound(err) {
		t.Errorf("second delete: expected NotFoundError, got %v", err)
	}

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}

	// The username is free again once the old account is deleted.
	if _, err := CreateUser(ctx, database, "deleteme", "hash", model.RoleDriver, nil); err != nil {
		t.Errorf("recreating deleted username: %v", err)
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleDriver, nil)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}
