package repo

import (
	"context"
	"testing"
)

func TestListUserTokens_UnionsLegacyAndDevices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertUser(ctx, db, "u1", "tok-legacy"); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := AddDeviceToken(ctx, db, "u1", "tok-phone"); err != nil {
		t.Fatalf("AddDeviceToken: %v", err)
	}
	// Device row duplicating the legacy token must not double up.
	if err := AddDeviceToken(ctx, db, "u1", "tok-legacy"); err != nil {
		t.Fatalf("AddDeviceToken dup: %v", err)
	}

	tokens, err := ListUserTokens(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ListUserTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", tokens)
	}
	if tokens[0] != "tok-legacy" {
		t.Fatalf("legacy token should come first, got %v", tokens)
	}
}

func TestListUserTokens_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	tokens, err := ListUserTokens(context.Background(), db, "ghost")
	if err != nil {
		t.Fatalf("ListUserTokens: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("expected no tokens, got %v", tokens)
	}
}

func TestAddDeviceToken_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := AddDeviceToken(ctx, db, "u1", "tok-1"); err != nil {
			t.Fatalf("AddDeviceToken attempt %d: %v", i, err)
		}
	}

	tokens, err := ListUserTokens(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ListUserTokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "tok-1" {
		t.Fatalf("expected single token, got %v", tokens)
	}
}
