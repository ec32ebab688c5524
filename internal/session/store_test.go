package session

import (
	"database/sql"
	"log/slog"
	"testing"

	"exocal/internal/database"
	"exocal/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T, db *sql.DB) *Store {
	t.Helper()
	s, err := NewStore(db, slog.Default())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestSetAndRead(t *testing.T) {
	s := newTestStore(t, setupTestDB(t))

	if err := s.Set("u1", model.RoleUploader, "Alice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := s.Role(); got != model.RoleUploader {
		t.Errorf("role = %q, want uploader", got)
	}
	if got := s.UserID(); got != "u1" {
		t.Errorf("user id = %q, want u1", got)
	}
	if got := s.DisplayName(); got != "Alice" {
		t.Errorf("display name = %q, want Alice", got)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, setupTestDB(t))

	s.Set("u1", model.RoleViewer, "")
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := s.Role(); got != model.RoleUnauthenticated {
		t.Errorf("role after clear = %q, want unauthenticated", got)
	}
	if got := s.UserID(); got != "" {
		t.Errorf("user id after clear = %q, want empty", got)
	}
}

func TestPersistsAcrossStores(t *testing.T) {
	db := setupTestDB(t)

	first := newTestStore(t, db)
	first.Set("u2", model.RoleViewer, "Bob")

	// A fresh store on the same database simulates a process restart.
	second := newTestStore(t, db)
	if got := second.Role(); got != model.RoleViewer {
		t.Errorf("role after reload = %q, want viewer", got)
	}
	if got := second.UserID(); got != "u2" {
		t.Errorf("user id after reload = %q, want u2", got)
	}
	if got := second.DisplayName(); got != "Bob" {
		t.Errorf("display name after reload = %q, want Bob", got)
	}
}

func TestUploaderRequiresUserID(t *testing.T) {
	s := newTestStore(t, setupTestDB(t))

	s.Set("", model.RoleUploader, "")
	if got := s.Role(); got != model.RoleViewer {
		t.Errorf("role = %q, want viewer downgrade for empty user id", got)
	}
}

func TestSubscribeNotifiedOnSetAndClear(t *testing.T) {
	s := newTestStore(t, setupTestDB(t))

	var got []model.Role
	cancel := s.Subscribe(func(r model.Role) { got = append(got, r) })

	s.Set("u1", model.RoleUploader, "")
	s.Clear()

	if len(got) != 2 || got[0] != model.RoleUploader || got[1] != model.RoleUnauthenticated {
		t.Errorf("notifications = %v, want [uploader unauthenticated]", got)
	}

	cancel()
	s.Set("u1", model.RoleViewer, "")
	if len(got) != 2 {
		t.Errorf("notified after cancel: %v", got)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	v := NewVault(db, "machine-passphrase")

	if err := v.Put(VaultEntryRefreshToken, []byte("refresh-123")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := v.Get(VaultEntryRefreshToken)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "refresh-123" {
		t.Errorf("plaintext = %q, want refresh-123", got)
	}
}

func TestVaultMissingEntry(t *testing.T) {
	v := NewVault(setupTestDB(t), "pw")

	got, err := v.Get("nothing-here")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing entry, got %q", got)
	}
}

func TestVaultWrongPassphrase(t *testing.T) {
	db := setupTestDB(t)

	if err := NewVault(db, "right").Put("secret", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := NewVault(db, "wrong").Get("secret"); err == nil {
		t.Fatal("expected decrypt failure with wrong passphrase")
	}
}

func TestVaultDelete(t *testing.T) {
	db := setupTestDB(t)
	v := NewVault(db, "pw")

	v.Put("secret", []byte("x"))
	if err := v.Delete("secret"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := v.Get("secret")
	if err != nil || got != nil {
		t.Errorf("after delete: got %q, err %v", got, err)
	}
}
