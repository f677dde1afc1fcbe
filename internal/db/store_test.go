package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwulff/transcribe/internal/api"
)

// createTestStore creates a store over an in-memory SQLite database.
func createTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	rawDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rawDB.SetMaxOpenConns(1)

	store, err := newStore(rawDB)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, rawDB
}

func testUser() api.User {
	return api.User{
		ID:         "u-1",
		Email:      "ann@example.com",
		Username:   api.StringPtr("ann"),
		IsActive:   true,
		IsVerified: true,
		CreatedAt:  "2024-01-02T03:04:05Z",
	}
}

func TestLoadCredentialsEmpty(t *testing.T) {
	store, _ := createTestStore(t)

	tok, user, err := store.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if tok != "" || user != nil {
		t.Errorf("got (%q, %+v), want empty", tok, user)
	}
}

func TestSaveAndLoadCredentials(t *testing.T) {
	store, _ := createTestStore(t)

	if err := store.SaveCredentials("tok-1", testUser()); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	tok, user, err := store.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("token = %q, want %q", tok, "tok-1")
	}
	if user == nil || user.Email != "ann@example.com" || user.Username == nil || *user.Username != "ann" {
		t.Errorf("user = %+v", user)
	}

	// Overwrite replaces both keys.
	u := testUser()
	u.IsVerified = false
	if err := store.SaveCredentials("tok-2", u); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	tok, user, _ = store.LoadCredentials()
	if tok != "tok-2" || user.IsVerified {
		t.Errorf("after overwrite got (%q, verified=%v)", tok, user.IsVerified)
	}
}

func TestSaveCredentialsRejectsEmptyToken(t *testing.T) {
	store, _ := createTestStore(t)
	if err := store.SaveCredentials("", testUser()); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestClearCredentials(t *testing.T) {
	store, rawDB := createTestStore(t)

	store.SaveCredentials("tok-1", testUser())
	if err := store.ClearCredentials(); err != nil {
		t.Fatalf("ClearCredentials: %v", err)
	}

	var n int
	rawDB.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&n)
	if n != 0 {
		t.Errorf("rows after clear = %d, want 0", n)
	}

	// Clearing twice is fine.
	if err := store.ClearCredentials(); err != nil {
		t.Errorf("second ClearCredentials: %v", err)
	}
}

func TestLoadCredentialsHalfPair(t *testing.T) {
	store, rawDB := createTestStore(t)

	now := float64(time.Now().Unix())
	rawDB.Exec(`INSERT INTO credentials (key, value, updatedAt) VALUES ('auth_token', 'tok-1', ?)`, now)

	tok, user, err := store.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if tok != "" || user != nil {
		t.Errorf("half pair should read as no session, got (%q, %+v)", tok, user)
	}

	var n int
	rawDB.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&n)
	if n != 0 {
		t.Errorf("half pair should be cleared, %d rows left", n)
	}
}

func TestLoadCredentialsCorruptUser(t *testing.T) {
	store, rawDB := createTestStore(t)

	now := float64(time.Now().Unix())
	rawDB.Exec(`INSERT INTO credentials (key, value, updatedAt) VALUES ('auth_token', 'tok-1', ?)`, now)
	rawDB.Exec(`INSERT INTO credentials (key, value, updatedAt) VALUES ('auth_user', '{not json', ?)`, now)

	tok, user, err := store.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if tok != "" || user != nil {
		t.Errorf("corrupt user should read as no session, got (%q, %+v)", tok, user)
	}
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transcribe.sqlite")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.SaveCredentials("tok-1", testUser()); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	store.Close()

	// Reopen and read back.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	tok, _, err := store.LoadCredentials()
	if err != nil || tok != "tok-1" {
		t.Errorf("after reopen got (%q, %v)", tok, err)
	}
}
