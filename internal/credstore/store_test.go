package credstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/go-xc-watch/internal/xtream"
	"github.com/opd-ai/go-xc-watch/pkg/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Suppress logs during tests
	}))

	store, err := New(&config.StoreConfig{Directory: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testCredentials() xtream.Credentials {
	return xtream.Credentials{
		ServerURL:   "http://provider.example.com:8080",
		Username:    "alice",
		Password:    "secret",
		DisplayName: "Home",
	}
}

func TestNewCreatesDatabase(t *testing.T) {
	tempDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	store, err := New(&config.StoreConfig{Directory: tempDir}, logger)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tempDir, "go-xc-watch.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestGetReturnsNilWhenEmpty(t *testing.T) {
	store := testStore(t)

	login, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if login != nil {
		t.Errorf("Expected nil login from empty store, got %+v", login)
	}
}

func TestSetAndGet(t *testing.T) {
	store := testStore(t)

	expires := time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)
	account := xtream.AccountInfo{
		Authenticated:  true,
		Status:         "Active",
		MaxConnections: 2,
		ExpiresAt:      &expires,
	}

	if err := store.Set(testCredentials(), account); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	login, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if login == nil {
		t.Fatal("Expected saved login, got nil")
	}
	if login.Credentials.Username != "alice" {
		t.Errorf("Expected username alice, got %s", login.Credentials.Username)
	}
	if !login.Account.Authenticated {
		t.Error("Expected authenticated account")
	}
	if login.Account.ExpiresAt == nil || !login.Account.ExpiresAt.Equal(expires) {
		t.Errorf("Expected expiry %v, got %v", expires, login.Account.ExpiresAt)
	}
	if login.SavedAt.IsZero() {
		t.Error("Expected SavedAt to be set")
	}
}

func TestSetRequiresServerAndUsername(t *testing.T) {
	store := testStore(t)

	err := store.Set(xtream.Credentials{Username: "alice"}, xtream.AccountInfo{})
	if err == nil {
		t.Error("Expected error for missing server URL")
	}

	err = store.Set(xtream.Credentials{ServerURL: "http://x"}, xtream.AccountInfo{})
	if err == nil {
		t.Error("Expected error for missing username")
	}
}

func TestSetOverwrites(t *testing.T) {
	store := testStore(t)

	if err := store.Set(testCredentials(), xtream.AccountInfo{Authenticated: true}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := testCredentials()
	second.Username = "bob"
	if err := store.Set(second, xtream.AccountInfo{Authenticated: true}); err != nil {
		t.Fatalf("Second set failed: %v", err)
	}

	login, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if login.Credentials.Username != "bob" {
		t.Errorf("Expected latest login bob, got %s", login.Credentials.Username)
	}
}

func TestUpdateAccount(t *testing.T) {
	store := testStore(t)

	// No-op without a saved login.
	if err := store.UpdateAccount(xtream.AccountInfo{Authenticated: true}); err != nil {
		t.Fatalf("UpdateAccount on empty store failed: %v", err)
	}
	login, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if login != nil {
		t.Error("UpdateAccount must not create a login")
	}

	if err := store.Set(testCredentials(), xtream.AccountInfo{Authenticated: true, ActiveConns: 0}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.UpdateAccount(xtream.AccountInfo{Authenticated: true, ActiveConns: 1}); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}

	login, err = store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if login.Account.ActiveConns != 1 {
		t.Errorf("Expected refreshed account snapshot, got %+v", login.Account)
	}
}

func TestClear(t *testing.T) {
	store := testStore(t)

	if err := store.Set(testCredentials(), xtream.AccountInfo{Authenticated: true}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	login, err := store.Get()
	if err != nil {
		t.Fatalf("Get after clear failed: %v", err)
	}
	if login != nil {
		t.Errorf("Expected nil login after clear, got %+v", login)
	}

	// Clearing an empty store is a no-op.
	if err := store.Clear(); err != nil {
		t.Fatalf("Second clear failed: %v", err)
	}
}
