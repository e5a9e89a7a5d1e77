// Package credstore persists the saved login and the last authenticated
// account snapshot in an embedded BoltDB database.
//
// Design Philosophy:
// - BoltDB chosen for ACID properties and embedded nature
// - All operations are atomic and error-safe
// - Absence of a saved login is a value (nil), not an error
package credstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/opd-ai/go-xc-watch/internal/xtream"
	"github.com/opd-ai/go-xc-watch/pkg/config"
)

var (
	bucketCredentials = []byte("credentials") // Saved login
	bucketAccount     = []byte("account")     // Last authenticated account snapshot
)

// Single-record buckets use a fixed key.
var recordKey = []byte("current")

// SavedLogin is the persisted login plus the account information returned
// by the backend when it last authenticated.
type SavedLogin struct {
	Credentials xtream.Credentials `json:"credentials"`
	Account     xtream.AccountInfo `json:"account"`
	SavedAt     time.Time          `json:"saved_at"`
}

// Store handles all credential persistence with proper error handling and
// logging.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// New opens the credential database under cfg.Directory, creating buckets
// as needed.
func New(cfg *config.StoreConfig, logger *slog.Logger) (*Store, error) {
	dbPath := filepath.Join(cfg.Directory, "go-xc-watch.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", dbPath, err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initializeBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	logger.Info("Credential store initialized", "db_path", dbPath)

	return store, nil
}

func (s *Store) initializeBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketCredentials, bucketAccount}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", string(bucket), err)
			}
		}
		return nil
	})
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	s.logger.Info("Closing credential store")
	return s.db.Close()
}

// Get returns the saved login, or nil when none has been saved.
func (s *Store) Get() (*SavedLogin, error) {
	var login *SavedLogin

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCredentials).Get(recordKey)
		if data == nil {
			return nil
		}

		var saved SavedLogin
		if err := json.Unmarshal(data, &saved); err != nil {
			return fmt.Errorf("failed to unmarshal saved login: %w", err)
		}

		if acct := tx.Bucket(bucketAccount).Get(recordKey); acct != nil {
			if err := json.Unmarshal(acct, &saved.Account); err != nil {
				return fmt.Errorf("failed to unmarshal account snapshot: %w", err)
			}
		}

		login = &saved
		return nil
	})
	if err != nil {
		return nil, err
	}

	return login, nil
}

// Set stores the login and the account snapshot returned for it.
func (s *Store) Set(creds xtream.Credentials, account xtream.AccountInfo) error {
	if creds.ServerURL == "" || creds.Username == "" {
		return fmt.Errorf("saved login must have server URL and username")
	}

	login := SavedLogin{
		Credentials: creds,
		Account:     account,
		SavedAt:     time.Now().UTC(),
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(login)
		if err != nil {
			return fmt.Errorf("failed to marshal saved login: %w", err)
		}
		if err := tx.Bucket(bucketCredentials).Put(recordKey, data); err != nil {
			return fmt.Errorf("failed to store saved login: %w", err)
		}

		acct, err := json.Marshal(account)
		if err != nil {
			return fmt.Errorf("failed to marshal account snapshot: %w", err)
		}
		if err := tx.Bucket(bucketAccount).Put(recordKey, acct); err != nil {
			return fmt.Errorf("failed to store account snapshot: %w", err)
		}

		s.logger.Debug("Saved login stored",
			"server_url", creds.ServerURL,
			"username", creds.Username)

		return nil
	})
}

// UpdateAccount refreshes the stored account snapshot without touching the
// credentials. A no-op when no login is saved.
func (s *Store) UpdateAccount(account xtream.AccountInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketCredentials).Get(recordKey) == nil {
			return nil
		}

		data, err := json.Marshal(account)
		if err != nil {
			return fmt.Errorf("failed to marshal account snapshot: %w", err)
		}
		return tx.Bucket(bucketAccount).Put(recordKey, data)
	})
}

// Clear removes the saved login and account snapshot.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCredentials).Delete(recordKey); err != nil {
			return fmt.Errorf("failed to clear saved login: %w", err)
		}
		if err := tx.Bucket(bucketAccount).Delete(recordKey); err != nil {
			return fmt.Errorf("failed to clear account snapshot: %w", err)
		}

		s.logger.Debug("Saved login cleared")
		return nil
	})
}
