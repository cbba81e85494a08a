package authstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNoSavedLogin is returned by Load when no usable record exists.
var ErrNoSavedLogin = errors.New("no saved login")

const recordFile = "auth.json"

// Record is the durable snapshot of the last successful login. It is a
// cache of identity only, never of quota: plays remaining are always
// re-derived from live entitlement records.
type Record struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	PhoneNumber string    `json:"phone_number"`
	LastLogin   time.Time `json:"last_login"`
}

// Store persists the auth record on the local filesystem.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir.
// If baseDir is empty, uses ~/.arena-kiosk/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".arena-kiosk")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("auth state store initialized")

	return &Store{baseDir: baseDir}, nil
}

// Save overwrites the persisted record atomically.
func (s *Store) Save(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth record: %w", err)
	}

	// Write to temp file first
	recordPath := filepath.Join(s.baseDir, recordFile)
	tempPath := recordPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write auth record: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, recordPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save auth record: %w", err)
	}

	log.Debug().Str("user_id", rec.UserID.String()).Msg("auth record saved")

	return nil
}

// Load returns the last saved record. A missing file returns
// ErrNoSavedLogin; a corrupt or incomplete record is treated the same
// way, so startup never fails on bad local state.
func (s *Store) Load() (*Record, error) {
	recordPath := filepath.Join(s.baseDir, recordFile)

	data, err := os.ReadFile(recordPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSavedLogin
		}
		return nil, fmt.Errorf("failed to read auth record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Msg("persisted auth record is corrupt, ignoring")
		return nil, ErrNoSavedLogin
	}

	if rec.UserID == uuid.Nil {
		log.Warn().Msg("persisted auth record has no user id, ignoring")
		return nil, ErrNoSavedLogin
	}

	return &rec, nil
}

// Clear removes the persisted record. Already-absent records are fine.
func (s *Store) Clear() error {
	recordPath := filepath.Join(s.baseDir, recordFile)

	if err := os.Remove(recordPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove auth record: %w", err)
	}

	log.Debug().Msg("auth record cleared")

	return nil
}
