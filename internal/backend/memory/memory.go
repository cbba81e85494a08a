// Package memory implements backend.Querier against in-memory tables.
// This implementation is for testing only - data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bloticlabs/arena-kiosk/internal/backend"
	"github.com/bloticlabs/arena-kiosk/internal/models"
)

// RpcCall records one remote-procedure invocation.
type RpcCall struct {
	Name string
	Args map[string]any
}

// Store holds the backend tables the core reads and writes.
type Store struct {
	mu sync.RWMutex

	sessions      []models.LoginSession
	profiles      []models.Profile
	registrations []models.Registration
	users         []models.User

	rpcCalls []RpcCall

	tableErr  map[string]error
	rpcErr    error
	updateErr error

	conflictOnce bool
}

// NewStore creates an empty in-memory backend.
func NewStore() *Store {
	return &Store{tableErr: make(map[string]error)}
}

// PutSession adds or replaces a login session row by session_id.
func (s *Store) PutSession(session models.LoginSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == session.SessionID {
			s.sessions[i] = session
			return
		}
	}
	s.sessions = append(s.sessions, session)
}

// SetSessionState transitions a session the way the phone-side client
// would, setting status and, for authenticated sessions, the user id.
func (s *Store) SetSessionState(sessionID, status string, userID *uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == sessionID {
			s.sessions[i].RawStatus = status
			s.sessions[i].UserID = userID
			return
		}
	}
}

// RemoveSession deletes a session row, simulating backend cleanup.
func (s *Store) RemoveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sessions[:0]
	for _, session := range s.sessions {
		if session.SessionID != sessionID {
			kept = append(kept, session)
		}
	}
	s.sessions = kept
}

// PutProfile adds a profile row.
func (s *Store) PutProfile(profile models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, profile)
}

// PutRegistration adds an event registration row.
func (s *Store) PutRegistration(reg models.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations = append(s.registrations, reg)
}

// PutUser adds a user row.
func (s *Store) PutUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
}

// Registration returns a copy of a registration row by id.
func (s *Store) Registration(id uuid.UUID) *models.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.registrations {
		if reg.ID == id {
			clone := reg
			return &clone
		}
	}
	return nil
}

// RpcCalls returns the recorded remote-procedure invocations.
func (s *Store) RpcCalls() []RpcCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RpcCall(nil), s.rpcCalls...)
}

// FailTable makes every Select on the table return err. A nil err
// clears the fault.
func (s *Store) FailTable(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.tableErr, table)
		return
	}
	s.tableErr[table] = err
}

// FailRpc makes every Rpc call return err.
func (s *Store) FailRpc(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcErr = err
}

// FailUpdate makes every Update return err.
func (s *Store) FailUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

// ConflictNextUpdate makes the next Update match zero rows, simulating
// an interleaved write stealing the record.
func (s *Store) ConflictNextUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictOnce = true
}

// Select implements backend.Querier.
func (s *Store) Select(ctx context.Context, table string, filters backend.Filters, dest any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.tableErr[table]; err != nil {
		return err
	}

	switch out := dest.(type) {
	case *[]models.LoginSession:
		var rows []models.LoginSession
		for _, row := range s.sessions {
			if matchSession(row, filters) {
				rows = append(rows, row)
			}
		}
		*out = rows
	case *[]models.Profile:
		var rows []models.Profile
		for _, row := range s.profiles {
			if matchProfile(row, filters) {
				rows = append(rows, row)
			}
		}
		*out = rows
	case *[]models.Registration:
		var rows []models.Registration
		for _, row := range s.registrations {
			if matchRegistration(row, filters) {
				rows = append(rows, row)
			}
		}
		*out = rows
	case *[]models.User:
		var rows []models.User
		for _, row := range s.users {
			if matchUser(row, filters) {
				rows = append(rows, row)
			}
		}
		*out = rows
	default:
		return fmt.Errorf("unsupported dest type for table %s", table)
	}

	return nil
}

// Insert implements backend.Querier.
func (s *Store) Insert(ctx context.Context, table string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch row := record.(type) {
	case models.LoginSession:
		s.sessions = append(s.sessions, row)
	case models.Registration:
		s.registrations = append(s.registrations, row)
	default:
		return fmt.Errorf("unsupported record type for table %s", table)
	}

	return nil
}

// Update implements backend.Querier for the registrations table, which
// is the only table the core ever writes.
func (s *Store) Update(ctx context.Context, table string, filters backend.Filters, fields map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return 0, s.updateErr
	}
	if s.conflictOnce {
		s.conflictOnce = false
		return 0, nil
	}
	if table != "event_registrations" {
		return 0, fmt.Errorf("unsupported update table %s", table)
	}

	matched := 0
	for i := range s.registrations {
		if !matchRegistration(s.registrations[i], filters) {
			continue
		}
		matched++
		if v, ok := fields["games_remaining"]; ok {
			if n, ok := v.(int); ok {
				s.registrations[i].GamesRemaining = n
			}
		}
	}

	return matched, nil
}

// Rpc implements backend.Querier. create_qr_session materializes a
// pending session row the way the backend function does.
func (s *Store) Rpc(ctx context.Context, name string, args map[string]any, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rpcCalls = append(s.rpcCalls, RpcCall{Name: name, Args: args})

	if s.rpcErr != nil {
		return s.rpcErr
	}

	if name == "create_qr_session" {
		sessionID, _ := args["p_session_id"].(string)
		deviceID, _ := args["p_desktop_device_id"].(string)
		minutes, _ := args["p_expiration_minutes"].(int)

		now := time.Now().UTC()
		s.sessions = append(s.sessions, models.LoginSession{
			ID:              uuid.New(),
			SessionID:       sessionID,
			RawStatus:       "pending",
			CreatedAt:       now,
			ExpiresAt:       now.Add(time.Duration(minutes) * time.Minute),
			DesktopDeviceID: deviceID,
		})
	}

	return nil
}

var _ backend.Querier = (*Store)(nil)

func matchSession(row models.LoginSession, filters backend.Filters) bool {
	for col, val := range filters {
		switch col {
		case "session_id":
			if row.SessionID != val {
				return false
			}
		case "id":
			if row.ID.String() != val {
				return false
			}
		case "status":
			if row.RawStatus != val {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchProfile(row models.Profile, filters backend.Filters) bool {
	for col, val := range filters {
		switch col {
		case "id":
			if row.ID.String() != val {
				return false
			}
		case "email":
			if row.Email != val {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchRegistration(row models.Registration, filters backend.Filters) bool {
	for col, val := range filters {
		switch col {
		case "id":
			if row.ID.String() != val {
				return false
			}
		case "user_id":
			if row.UserID.String() != val {
				return false
			}
		case "payment_status":
			if row.PaymentStatus != val {
				return false
			}
		case "games_remaining":
			n, err := strconv.Atoi(val)
			if err != nil || row.GamesRemaining != n {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchUser(row models.User, filters backend.Filters) bool {
	for col, val := range filters {
		switch col {
		case "id":
			if row.ID.String() != val {
				return false
			}
		default:
			return false
		}
	}
	return true
}
