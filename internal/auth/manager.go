// Package auth drives the cross-device QR login handshake: it creates
// login sessions, polls the backend for their state, materializes the
// authenticated identity and keeps it for the process session.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bloticlabs/arena-kiosk/internal/authstate"
	"github.com/bloticlabs/arena-kiosk/internal/backend"
	"github.com/bloticlabs/arena-kiosk/internal/models"
	"github.com/bloticlabs/arena-kiosk/internal/quota"
	"github.com/bloticlabs/arena-kiosk/internal/telemetry"
)

const (
	tableSessions      = "qr_login_sessions"
	tableProfiles      = "profiles"
	tableUsers         = "users"
	tableRegistrations = "event_registrations"

	rpcCreateSession = "create_qr_session"
)

// EventType identifies the terminal transition of a login session.
type EventType int

const (
	// EventAuthenticated carries the materialized identity.
	EventAuthenticated EventType = iota
	// EventFailed reports a hard failure during the success procedure.
	EventFailed
	// EventExpired reports that the session's TTL elapsed or the
	// backend no longer knows the session.
	EventExpired
)

func (t EventType) String() string {
	switch t {
	case EventAuthenticated:
		return "authenticated"
	case EventFailed:
		return "failed"
	default:
		return "expired"
	}
}

// Event is a terminal state transition posted to the Events channel.
// At most one event fires per session lifetime.
type Event struct {
	Type     EventType
	Identity *models.Identity
	Err      error
}

// Options configure a Manager.
type Options struct {
	// SessionTTL is passed to the backend on session creation.
	SessionTTL time.Duration

	// PollInterval is the status check period.
	PollInterval time.Duration

	// PortalURL is the public host encoded into QR login URLs.
	PortalURL string
}

// Manager owns the QR login state machine. At most one polling loop is
// active per manager; starting a new one retires any predecessor.
//
// Consumers drain Events from a single goroutine (typically the
// UI-affine context); the polling goroutine posts terminal transitions
// there instead of calling back across threads.
type Manager struct {
	q     backend.Querier
	quota *quota.Resolver
	state *authstate.Store
	opts  Options

	events chan Event

	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	gen       uint64

	identityMu sync.RWMutex
	identity   *models.Identity
}

// NewManager creates a session manager. All collaborators are injected;
// the manager holds no global state.
func NewManager(q backend.Querier, resolver *quota.Resolver, state *authstate.Store, opts Options) *Manager {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	return &Manager{
		q:      q,
		quota:  resolver,
		state:  state,
		opts:   opts,
		events: make(chan Event, 1),
	}
}

// Events returns the channel carrying terminal session transitions.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// CreateSession submits a new QR login session to the backend and
// returns its id for QR encoding. Creation failures surface to the
// caller; there is no auto-retry at this layer.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	sessionID := uuid.NewString()
	deviceID := DeviceID()

	args := map[string]any{
		"p_session_id":         sessionID,
		"p_desktop_device_id":  deviceID,
		"p_expiration_minutes": int(m.opts.SessionTTL.Minutes()),
	}

	if err := m.q.Rpc(ctx, rpcCreateSession, args, nil); err != nil {
		return "", fmt.Errorf("failed to create login session: %w", err)
	}

	m.mu.Lock()
	m.sessionID = sessionID
	m.mu.Unlock()

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)
	log.Info().Str("session_id", sessionID).Str("device_id", deviceID).Msg("QR login session created")

	return sessionID, nil
}

// LoginURL renders the QR payload for a session id.
func (m *Manager) LoginURL(sessionID string) string {
	return strings.TrimRight(m.opts.PortalURL, "/") + "/login?session=" + url.QueryEscape(sessionID)
}

// StartPolling begins the periodic status check for the current
// session. Calling it again first retires any running loop: restart is
// idempotent, never additive.
func (m *Manager) StartPolling(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++

	sessionID := m.sessionID
	if sessionID == "" {
		m.mu.Unlock()
		log.Warn().Msg("no login session to poll")
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	gen := m.gen
	m.mu.Unlock()

	telemetry.GetMetrics().ActivePollingLoops.Add(ctx, 1)
	go m.pollLoop(pollCtx, sessionID, gen)

	log.Debug().Str("session_id", sessionID).Dur("interval", m.opts.PollInterval).Msg("polling started")
}

// StopPolling cancels the active loop. Idempotent, safe from any
// goroutine including the events consumer: it signals and returns, it
// never waits on the polling goroutine.
func (m *Manager) StopPolling() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		log.Debug().Msg("polling stopped")
	}
	m.gen++
	m.mu.Unlock()
}

// pollLoop runs one status check per tick. Checks run inline, so a slow
// backend call cannot stack ticks: the ticker simply drops the ones
// that elapse meanwhile.
func (m *Manager) pollLoop(ctx context.Context, sessionID string, gen uint64) {
	defer telemetry.GetMetrics().ActivePollingLoops.Add(context.WithoutCancel(ctx), -1)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev, terminal := m.check(ctx, sessionID)
			if !terminal {
				continue
			}
			m.emit(ctx, gen, ev)
			return
		}
	}
}

// check performs one status read. Returns the terminal event and true
// when polling must end; transient query failures are logged and left
// for the next tick.
func (m *Manager) check(ctx context.Context, sessionID string) (Event, bool) {
	metrics := telemetry.GetMetrics()
	metrics.PollTicksTotal.Add(ctx, 1)

	var sessions []models.LoginSession
	err := m.q.Select(ctx, tableSessions, backend.Filters{"session_id": sessionID}, &sessions)
	if err != nil {
		if ctx.Err() != nil {
			return Event{}, false
		}
		metrics.PollErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).Str("session_id", sessionID).Msg("status check failed, retrying next tick")
		return Event{}, false
	}

	// The backend no longer knows the session: treat as expiry.
	if len(sessions) == 0 {
		log.Info().Str("session_id", sessionID).Msg("login session no longer exists")
		return Event{Type: EventExpired}, true
	}

	session := sessions[0]
	status := session.Status()

	log.Debug().
		Str("session_id", sessionID).
		Stringer("status", status).
		Time("expires_at", session.ExpiresAt).
		Msg("login session polled")

	switch {
	case status == models.StatusAuthenticated && session.UserID != nil:
		identity, err := m.completeLogin(ctx, *session.UserID)
		if err != nil {
			metrics.LoginsFailedTotal.Add(ctx, 1)
			return Event{Type: EventFailed, Err: err}, true
		}
		metrics.LoginsSucceededTotal.Add(ctx, 1)
		return Event{Type: EventAuthenticated, Identity: identity}, true

	case status == models.StatusExpired,
		status == models.StatusPending && session.Expired(time.Now().UTC()):
		metrics.SessionsExpiredTotal.Add(ctx, 1)
		log.Info().Str("session_id", sessionID).Msg("login session expired")
		return Event{Type: EventExpired}, true

	default:
		// Pending or scanned and still inside the TTL: keep waiting.
		return Event{}, false
	}
}

// completeLogin is the authentication-success procedure: resolve the
// identity records, compute quota, adopt and persist the identity.
func (m *Manager) completeLogin(ctx context.Context, userID uuid.UUID) (*models.Identity, error) {
	src, err := resolveIdentitySource(ctx, m.q, userID)
	if err != nil {
		return nil, err
	}
	if !src.resolved() {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, userID)
	}

	identity := buildIdentity(userID, src, time.Now().UTC())
	identity.PlaysRemaining = m.quota.Compute(ctx, userID)

	m.Adopt(&identity)

	if err := m.state.Save(authstate.Record{
		UserID:      identity.UserID,
		Username:    identity.DisplayName,
		PhoneNumber: identity.Phone,
		LastLogin:   identity.LastLogin,
	}); err != nil {
		// Auto-login is best effort; the live session is unaffected.
		log.Warn().Err(err).Msg("failed to persist auth record")
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("user", identity.DisplayName).
		Int("plays", identity.PlaysRemaining).
		Msg("authentication succeeded")

	return &identity, nil
}

// emit retires the loop's generation and posts the terminal event.
// A loop superseded by StartPolling or StopPolling never emits, which
// keeps events at most-once per session.
func (m *Manager) emit(ctx context.Context, gen uint64, ev Event) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.cancel = nil
	m.gen++
	m.sessionID = ""
	m.mu.Unlock()

	select {
	case m.events <- ev:
	case <-ctx.Done():
		// Consumer went away with the context; drop the event.
		log.Debug().Stringer("event", ev.Type).Msg("terminal event dropped, context cancelled")
	}
}

// Adopt installs the identity snapshot, e.g. after an auto-login
// restore.
func (m *Manager) Adopt(identity *models.Identity) {
	m.identityMu.Lock()
	m.identity = identity
	m.identityMu.Unlock()
}

// CurrentIdentity returns a copy of the identity snapshot, or nil when
// unauthenticated. Safe for concurrent use with SyncPlays.
func (m *Manager) CurrentIdentity() *models.Identity {
	m.identityMu.RLock()
	defer m.identityMu.RUnlock()

	if m.identity == nil {
		return nil
	}
	clone := *m.identity
	return &clone
}

// Authenticated reports whether an identity is installed.
func (m *Manager) Authenticated() bool {
	return m.CurrentIdentity() != nil
}

// SyncPlays recomputes the plays-remaining snapshot from live
// entitlement records. Returns false when unauthenticated.
func (m *Manager) SyncPlays(ctx context.Context) (int, bool) {
	ident := m.CurrentIdentity()
	if ident == nil {
		return 0, false
	}

	plays := m.quota.Compute(ctx, ident.UserID)
	m.setPlays(plays)

	return plays, true
}

// ConsumePlay spends one play for the authenticated identity and
// refreshes the local snapshot from the server-derived total.
func (m *Manager) ConsumePlay(ctx context.Context) (int, bool) {
	ident := m.CurrentIdentity()
	if ident == nil {
		return 0, false
	}

	newCount, ok := m.quota.Consume(ctx, ident.UserID)
	if !ok {
		return 0, false
	}

	m.setPlays(newCount)

	return newCount, true
}

func (m *Manager) setPlays(plays int) {
	m.identityMu.Lock()
	if m.identity != nil {
		m.identity.PlaysRemaining = plays
	}
	m.identityMu.Unlock()
}

// Logout stops any polling, drops the identity and clears the
// persisted record.
func (m *Manager) Logout(ctx context.Context) error {
	m.StopPolling()

	m.mu.Lock()
	m.sessionID = ""
	m.mu.Unlock()

	m.identityMu.Lock()
	m.identity = nil
	m.identityMu.Unlock()

	if err := m.state.Clear(); err != nil {
		return err
	}

	log.Info().Msg("logged out")

	return nil
}
