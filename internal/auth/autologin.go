package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bloticlabs/arena-kiosk/internal/authstate"
	"github.com/bloticlabs/arena-kiosk/internal/backend"
	"github.com/bloticlabs/arena-kiosk/internal/models"
	"github.com/bloticlabs/arena-kiosk/internal/quota"
	"github.com/bloticlabs/arena-kiosk/internal/telemetry"
)

// AutoLogin restores the last authenticated identity at startup from
// the persisted record, re-validating it against the backend so a
// deleted or stale user never silently logs back in.
type AutoLogin struct {
	q     backend.Querier
	quota *quota.Resolver
	state *authstate.Store
}

// NewAutoLogin creates an auto-login resolver.
func NewAutoLogin(q backend.Querier, resolver *quota.Resolver, state *authstate.Store) *AutoLogin {
	return &AutoLogin{q: q, quota: resolver, state: state}
}

// TryRestore returns a fully populated identity, or nil. Every failure
// mode — no record, corrupt record, user no longer resolvable, backend
// unreachable — degrades to nil so the caller falls back to a fresh QR
// session. It never returns an error.
func (a *AutoLogin) TryRestore(ctx context.Context) *models.Identity {
	rec, err := a.state.Load()
	if err != nil {
		if !errors.Is(err, authstate.ErrNoSavedLogin) {
			log.Warn().Err(err).Msg("could not read persisted auth record")
		}
		return nil
	}

	now := time.Now().UTC()

	// The users table is checked first; profiles and registrations are
	// the same fallback chain the QR success procedure walks.
	var users []models.User
	if err := a.q.Select(ctx, tableUsers, backend.Filters{"id": rec.UserID.String()}, &users); err != nil {
		log.Warn().Err(err).Msg("auto-login validation failed")
		return nil
	}

	var identity models.Identity
	if len(users) > 0 {
		user := users[0]
		identity = models.Identity{
			UserID:      user.ID,
			DisplayName: firstNonEmpty(user.Username, rec.Username, fallbackDisplayName),
			Email:       user.Email,
			Phone:       firstNonEmpty(user.PhoneNumber, rec.PhoneNumber),
			LastLogin:   now,
		}
	} else {
		src, err := resolveIdentitySource(ctx, a.q, rec.UserID)
		if err != nil || !src.resolved() {
			log.Info().Str("user_id", rec.UserID.String()).Msg("persisted user no longer resolvable")
			return nil
		}
		identity = buildIdentity(rec.UserID, src, now)
	}

	identity.PlaysRemaining = a.quota.Compute(ctx, rec.UserID)

	telemetry.GetMetrics().AutoLoginsTotal.Add(ctx, 1)
	log.Info().
		Str("user_id", identity.UserID.String()).
		Str("user", identity.DisplayName).
		Int("plays", identity.PlaysRemaining).
		Msg("auto-login restored")

	return &identity
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
