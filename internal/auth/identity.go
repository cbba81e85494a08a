package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bloticlabs/arena-kiosk/internal/backend"
	"github.com/bloticlabs/arena-kiosk/internal/models"
)

// ErrIdentityNotFound is returned when an authenticated session points
// at a user with neither a profile nor a registration record.
var ErrIdentityNotFound = errors.New("no identity record for user")

// fallbackDisplayName is shown when no source carries a usable name.
const fallbackDisplayName = "Arena User"

// identitySource holds whichever backend records resolved for a user.
// Registration data reflects the more recent real-world transaction, so
// its fields take precedence over profile fields when both exist.
type identitySource struct {
	profile      *models.Profile
	registration *models.Registration
}

func (s identitySource) resolved() bool {
	return s.profile != nil || s.registration != nil
}

// resolveIdentitySource fetches the user's profile and most recent
// registration. Either may be absent; both absent is reported as
// ErrIdentityNotFound by buildIdentity's caller via resolved().
func resolveIdentitySource(ctx context.Context, q backend.Querier, userID uuid.UUID) (identitySource, error) {
	var src identitySource

	var profiles []models.Profile
	if err := q.Select(ctx, tableProfiles, backend.Filters{"id": userID.String()}, &profiles); err != nil {
		return src, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if len(profiles) > 0 {
		src.profile = &profiles[0]
	}

	var regs []models.Registration
	if err := q.Select(ctx, tableRegistrations, backend.Filters{"user_id": userID.String()}, &regs); err != nil {
		return src, fmt.Errorf("failed to fetch registrations: %w", err)
	}
	if len(regs) > 0 {
		sort.Slice(regs, func(i, j int) bool {
			return regs[i].RegisteredAt.After(regs[j].RegisteredAt)
		})
		src.registration = &regs[0]
	}

	return src, nil
}

// buildIdentity maps a resolved source onto an Identity. Pure: given
// the same source and time it always produces the same result.
func buildIdentity(userID uuid.UUID, src identitySource, now time.Time) models.Identity {
	ident := models.Identity{
		UserID:      userID,
		DisplayName: fallbackDisplayName,
		LastLogin:   now,
	}

	if src.profile != nil {
		if name := src.profile.DisplayName(); name != "" {
			ident.DisplayName = name
		}
		ident.Email = src.profile.Email
		ident.Phone = src.profile.Phone
	}

	if src.registration != nil {
		if src.registration.FullName != "" {
			ident.DisplayName = src.registration.FullName
		}
		if src.registration.Email != "" {
			ident.Email = src.registration.Email
		}
		if src.registration.Phone != "" {
			ident.Phone = src.registration.Phone
		}
	}

	return ident
}
