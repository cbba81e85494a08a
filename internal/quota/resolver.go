// Package quota derives the authoritative plays-remaining count for a
// user from live entitlement records and consumes plays one at a time.
package quota

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bloticlabs/arena-kiosk/internal/backend"
	"github.com/bloticlabs/arena-kiosk/internal/models"
	"github.com/bloticlabs/arena-kiosk/internal/telemetry"
)

const (
	tableRegistrations = "event_registrations"

	// consumeAttempts bounds the re-pick loop when a conditional
	// decrement loses to an interleaved write.
	consumeAttempts = 3
)

// errConflict signals that the expected-value predicate of a decrement
// matched no rows, meaning another writer got there first.
var errConflict = errors.New("entitlement record changed underneath decrement")

// Resolver computes and consumes plays-remaining quota.
type Resolver struct {
	q backend.Querier
}

// NewResolver creates a quota resolver over the given backend querier.
func NewResolver(q backend.Querier) *Resolver {
	return &Resolver{q: q}
}

// Compute returns the total plays remaining for the user: the sum of
// games_remaining across all paid registrations. It is fail-safe to
// zero — no valid records, or any query failure, yields 0 and never an
// error, so callers can always treat the result as a spendable count.
func (r *Resolver) Compute(ctx context.Context, userID uuid.UUID) int {
	regs, err := r.paidRegistrations(ctx, userID)
	if err != nil {
		telemetry.GetMetrics().QuotaErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("quota query failed, treating as zero")
		return 0
	}

	total := 0
	for _, reg := range regs {
		total += reg.GamesRemaining
	}

	log.Debug().Str("user_id", userID.String()).Int("plays", total).Int("records", len(regs)).Msg("quota computed")

	return total
}

// Consume spends exactly one play. It re-queries the user's paid
// registrations, picks the record with the largest remaining count, and
// issues a single conditional decrement against that record: the update
// carries both the record id and the expected current count, so an
// interleaved write makes it match zero rows instead of corrupting the
// balance. Lost races re-pick and retry with exponential backoff.
//
// Returns the freshly recomputed total and whether a play was consumed.
// ok=false means no positive entitlement existed or the backend could
// not be reached; either way the caller sees a count, never an error.
func (r *Resolver) Consume(ctx context.Context, userID uuid.UUID) (int, bool) {
	op := func() (bool, error) {
		regs, err := r.paidRegistrations(ctx, userID)
		if err != nil {
			return false, backoff.Permanent(err)
		}

		pick := pickLargest(regs)
		if pick == nil {
			// No positive entitlement: rejection, not an error.
			return false, nil
		}

		matched, err := r.q.Update(ctx, tableRegistrations,
			backend.Filters{
				"id":              pick.ID.String(),
				"games_remaining": strconv.Itoa(pick.GamesRemaining),
			},
			map[string]any{"games_remaining": pick.GamesRemaining - 1},
		)
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if matched == 0 {
			return false, errConflict
		}

		log.Info().
			Str("user_id", userID.String()).
			Str("registration_id", pick.ID.String()).
			Int("remaining", pick.GamesRemaining-1).
			Msg("play consumed")

		return true, nil
	}

	consumed, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(consumeAttempts),
	)
	if err != nil {
		telemetry.GetMetrics().QuotaErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("consume failed")
		return 0, false
	}
	if !consumed {
		return 0, false
	}

	telemetry.GetMetrics().PlaysConsumedTotal.Add(ctx, 1)

	return r.Compute(ctx, userID), true
}

func (r *Resolver) paidRegistrations(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	var regs []models.Registration
	err := r.q.Select(ctx, tableRegistrations, backend.Filters{
		"user_id":        userID.String(),
		"payment_status": models.PaymentStatusPaid,
	}, &regs)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// pickLargest selects the registration holding the largest positive
// remaining count. Ties break deterministically: earliest registration
// first, then by id.
func pickLargest(regs []models.Registration) *models.Registration {
	candidates := make([]models.Registration, 0, len(regs))
	for _, reg := range regs {
		if reg.GamesRemaining > 0 {
			candidates = append(candidates, reg)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].GamesRemaining != candidates[j].GamesRemaining {
			return candidates[i].GamesRemaining > candidates[j].GamesRemaining
		}
		if !candidates[i].RegisteredAt.Equal(candidates[j].RegisteredAt) {
			return candidates[i].RegisteredAt.Before(candidates[j].RegisteredAt)
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})

	return &candidates[0]
}
