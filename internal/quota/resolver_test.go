package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloticlabs/arena-kiosk/internal/backend/memory"
	"github.com/bloticlabs/arena-kiosk/internal/models"
)

func registration(userID uuid.UUID, games int, status string, registeredAt time.Time) models.Registration {
	return models.Registration{
		ID:             uuid.New(),
		EventID:        uuid.New(),
		UserID:         userID,
		GamesRemaining: games,
		PaymentStatus:  status,
		RegisteredAt:   registeredAt,
	}
}

func TestCompute(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("sums paid registrations only", func(t *testing.T) {
		store := memory.NewStore()
		store.PutRegistration(registration(userID, 3, "paid", now))
		store.PutRegistration(registration(userID, 5, "paid", now))
		store.PutRegistration(registration(userID, 9, "pending", now))
		store.PutRegistration(registration(uuid.New(), 7, "paid", now))

		assert.Equal(t, 8, NewResolver(store).Compute(ctx, userID))
	})

	t.Run("zero for a user with no valid records", func(t *testing.T) {
		store := memory.NewStore()
		store.PutRegistration(registration(userID, 4, "refunded", now))

		assert.Equal(t, 0, NewResolver(store).Compute(ctx, userID))
	})

	t.Run("fails safe to zero on query errors", func(t *testing.T) {
		store := memory.NewStore()
		store.PutRegistration(registration(userID, 4, "paid", now))
		store.FailTable("event_registrations", errors.New("connection reset"))

		assert.Equal(t, 0, NewResolver(store).Compute(ctx, userID))
	})
}

func TestConsume(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("decrements the record with the largest count", func(t *testing.T) {
		store := memory.NewStore()
		small := registration(userID, 3, "paid", now)
		large := registration(userID, 5, "paid", now)
		store.PutRegistration(small)
		store.PutRegistration(large)

		newCount, ok := NewResolver(store).Consume(ctx, userID)
		require.True(t, ok)
		assert.Equal(t, 7, newCount)

		assert.Equal(t, 4, store.Registration(large.ID).GamesRemaining)
		assert.Equal(t, 3, store.Registration(small.ID).GamesRemaining)
	})

	t.Run("never splits a decrement across records", func(t *testing.T) {
		store := memory.NewStore()
		a := registration(userID, 2, "paid", now)
		b := registration(userID, 2, "paid", now.Add(time.Minute))
		store.PutRegistration(a)
		store.PutRegistration(b)

		_, ok := NewResolver(store).Consume(ctx, userID)
		require.True(t, ok)

		// Deterministic tie-break: earliest registration wins.
		assert.Equal(t, 1, store.Registration(a.ID).GamesRemaining)
		assert.Equal(t, 2, store.Registration(b.ID).GamesRemaining)
	})

	t.Run("rejects when no positive entitlement exists", func(t *testing.T) {
		store := memory.NewStore()
		store.PutRegistration(registration(userID, 0, "paid", now))

		newCount, ok := NewResolver(store).Consume(ctx, userID)
		assert.False(t, ok)
		assert.Equal(t, 0, newCount)
		assert.Equal(t, 0, NewResolver(store).Compute(ctx, userID))
	})

	t.Run("ignores unpaid records with plays", func(t *testing.T) {
		store := memory.NewStore()
		store.PutRegistration(registration(userID, 10, "pending", now))

		_, ok := NewResolver(store).Consume(ctx, userID)
		assert.False(t, ok)
	})

	t.Run("retries after an interleaved write", func(t *testing.T) {
		store := memory.NewStore()
		reg := registration(userID, 5, "paid", now)
		store.PutRegistration(reg)
		store.ConflictNextUpdate()

		newCount, ok := NewResolver(store).Consume(ctx, userID)
		require.True(t, ok)
		assert.Equal(t, 4, newCount)
	})

	t.Run("backend failure is a rejection, not a crash", func(t *testing.T) {
		store := memory.NewStore()
		store.PutRegistration(registration(userID, 5, "paid", now))
		store.FailUpdate(errors.New("connection reset"))

		newCount, ok := NewResolver(store).Consume(ctx, userID)
		assert.False(t, ok)
		assert.Equal(t, 0, newCount)
	})

	t.Run("count never goes negative", func(t *testing.T) {
		store := memory.NewStore()
		store.PutRegistration(registration(userID, 1, "paid", now))
		resolver := NewResolver(store)

		newCount, ok := resolver.Consume(ctx, userID)
		require.True(t, ok)
		assert.Equal(t, 0, newCount)

		newCount, ok = resolver.Consume(ctx, userID)
		assert.False(t, ok)
		assert.Equal(t, 0, newCount)
	})
}

func TestPickLargest(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("nil for empty input", func(t *testing.T) {
		assert.Nil(t, pickLargest(nil))
	})

	t.Run("skips non-positive counts", func(t *testing.T) {
		regs := []models.Registration{
			registration(userID, 0, "paid", now),
			registration(userID, -1, "paid", now),
		}
		assert.Nil(t, pickLargest(regs))
	})

	t.Run("largest count wins", func(t *testing.T) {
		regs := []models.Registration{
			registration(userID, 2, "paid", now),
			registration(userID, 8, "paid", now),
			registration(userID, 5, "paid", now),
		}
		pick := pickLargest(regs)
		require.NotNil(t, pick)
		assert.Equal(t, 8, pick.GamesRemaining)
	})
}
