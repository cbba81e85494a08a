package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloticlabs/arena-kiosk/internal/backend/memory"
	"github.com/bloticlabs/arena-kiosk/internal/models"
)

func TestResolveIdentitySource(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("profile only", func(t *testing.T) {
		store := memory.NewStore()
		store.PutProfile(models.Profile{ID: userID, FullName: "Ada Lovelace"})

		src, err := resolveIdentitySource(ctx, store, userID)
		require.NoError(t, err)
		assert.True(t, src.resolved())
		require.NotNil(t, src.profile)
		assert.Nil(t, src.registration)
	})

	t.Run("registration fallback picks the most recent", func(t *testing.T) {
		store := memory.NewStore()
		now := time.Now().UTC()
		store.PutRegistration(models.Registration{
			ID: uuid.New(), UserID: userID, FullName: "Old Name", RegisteredAt: now.Add(-time.Hour),
		})
		store.PutRegistration(models.Registration{
			ID: uuid.New(), UserID: userID, FullName: "New Name", RegisteredAt: now,
		})

		src, err := resolveIdentitySource(ctx, store, userID)
		require.NoError(t, err)
		require.NotNil(t, src.registration)
		assert.Equal(t, "New Name", src.registration.FullName)
	})

	t.Run("neither record resolves", func(t *testing.T) {
		src, err := resolveIdentitySource(ctx, memory.NewStore(), userID)
		require.NoError(t, err)
		assert.False(t, src.resolved())
	})
}

func TestBuildIdentity(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("profile fields", func(t *testing.T) {
		src := identitySource{profile: &models.Profile{
			ID: userID, FirstName: "Ada", LastName: "Lovelace",
			Email: "ada@example.com", Phone: "+614",
		}}

		ident := buildIdentity(userID, src, now)
		assert.Equal(t, "Ada Lovelace", ident.DisplayName)
		assert.Equal(t, "ada@example.com", ident.Email)
		assert.Equal(t, "+614", ident.Phone)
		assert.Equal(t, now, ident.LastLogin)
	})

	t.Run("registration fields win over profile fields", func(t *testing.T) {
		src := identitySource{
			profile: &models.Profile{ID: userID, FullName: "Stale Name", Email: "old@example.com", Phone: "+1"},
			registration: &models.Registration{
				UserID: userID, FullName: "Fresh Name", Email: "new@example.com", Phone: "+2",
			},
		}

		ident := buildIdentity(userID, src, now)
		assert.Equal(t, "Fresh Name", ident.DisplayName)
		assert.Equal(t, "new@example.com", ident.Email)
		assert.Equal(t, "+2", ident.Phone)
	})

	t.Run("empty registration fields do not clobber profile fields", func(t *testing.T) {
		src := identitySource{
			profile:      &models.Profile{ID: userID, FullName: "Ada", Email: "ada@example.com"},
			registration: &models.Registration{UserID: userID},
		}

		ident := buildIdentity(userID, src, now)
		assert.Equal(t, "Ada", ident.DisplayName)
		assert.Equal(t, "ada@example.com", ident.Email)
	})

	t.Run("no usable name falls back", func(t *testing.T) {
		ident := buildIdentity(userID, identitySource{registration: &models.Registration{UserID: userID}}, now)
		assert.Equal(t, fallbackDisplayName, ident.DisplayName)
	})
}
