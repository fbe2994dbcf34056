package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

func testConnection(env model.Environment, refresh string) *model.Connection {
	return &model.Connection{
		AccessToken:    "access-" + refresh,
		RefreshToken:   refresh,
		RealmID:        "123145",
		Environment:    env,
		TokenExpiresAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// connectionStorage is a store whose clock sits an hour before testConnection's expiry.
func connectionStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store := createTestStorage(t)
	store.now = func() time.Time { return time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC) }
	return store
}

func TestGetActiveConnection_None(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.GetActiveConnection(context.Background(), model.EnvironmentSandbox)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveConnection_ReplacesActive(t *testing.T) {
	store := connectionStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveConnection(ctx, testConnection(model.EnvironmentSandbox, "r1")))
	require.NoError(t, store.SaveConnection(ctx, testConnection(model.EnvironmentProduction, "p1")))
	second := testConnection(model.EnvironmentSandbox, "r2")
	require.NoError(t, store.SaveConnection(ctx, second))

	active, err := store.GetActiveConnection(ctx, model.EnvironmentSandbox)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, "r2", active.RefreshToken)
	assert.True(t, active.IsActive)
	assert.True(t, active.RefreshTokenExpiresAt.IsZero())

	prod, err := store.GetActiveConnection(ctx, model.EnvironmentProduction)
	require.NoError(t, err)
	assert.Equal(t, "p1", prod.RefreshToken)

	var total int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quickbooks_connections`).Scan(&total))
	assert.Equal(t, 3, total)

	err = store.SaveConnection(ctx, &model.Connection{Environment: model.EnvironmentSandbox})
	assert.ErrorIs(t, err, ErrInvalidConn)
}

func TestSaveConnection_RejectsExpiredToken(t *testing.T) {
	store := connectionStorage(t)
	ctx := context.Background()

	for _, expires := range []time.Time{
		time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	} {
		conn := testConnection(model.EnvironmentSandbox, "r1")
		conn.TokenExpiresAt = expires
		assert.ErrorIs(t, store.SaveConnection(ctx, conn), ErrInvalidConn)
	}

	_, err := store.GetActiveConnection(ctx, model.EnvironmentSandbox)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateConnectionTokens(t *testing.T) {
	store := connectionStorage(t)
	ctx := context.Background()

	conn := testConnection(model.EnvironmentSandbox, "r1")
	require.NoError(t, store.SaveConnection(ctx, conn))

	expires := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	refreshExpires := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	update := service.TokenUpdate{
		AccessToken:           "a2",
		RefreshToken:          "r2",
		ExpiresAt:             expires,
		RefreshTokenExpiresAt: refreshExpires,
	}
	require.NoError(t, store.UpdateConnectionTokens(ctx, conn.ID, "r1", update))

	got, err := store.GetActiveConnection(ctx, model.EnvironmentSandbox)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.True(t, got.TokenExpiresAt.Equal(expires))
	assert.True(t, got.RefreshTokenExpiresAt.Equal(refreshExpires))

	t.Run("stale refresh token", func(t *testing.T) {
		err := store.UpdateConnectionTokens(ctx, conn.ID, "r1", service.TokenUpdate{AccessToken: "a3", RefreshToken: "r3"})
		assert.ErrorIs(t, err, service.ErrStaleConnection)
	})

	t.Run("missing tokens", func(t *testing.T) {
		err := store.UpdateConnectionTokens(ctx, conn.ID, "r2", service.TokenUpdate{})
		assert.ErrorIs(t, err, ErrInvalidConn)
	})
}
