package quickbooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

type tokenServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "client credentials must use basic auth")
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

const refreshedBody = `{"access_token":"a2","refresh_token":"r2","token_type":"bearer",` +
	`"expires_in":3600,"x_refresh_token_expires_in":8726400}`

func testManager(store *memoryStore, tokenURL string) *TokenManager {
	cfg := DefaultConfig()
	cfg.ClientID = "client-id"
	cfg.ClientSecret = "client-secret"
	cfg.TokenURL = tokenURL
	cfg.Timeout = 5 * time.Second
	return NewTokenManager(store, cfg)
}

func sandboxConn(expiresIn time.Duration) model.Connection {
	return model.Connection{
		ID:             "conn-1",
		AccessToken:    "a1",
		RefreshToken:   "r1",
		RealmID:        "123145",
		Environment:    model.EnvironmentSandbox,
		TokenExpiresAt: time.Now().Add(expiresIn),
		IsActive:       true,
	}
}

func TestEnsureValid_FreshTokenMakesNoNetworkCall(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, refreshedBody)
	conn := sandboxConn(time.Hour)
	store := newMemoryStore(conn)

	got, err := testManager(store, server.URL).EnsureValid(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, int32(0), server.hits.Load())
	assert.Empty(t, store.syncLogs())
}

func TestEnsureValid_RefreshesInsideWindow(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, refreshedBody)
	conn := sandboxConn(2 * time.Minute)
	store := newMemoryStore(conn)

	got, err := testManager(store, server.URL).EnsureValid(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, int32(1), server.hits.Load())
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.True(t, got.TokenExpiresAt.After(time.Now().Add(50*time.Minute)))
	assert.True(t, got.RefreshTokenExpiresAt.After(time.Now().Add(90*24*time.Hour)))

	stored, err := store.GetActiveConnection(context.Background(), model.EnvironmentSandbox)
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.AccessToken)
	assert.Equal(t, "r2", stored.RefreshToken)

	logs := store.syncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "oauth_token", logs[0].EntityType)
	assert.Equal(t, model.DirectionOutbound, logs[0].Direction)
	assert.Equal(t, model.SyncSuccess, logs[0].Status)
	assert.Equal(t, model.EnvironmentSandbox, logs[0].Environment)
	for _, secret := range []string{"a2", "r1", "r2"} {
		assert.NotContains(t, logs[0].RequestPayload, `"`+secret+`"`)
		assert.NotContains(t, logs[0].ResponsePayload, `"`+secret+`"`)
	}
}

func TestEnsureValid_RefreshFailureIsAuthExpired(t *testing.T) {
	server := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	conn := sandboxConn(-time.Minute)
	store := newMemoryStore(conn)

	_, err := testManager(store, server.URL).EnsureValid(context.Background(), conn)
	require.ErrorIs(t, err, common.ErrAuthExpired)
	assert.True(t, common.IsAuthError(err))

	stored, err := store.GetActiveConnection(context.Background(), model.EnvironmentSandbox)
	require.NoError(t, err)
	assert.Equal(t, "a1", stored.AccessToken)

	logs := store.syncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncError, logs[0].Status)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, logs[0].ResponsePayload, "invalid_grant")
}

func TestEnsureValid_NoConnection(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, refreshedBody)
	store := newMemoryStore()

	_, err := testManager(store, server.URL).EnsureValid(context.Background(), sandboxConn(time.Hour))
	assert.ErrorIs(t, err, common.ErrNoConnection)
	assert.Equal(t, int32(0), server.hits.Load())
}

func TestEnsureValid_UsesReplacementConnection(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, refreshedBody)
	replacement := sandboxConn(time.Hour)
	replacement.ID = "conn-2"
	replacement.AccessToken = "fresh"
	store := newMemoryStore(replacement)

	got, err := testManager(store, server.URL).EnsureValid(context.Background(), sandboxConn(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "conn-2", got.ID)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, int32(0), server.hits.Load())
}

func TestEnsureValid_LostRaceUsesWinnersTokens(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, refreshedBody)
	conn := sandboxConn(time.Minute)
	store := newMemoryStore(conn)
	store.beforeUpdate = func(c *model.Connection) {
		// Another process refreshed between our read and our write.
		c.AccessToken = "other"
		c.RefreshToken = "other-refresh"
		c.TokenExpiresAt = time.Now().Add(time.Hour)
	}

	got, err := testManager(store, server.URL).EnsureValid(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "other", got.AccessToken)
}

func TestEnsureValid_ConcurrentCallersRefreshOnce(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, refreshedBody)
	conn := sandboxConn(time.Minute)
	store := newMemoryStore(conn)
	manager := testManager(store, server.URL)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := manager.EnsureValid(context.Background(), conn)
			assert.NoError(t, err)
			assert.Equal(t, "a2", got.AccessToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), server.hits.Load())
}

func TestRefresh_Forced(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, refreshedBody)
	store := newMemoryStore(sandboxConn(time.Hour))

	got, err := testManager(store, server.URL).Refresh(context.Background(), model.EnvironmentSandbox)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, int32(1), server.hits.Load())
}
