package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

const (
	tokenEntityType = "oauth_token"
	redacted        = "[REDACTED]"
)

// TokenManager keeps the stored connection's access token valid. Refreshes are serialized in
// process by a mutex and across processes by the conditional token update in the store.
type TokenManager struct {
	store      service.ConnectionStore
	oauth      *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
	window     time.Duration
	mu         sync.Mutex
}

// NewTokenManager creates a token manager for the configured OAuth client.
func NewTokenManager(store service.ConnectionStore, cfg Config) *TokenManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	return &TokenManager{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		window:     RefreshWindow,
	}
}

// EnsureValid returns conn's environment's active connection with an access token that is
// valid for at least the refresh window, refreshing it first if needed. When no refresh is
// needed no network call is made. Any refresh failure is an ErrAuthExpired error; a stale
// token is never returned.
func (m *TokenManager) EnsureValid(ctx context.Context, conn model.Connection) (model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.active(ctx, conn.Environment)
	if err != nil {
		return model.Connection{}, err
	}
	if current.ID != conn.ID {
		slog.Info("Connection was replaced, using the active one",
			"environment", conn.Environment,
			"connection", current.ID)
	}

	if !current.ExpiresWithin(m.now(), m.window) {
		return *current, nil
	}
	return m.refresh(ctx, *current)
}

// Refresh exchanges the refresh token of env's active connection regardless of its expiry.
func (m *TokenManager) Refresh(ctx context.Context, env model.Environment) (model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.active(ctx, env)
	if err != nil {
		return model.Connection{}, err
	}
	return m.refresh(ctx, *current)
}

func (m *TokenManager) active(ctx context.Context, env model.Environment) (*model.Connection, error) {
	conn, err := m.store.GetActiveConnection(ctx, env)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w for %s", common.ErrNoConnection, env)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if !conn.IsActive {
		return nil, fmt.Errorf("%w for %s", common.ErrNoConnection, env)
	}
	return conn, nil
}

// refresh must be called with m.mu held.
func (m *TokenManager) refresh(ctx context.Context, conn model.Connection) (model.Connection, error) {
	started := m.now()
	slog.Info("Refreshing accounting access token",
		"environment", conn.Environment,
		"expires_at", conn.TokenExpiresAt)

	request := redactedJSON(map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": redacted,
		"realm_id":      conn.RealmID,
	})

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken}).Token()
	if err == nil && (token.AccessToken == "" || token.Expiry.IsZero()) {
		err = errors.New("token response missing access token or expiry")
	}
	if err != nil {
		m.logAttempt(ctx, conn, started, request, refreshErrorBody(err), err)
		return model.Connection{}, fmt.Errorf("%w: token refresh failed: %v", common.ErrAuthExpired, err)
	}

	update := service.TokenUpdate{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if update.RefreshToken == "" {
		update.RefreshToken = conn.RefreshToken
	}
	if secs, ok := extraSeconds(token, "x_refresh_token_expires_in"); ok {
		update.RefreshTokenExpiresAt = m.now().Add(time.Duration(secs) * time.Second)
	}

	response := redactedJSON(map[string]any{
		"access_token":  redacted,
		"refresh_token": redacted,
		"token_type":    token.TokenType,
		"expires_at":    token.Expiry,
	})

	err = m.store.UpdateConnectionTokens(ctx, conn.ID, conn.RefreshToken, update)
	if errors.Is(err, service.ErrStaleConnection) {
		// Another process refreshed first; its tokens are the ones the provider now honors.
		m.logAttempt(ctx, conn, started, request, response, err)
		latest, lerr := m.active(ctx, conn.Environment)
		if lerr == nil && !latest.ExpiresWithin(m.now(), m.window) {
			return *latest, nil
		}
		return model.Connection{}, fmt.Errorf("%w: connection changed during refresh", common.ErrAuthExpired)
	}
	if err != nil {
		m.logAttempt(ctx, conn, started, request, response, err)
		return model.Connection{}, fmt.Errorf("%w: failed to persist refreshed tokens: %v", common.ErrAuthExpired, err)
	}

	m.logAttempt(ctx, conn, started, request, response, nil)

	conn.AccessToken = update.AccessToken
	conn.RefreshToken = update.RefreshToken
	conn.TokenExpiresAt = update.ExpiresAt
	if !update.RefreshTokenExpiresAt.IsZero() {
		conn.RefreshTokenExpiresAt = update.RefreshTokenExpiresAt
	}
	slog.Info("Refreshed accounting access token",
		"environment", conn.Environment,
		"expires_at", conn.TokenExpiresAt)
	return conn, nil
}

func (m *TokenManager) logAttempt(ctx context.Context, conn model.Connection, started time.Time, request, response string, err error) {
	entry := &model.SyncLogEntry{
		EntityType:      tokenEntityType,
		EntityID:        conn.ID,
		Direction:       model.DirectionOutbound,
		Status:          model.SyncSuccess,
		RequestPayload:  request,
		ResponsePayload: response,
		Environment:     conn.Environment,
		DurationMs:      m.now().Sub(started).Milliseconds(),
	}
	if err != nil {
		msg := err.Error()
		entry.Status = model.SyncError
		entry.ErrorMessage = &msg
	}
	if logErr := m.store.AppendSyncLog(ctx, entry); logErr != nil {
		slog.Warn("Failed to write sync log", "entity", tokenEntityType, "error", logErr)
	}
}

// refreshErrorBody returns the token endpoint's error response, which never carries tokens.
func refreshErrorBody(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return string(re.Body)
	}
	return ""
}

func extraSeconds(token *oauth2.Token, key string) (int64, bool) {
	switch v := token.Extra(key).(type) {
	case float64:
		return int64(v), v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}

func redactedJSON(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
