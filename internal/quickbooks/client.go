package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// maxLoggedPayload caps how much of a response body is copied into the sync log.
const maxLoggedPayload = 64 << 10

// Client runs read-only queries against the provider API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	log        service.SyncLogger
	now        func() time.Time
	cfg        Config
}

// NewClient creates a query client. Every call is recorded through log.
func NewClient(cfg Config, log service.SyncLogger) *Client {
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:        log,
		now:        time.Now,
		cfg:        cfg,
	}
}

// Query fetches every record of entity for conn's company, paging until a short page.
// conn must carry a valid access token; see TokenManager.EnsureValid.
func (c *Client) Query(ctx context.Context, conn model.Connection, entity EntityType) ([]ProviderTransaction, error) {
	var all []ProviderTransaction
	for start := 1; ; start += c.cfg.PageSize {
		page, err := c.queryPage(ctx, conn, entity, start)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < c.cfg.PageSize {
			break
		}
	}

	slog.Info("Fetched provider transactions", "entity", entity, "count", len(all))
	return all, nil
}

func (c *Client) queryPage(ctx context.Context, conn model.Connection, entity EntityType, start int) ([]ProviderTransaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := fmt.Sprintf("SELECT * FROM %s STARTPOSITION %d MAXRESULTS %d", entity, start, c.cfg.PageSize)
	endpoint := fmt.Sprintf("%s/v3/company/%s/query?%s",
		strings.TrimRight(c.cfg.APIBaseURL(conn.Environment), "/"),
		url.PathEscape(conn.RealmID),
		url.Values{"query": {query}, "minorversion": {MinorVersion}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Accept", "application/json")

	started := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, conn, entity, query, "", started, err)
		return nil, fmt.Errorf("quickbooks %s query: %w", entity, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(ctx, conn, entity, query, "", started, err)
		return nil, fmt.Errorf("failed to read %s response: %w", entity, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body), EntityType: entity}
		c.record(ctx, conn, entity, query, string(body), started, apiErr)
		return nil, apiErr
	}

	page, err := decodePage(body, entity)
	c.record(ctx, conn, entity, query, string(body), started, err)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func decodePage(body []byte, entity EntityType) ([]ProviderTransaction, error) {
	var envelope struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", entity, err)
	}

	raw, ok := envelope.QueryResponse[string(entity)]
	if !ok {
		// An empty result set omits the entity key.
		return nil, nil
	}

	var entities []providerEntity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil, fmt.Errorf("failed to decode %s records: %w", entity, err)
	}

	out := make([]ProviderTransaction, 0, len(entities))
	for _, e := range entities {
		txn, err := e.toTransaction(entity)
		if err != nil {
			slog.Warn("Skipping provider record", "entity", entity, "id", e.ID, "error", err)
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (c *Client) record(ctx context.Context, conn model.Connection, entity EntityType, query, body string, started time.Time, err error) {
	if c.log == nil {
		return
	}
	if len(body) > maxLoggedPayload {
		body = body[:maxLoggedPayload]
	}
	entry := &model.SyncLogEntry{
		EntityType:      string(entity),
		EntityID:        conn.RealmID,
		Direction:       model.DirectionInbound,
		Status:          model.SyncSuccess,
		RequestPayload:  query,
		ResponsePayload: body,
		Environment:     conn.Environment,
		DurationMs:      c.now().Sub(started).Milliseconds(),
	}
	if err != nil {
		msg := err.Error()
		entry.Status = model.SyncError
		entry.ErrorMessage = &msg
	}
	if logErr := c.log.AppendSyncLog(ctx, entry); logErr != nil {
		slog.Warn("Failed to write sync log", "entity", entity, "error", logErr)
	}
}
